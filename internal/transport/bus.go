package transport

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// node はトピックトライの節点
type node struct {
	children map[string]*node
	queues   []*queue
}

// Bus はプロセス内のトピックバス
type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// NewBus は受信キューの長さを指定してバスを作成する
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 64
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) subscribe(pattern string, q *queue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range strings.Split(pattern, ".") {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.queues = append(n.queues, q)
}

func (b *Bus) unsubscribe(pattern string, q *queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(pattern, q)
}

func (b *Bus) unsubscribeLocked(pattern string, q *queue) {
	tokens := strings.Split(pattern, ".")
	n := b.root
	stack := make([]*node, 0, len(tokens))
	for _, tok := range tokens {
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.queues {
		if s == q {
			n.queues = append(n.queues[:i], n.queues[i+1:]...)
			break
		}
	}

	// 空になった節点を削除
	for i := len(tokens) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[tokens[i]]
		if len(child.queues) > 0 || len(child.children) > 0 {
			break
		}
		delete(parent.children, tokens[i])
	}
}

// Publish はトピックに一致する受信キューへメッセージを配送し、配送先の数を返す
func (b *Bus) Publish(msg *Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var targets []*queue
	seen := make(map[*queue]bool)
	collect := func(qs []*queue) {
		for _, q := range qs {
			if !seen[q] {
				seen[q] = true
				targets = append(targets, q)
			}
		}
	}
	match(b.root, strings.Split(msg.Topic, "."), collect)

	for _, q := range targets {
		q.push(msg)
	}
	return len(targets)
}

// match はトークン列に一致する節点の受信キューを集める
func match(n *node, tokens []string, collect func([]*queue)) {
	if tail, ok := n.children[wildcardTail]; ok {
		collect(tail.queues)
	}
	if len(tokens) == 0 {
		collect(n.queues)
		return
	}
	if child, ok := n.children[tokens[0]]; ok {
		match(child, tokens[1:], collect)
	}
	if child, ok := n.children[wildcardOne]; ok {
		match(child, tokens[1:], collect)
	}
}

// NewChannel はバスに接続したチャネルを作成する
func (b *Bus) NewChannel() *BusChannel {
	c := &BusChannel{
		bus:    b,
		q:      newQueue(b.qLen),
		inbox:  "inbox." + uuid.NewString(),
		topics: make(map[string]bool),
	}
	c.topics[c.inbox] = true
	b.subscribe(c.inbox, c.q)
	return c
}

// BusChannel はプロセス内バスに接続したチャネル
type BusChannel struct {
	bus   *Bus
	q     *queue
	inbox string

	mu     sync.Mutex
	topics map[string]bool
	closed bool
}

func (c *BusChannel) Publish(msg *Message) error {
	if err := validateTopic(msg.Topic); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.bus.Publish(msg)
	return nil
}

func (c *BusChannel) Subscribe(topic string) error {
	if err := validatePattern(topic); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.topics[topic] {
		return nil
	}
	c.topics[topic] = true
	c.bus.subscribe(topic, c.q)
	return nil
}

func (c *BusChannel) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.topics[topic] || topic == c.inbox {
		return nil
	}
	delete(c.topics, topic)
	c.bus.unsubscribe(topic, c.q)
	return nil
}

func (c *BusChannel) TryConsume() (*Message, bool) {
	return c.q.tryPop()
}

func (c *BusChannel) Consume(ctx context.Context) (*Message, error) {
	return c.q.pop(ctx)
}

func (c *BusChannel) Inbox() string {
	return c.inbox
}

// Close は全ての購読を解除して受信キューを閉じる
func (c *BusChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.bus.mu.Lock()
	for topic := range c.topics {
		c.bus.unsubscribeLocked(topic, c.q)
	}
	c.bus.mu.Unlock()

	close(c.q.ch)
	return nil
}
