// Package transport はトピック指向のメッセージチャネルとRPCの仕組みを提供する
//
// # 責務
// - メッセージの封筒 (Message) と本文のコーデック
// - プロセス内バス (Bus) とWebSocket経由のリモート接続 (WSChannel, Broker)
// - トピックに紐づくRPCエンドポイントの提供 (ServiceProvider) と呼び出し (Request)
//
// # 仕様
// - トピックは "." 区切り。購読時のみ "+" (1階層) と "#" (以降すべて) を使える
// - チャネルごとに受信キューを1つ持ち、溢れた場合は古いメッセージから捨てる
// - 各チャネルは返信用の専用トピック (Inbox) を自動で購読する
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed はチャネルが閉じられていることを表す
	ErrClosed = errors.New("チャネルは閉じられています")
	// ErrInvalidTopic はトピックの書式が不正なことを表す
	ErrInvalidTopic = errors.New("不正なトピック")
)

// Channel はメッセージの発行と受信を行う接続
type Channel interface {
	// Publish はメッセージを発行する
	Publish(msg *Message) error
	// Subscribe はトピックのメッセージを受信キューに追加する
	Subscribe(topic string) error
	// Unsubscribe は購読を解除する
	Unsubscribe(topic string) error
	// TryConsume は待たずに受信キューから1件取り出す
	TryConsume() (*Message, bool)
	// Consume はメッセージが届くかコンテキストが終了するまで待つ
	Consume(ctx context.Context) (*Message, error)
	// Inbox は返信を受け取るための専用トピックを返す
	Inbox() string
	// Close は接続を閉じる
	Close() error
}

const (
	wildcardOne  = "+"
	wildcardTail = "#"
)

// validateTopic は発行先のトピックを検証する
func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: 空のトピック", ErrInvalidTopic)
	}
	for _, tok := range strings.Split(topic, ".") {
		if tok == "" || tok == wildcardOne || tok == wildcardTail {
			return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}

// validatePattern は購読パターンを検証する
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: 空のパターン", ErrInvalidTopic)
	}
	tokens := strings.Split(pattern, ".")
	for i, tok := range tokens {
		if tok == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
		}
		if tok == wildcardTail && i != len(tokens)-1 {
			return fmt.Errorf("%w: '#' は末尾のみ使えます: %q", ErrInvalidTopic, pattern)
		}
	}
	return nil
}

// queue は溢れたときに古いメッセージを捨てる受信キュー
type queue struct {
	ch chan *Message
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 64
	}
	return &queue{ch: make(chan *Message, size)}
}

func (q *queue) push(msg *Message) {
	select {
	case q.ch <- msg:
		return
	default:
	}
	// 古いメッセージを捨てる
	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- msg:
	default:
	}
}

func (q *queue) tryPop() (*Message, bool) {
	select {
	case msg, ok := <-q.ch:
		return msg, ok
	default:
		return nil, false
	}
}

func (q *queue) pop(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
