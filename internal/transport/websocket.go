package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// フレームの種類
const (
	opSubscribe   = "sub"
	opUnsubscribe = "unsub"
	opPublish     = "pub"
	opMessage     = "msg"
)

// wsFrame はWebSocket上でやり取りするフレーム
type wsFrame struct {
	Op      string   `json:"op" codec:"op"`
	Topic   string   `json:"topic,omitempty" codec:"topic,omitempty"`
	Message *Message `json:"message,omitempty" codec:"message,omitempty"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

func wsMessageType(c Codec) int {
	if c == JSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// wsConn は書き込みを直列化したWebSocket接続
type wsConn struct {
	conn  *websocket.Conn
	codec Codec

	writeMu sync.Mutex
}

func (w *wsConn) write(f *wsFrame) error {
	data, err := w.codec.Marshal(f)
	if err != nil {
		return fmt.Errorf("フレームを符号化できません: %w", err)
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(wsMessageType(w.codec), data)
}

func (w *wsConn) ping() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) read() (*wsFrame, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f wsFrame
	if err := w.codec.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("フレームを復号できません: %w", err)
	}
	return &f, nil
}

// WSChannel はブローカーにWebSocketで接続したチャネル
type WSChannel struct {
	ws    *wsConn
	q     *queue
	inbox string

	mu     sync.Mutex
	topics map[string]bool
	closed bool
	done   chan struct{}
}

// DialWebSocket はブローカーに接続してチャネルを作成する
func DialWebSocket(ctx context.Context, uri string, c Codec, queueLen int) (*WSChannel, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("ブローカーに接続できません (%s): %w", uri, err)
	}

	ch := &WSChannel{
		ws:     &wsConn{conn: conn, codec: c},
		q:      newQueue(queueLen),
		inbox:  "inbox." + newID(),
		topics: make(map[string]bool),
		done:   make(chan struct{}),
	}
	go ch.readLoop()

	if err := ch.Subscribe(ch.inbox); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (c *WSChannel) readLoop() {
	defer close(c.done)
	defer close(c.q.ch)
	for {
		f, err := c.ws.read()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("[transport] ブローカーとの接続が切れました: %v", err)
			}
			return
		}
		if f.Op == opMessage && f.Message != nil {
			c.q.push(f.Message)
		}
	}
}

func (c *WSChannel) send(f *wsFrame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.ws.write(f)
}

func (c *WSChannel) Publish(msg *Message) error {
	if err := validateTopic(msg.Topic); err != nil {
		return err
	}
	return c.send(&wsFrame{Op: opPublish, Message: msg})
}

func (c *WSChannel) Subscribe(topic string) error {
	if err := validatePattern(topic); err != nil {
		return err
	}
	c.mu.Lock()
	seen := c.topics[topic]
	c.topics[topic] = true
	c.mu.Unlock()
	if seen {
		return nil
	}
	return c.send(&wsFrame{Op: opSubscribe, Topic: topic})
}

func (c *WSChannel) Unsubscribe(topic string) error {
	if topic == c.inbox {
		return nil
	}
	c.mu.Lock()
	seen := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()
	if !seen {
		return nil
	}
	return c.send(&wsFrame{Op: opUnsubscribe, Topic: topic})
}

func (c *WSChannel) TryConsume() (*Message, bool) {
	return c.q.tryPop()
}

func (c *WSChannel) Consume(ctx context.Context) (*Message, error) {
	return c.q.pop(ctx)
}

func (c *WSChannel) Inbox() string {
	return c.inbox
}

// Close は接続を閉じ、受信処理の終了を待つ
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.ws.writeMu.Lock()
	_ = c.ws.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.ws.writeMu.Unlock()

	err := c.ws.conn.Close()
	<-c.done
	return err
}

// Broker はWebSocketクライアントをプロセス内バスに中継する
type Broker struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

// NewBroker はバスを中継するブローカーを作成する
func NewBroker(bus *Bus) *Broker {
	return &Broker{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP は接続をアップグレードして、切断されるまで中継する。
// クエリパラメータ codec でフレームの符号化方式を選ぶ
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[broker] アップグレードに失敗しました: %v", err)
		return
	}

	ws := &wsConn{conn: conn, codec: c}
	ch := b.bus.NewChannel()
	log.Printf("[broker] クライアントが接続しました: %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.writeLoop(ctx, ws, ch)
	}()

	b.readLoop(ws, ch)
	cancel()
	_ = ch.Close()
	wg.Wait()
	_ = conn.Close()
	log.Printf("[broker] クライアントが切断しました: %s", r.RemoteAddr)
}

func (b *Broker) readLoop(ws *wsConn, ch *BusChannel) {
	for {
		f, err := ws.read()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Printf("[broker] 読み込みエラー: %v", err)
			}
			return
		}
		switch f.Op {
		case opSubscribe:
			err = ch.Subscribe(f.Topic)
		case opUnsubscribe:
			err = ch.Unsubscribe(f.Topic)
		case opPublish:
			if f.Message == nil {
				err = errors.New("メッセージがありません")
				break
			}
			err = ch.Publish(f.Message)
		default:
			err = fmt.Errorf("不明な操作: %q", f.Op)
		}
		if err != nil {
			log.Printf("[broker] %s %s: %v", f.Op, f.Topic, err)
		}
	}
}

func (b *Broker) writeLoop(ctx context.Context, ws *wsConn, ch *BusChannel) {
	msgs := make(chan *Message)
	go func() {
		defer close(msgs)
		for {
			msg, err := ch.Consume(ctx)
			if err != nil {
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := ws.write(&wsFrame{Op: opMessage, Message: msg}); err != nil {
				log.Printf("[broker] 書き込みエラー: %v", err)
				_ = ws.conn.Close()
				return
			}
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				_ = ws.conn.Close()
				return
			}
		}
	}
}
