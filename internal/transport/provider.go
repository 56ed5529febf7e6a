package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"camgateway/internal/status"
)

// Handler はリクエストを処理して返信を返す
type Handler func(ctx context.Context, req *Message) (*Message, error)

// Interceptor はハンドラを包んで前後処理を追加する
type Interceptor func(next Handler) Handler

// ServiceProvider はトピックごとのRPCエンドポイントを管理する
type ServiceProvider struct {
	ch           Channel
	handlers     map[string]Handler
	interceptors []Interceptor
}

// NewServiceProvider はチャネル上でRPCを提供するプロバイダを作成する
func NewServiceProvider(ch Channel, interceptors ...Interceptor) *ServiceProvider {
	return &ServiceProvider{
		ch:           ch,
		handlers:     make(map[string]Handler),
		interceptors: interceptors,
	}
}

// Use はインターセプタを追加する。先に追加したものが外側になる
func (p *ServiceProvider) Use(interceptors ...Interceptor) {
	p.interceptors = append(p.interceptors, interceptors...)
}

// Register はトピックにハンドラを登録して購読する
func (p *ServiceProvider) Register(topic string, h Handler) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if _, ok := p.handlers[topic]; ok {
		return fmt.Errorf("エンドポイントは既に登録されています: %s", topic)
	}
	if err := p.ch.Subscribe(topic); err != nil {
		return fmt.Errorf("エンドポイントの購読に失敗しました: %w", err)
	}
	p.handlers[topic] = h
	return nil
}

// Topics は登録済みのトピックを返す
func (p *ServiceProvider) Topics() []string {
	topics := make([]string, 0, len(p.handlers))
	for t := range p.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Serve はメッセージが登録済みトピック宛てなら処理して返信し、true を返す
func (p *ServiceProvider) Serve(ctx context.Context, msg *Message) bool {
	h, ok := p.handlers[msg.Topic]
	if !ok {
		return false
	}
	for i := len(p.interceptors) - 1; i >= 0; i-- {
		h = p.interceptors[i](h)
	}

	reply, err := h(ctx, msg)
	if msg.ReplyTo == "" {
		return true
	}
	if err != nil || reply == nil {
		reply = &Message{}
	}
	reply.ID = newID()
	reply.Topic = msg.ReplyTo
	reply.CorrelationID = msg.ID
	if msg.CorrelationID != "" {
		reply.CorrelationID = msg.CorrelationID
	}
	reply.SetStatus(err)

	if perr := p.ch.Publish(reply); perr != nil {
		log.Printf("[transport] 返信の発行に失敗しました (%s): %v", msg.Topic, perr)
	}
	return true
}

// Delegate は型付きの関数をエンドポイントとして登録する。
// 本文はリクエストのコンテンツタイプのコーデックで復号し、同じコーデックで返信する
func Delegate[Req, Rep any](p *ServiceProvider, topic string, fn func(ctx context.Context, req *Req, rep *Rep) error) error {
	return p.Register(topic, func(ctx context.Context, msg *Message) (*Message, error) {
		c, err := CodecFor(msg.ContentType)
		if err != nil {
			return nil, status.New(status.InvalidArgument, err.Error())
		}
		var req Req
		if len(msg.Body) > 0 {
			if err := c.Unmarshal(msg.Body, &req); err != nil {
				return nil, status.Errorf(status.InvalidArgument, "リクエストを復号できません: %v", err)
			}
		}
		var rep Rep
		if err := fn(ctx, &req, &rep); err != nil {
			return nil, err
		}
		body, err := c.Marshal(&rep)
		if err != nil {
			return nil, status.Errorf(status.InternalError, "返信を符号化できません: %v", err)
		}
		return &Message{ContentType: c.ContentType(), Body: body}, nil
	})
}

// LogInterceptor は処理時間と失敗したステータスを記録する
func LogInterceptor(next Handler) Handler {
	return func(ctx context.Context, req *Message) (*Message, error) {
		start := time.Now()
		rep, err := next(ctx, req)
		if err != nil {
			log.Printf("[rpc] %s %s (%v): %s", req.Topic, status.CodeOf(err), time.Since(start), status.WhyOf(err))
		} else {
			log.Printf("[rpc] %s OK (%v)", req.Topic, time.Since(start))
		}
		return rep, err
	}
}
