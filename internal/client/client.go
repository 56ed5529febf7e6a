// Package client はカメラゲートウェイの設定RPCとフレーム購読のクライアントを提供する
package client

import (
	"context"
	"sync"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/gateway"
	"camgateway/internal/msgs"
	"camgateway/internal/transport"
)

// DefaultTimeout はRPC1回あたりの既定のタイムアウト
const DefaultTimeout = 5 * time.Second

// Client はゲートウェイ1台に対する設定RPCのクライアント
//
// 返信は専用のチャネルで受け取るため、リクエストは1件ずつ直列に処理する。
type Client struct {
	mu      sync.Mutex
	ch      transport.Channel
	codec   transport.Codec
	topics  gateway.Topics
	timeout time.Duration
	opts    []transport.RequestOption
}

// Option はクライアントの設定
type Option func(*Client)

// WithCodec はリクエストのコーデックを指定する
func WithCodec(c transport.Codec) Option {
	return func(cl *Client) { cl.codec = c }
}

// WithTimeout はRPC1回あたりのタイムアウトを指定する
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithRequestOptions は全てのリクエストに適用するオプションを追加する
func WithRequestOptions(opts ...transport.RequestOption) Option {
	return func(cl *Client) { cl.opts = append(cl.opts, opts...) }
}

// New はIDで指定したゲートウェイのクライアントを作成する
func New(ch transport.Channel, id string, opts ...Option) *Client {
	c := &Client{
		ch:      ch,
		codec:   transport.JSON,
		topics:  gateway.TopicsFor(id),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, topic string, req, rep any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return transport.Request(ctx, c.ch, c.codec, topic, req, rep, c.opts...)
}

// SetConfigMessage は通信用レコードのまま設定を適用する
func (c *Client) SetConfigMessage(ctx context.Context, cfg *msgs.CameraConfig) error {
	return c.call(ctx, c.topics.SetConfig, cfg, &msgs.Empty{})
}

// GetConfigMessage は通信用レコードのまま設定を取得する
func (c *Client) GetConfigMessage(ctx context.Context, sel msgs.FieldSelector) (*msgs.CameraConfig, error) {
	var rep msgs.CameraConfig
	if err := c.call(ctx, c.topics.GetConfig, &sel, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// SetConfig は設定を適用する
func (c *Client) SetConfig(ctx context.Context, cfg camera.Config) error {
	return c.SetConfigMessage(ctx, msgs.NewCameraConfig(cfg))
}

// GetConfig は選択したグループの設定を取得する
func (c *Client) GetConfig(ctx context.Context, sel camera.FieldSelector) (camera.Config, error) {
	rep, err := c.GetConfigMessage(ctx, msgs.NewFieldSelector(sel))
	if err != nil {
		return camera.Config{}, err
	}
	return rep.Domain()
}
