package client

import (
	"context"
	"log"
	"time"

	"camgateway/internal/gateway"
	"camgateway/internal/msgs"
	"camgateway/internal/transport"
)

// Frame はタイムスタンプと組にした受信フレーム
type Frame struct {
	ID          string
	ContentType string
	Resolution  string
	Data        []byte
	Timestamp   time.Time
	Metadata    map[string]string
}

// Watch はフレームとタイムスタンプのトピックを購読し、組になったフレームを流す
//
// ctx が終了するかチャネルが閉じられると、返したチャネルを閉じる。
// 受け手が遅い場合は送信を待つ。
func Watch(ctx context.Context, ch transport.Channel, id string) (<-chan Frame, error) {
	topics := gateway.TopicsFor(id)
	for _, t := range []string{topics.Frame, topics.Timestamp} {
		if err := ch.Subscribe(t); err != nil {
			return nil, err
		}
	}

	out := make(chan Frame)
	go func() {
		defer close(out)
		var pending *transport.Message
		for {
			msg, err := ch.Consume(ctx)
			if err != nil {
				return
			}
			switch msg.Topic {
			case topics.Frame:
				pending = msg
			case topics.Timestamp:
				if pending == nil || msg.Metadata[gateway.MetaFrameID] != pending.ID {
					continue
				}
				ts, err := msgs.UnmarshalTimestamp(msg.Body)
				if err != nil {
					log.Printf("[client] タイムスタンプを読めません: %v", err)
					continue
				}
				f := Frame{
					ID:          pending.ID,
					ContentType: pending.ContentType,
					Resolution:  pending.Metadata[gateway.MetaResolution],
					Data:        pending.Body,
					Timestamp:   ts,
					Metadata:    pending.Metadata,
				}
				pending = nil
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
