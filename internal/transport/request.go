package transport

import (
	"context"
	"errors"
	"log"

	"camgateway/internal/status"
)

// RequestOption は送信前のリクエストを変更する
type RequestOption func(ctx context.Context, msg *Message)

// WithMetadata はリクエストにメタデータを追加する
func WithMetadata(key, value string) RequestOption {
	return func(_ context.Context, msg *Message) {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string)
		}
		msg.Metadata[key] = value
	}
}

// Request はトピックにリクエストを発行し、対応する返信を待って rep に復号する。
// チャネルの受信キューに届いた無関係なメッセージは捨てる
func Request(ctx context.Context, ch Channel, c Codec, topic string, req, rep any, opts ...RequestOption) error {
	body, err := c.Marshal(req)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "リクエストを符号化できません: %v", err)
	}
	msg := NewMessage(topic, c.ContentType(), body)
	msg.ReplyTo = ch.Inbox()
	msg.CorrelationID = msg.ID
	for _, opt := range opts {
		opt(ctx, msg)
	}

	if err := ch.Publish(msg); err != nil {
		return status.Errorf(status.InternalError, "リクエストの発行に失敗しました: %v", err)
	}

	for {
		reply, err := ch.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return status.Errorf(status.DeadlineExceeded, "%s の返信がありません", topic)
			}
			return status.Errorf(status.InternalError, "返信を受信できません: %v", err)
		}
		if reply.CorrelationID != msg.ID {
			log.Printf("[transport] 無関係なメッセージを破棄しました: %s", reply.Topic)
			continue
		}
		if err := reply.Err(); err != nil {
			return err
		}
		if rep == nil || len(reply.Body) == 0 {
			return nil
		}
		rc, err := CodecFor(reply.ContentType)
		if err != nil {
			return status.New(status.InternalError, err.Error())
		}
		if err := rc.Unmarshal(reply.Body, rep); err != nil {
			return status.Errorf(status.InternalError, "返信を復号できません: %v", err)
		}
		return nil
	}
}
