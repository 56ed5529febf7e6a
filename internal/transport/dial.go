package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Dialer はURIからチャネルを開く
//
//	inproc://          プロセス内バス
//	ws://host/path     WebSocketブローカー (?codec=json|msgpack)
type Dialer struct {
	Bus      *Bus
	Codec    Codec
	QueueLen int
}

// Dial はURIのスキームに応じたチャネルを開く
func (d *Dialer) Dial(ctx context.Context, uri string) (Channel, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("ブローカーURIを解析できません: %w", err)
	}

	switch u.Scheme {
	case "inproc":
		if d.Bus == nil {
			return nil, errors.New("プロセス内バスが設定されていません")
		}
		return d.Bus.NewChannel(), nil
	case "ws", "wss":
		c := d.Codec
		if c == nil {
			c = JSON
		}
		q := u.Query()
		if name := q.Get("codec"); name != "" {
			if c, err = CodecByName(name); err != nil {
				return nil, err
			}
		}
		// ブローカー側も同じコーデックを使う
		q.Set("codec", codecName(c))
		u.RawQuery = q.Encode()
		return DialWebSocket(ctx, u.String(), c, d.QueueLen)
	}
	return nil, fmt.Errorf("サポートされていないスキーム: %q", u.Scheme)
}
