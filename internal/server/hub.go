package server

import (
	"context"
	"sync"

	"camgateway/internal/client"
)

// FrameHub は最新フレームを保持し、購読者に配信する
type FrameHub struct {
	mu     sync.RWMutex
	latest *client.Frame
	subs   map[chan client.Frame]struct{}
}

// NewFrameHub は新しいFrameHubを作成する
func NewFrameHub() *FrameHub {
	return &FrameHub{subs: make(map[chan client.Frame]struct{})}
}

// Run は frames が閉じられるか ctx が終了するまでフレームを配信する
func (h *FrameHub) Run(ctx context.Context, frames <-chan client.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			h.Publish(f)
		}
	}
}

// Publish はフレームを最新として保持し、購読者に送る。受け取れない購読者には送らない
func (h *FrameHub) Publish(f client.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &f
	for ch := range h.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// Latest は最新フレームを返す
func (h *FrameHub) Latest() (client.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return client.Frame{}, false
	}
	return *h.latest, true
}

// Subscribe はフレームを受け取るチャネルと解除関数を返す
func (h *FrameHub) Subscribe() (<-chan client.Frame, func()) {
	ch := make(chan client.Frame, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}
