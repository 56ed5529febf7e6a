package transport

import (
	"camgateway/internal/status"

	"github.com/google/uuid"
)

// Message はトピックに発行される封筒
type Message struct {
	ID            string            `json:"id,omitempty" codec:"id,omitempty"`
	Topic         string            `json:"topic" codec:"topic"`
	ReplyTo       string            `json:"reply_to,omitempty" codec:"reply_to,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty" codec:"correlation_id,omitempty"`
	ContentType   string            `json:"content_type,omitempty" codec:"content_type,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" codec:"metadata,omitempty"`
	StatusCode    string            `json:"status_code,omitempty" codec:"status_code,omitempty"`
	StatusWhy     string            `json:"status_why,omitempty" codec:"status_why,omitempty"`
	Body          []byte            `json:"body,omitempty" codec:"body,omitempty"`
}

// NewMessage は一意なIDを持つメッセージを作成する
func NewMessage(topic, contentType string, body []byte) *Message {
	return &Message{
		ID:          newID(),
		Topic:       topic,
		ContentType: contentType,
		Body:        body,
	}
}

func newID() string {
	return uuid.NewString()
}

// Err はメッセージに載ったステータスをエラーとして返す
func (m *Message) Err() error {
	code, ok := status.ParseCode(m.StatusCode)
	if !ok {
		return status.Errorf(status.InternalError, "不明なステータス %q: %s", m.StatusCode, m.StatusWhy)
	}
	return status.New(code, m.StatusWhy)
}

// SetStatus はエラーをステータスとしてメッセージに載せる
func (m *Message) SetStatus(err error) {
	code := status.CodeOf(err)
	if code == status.OK {
		m.StatusCode, m.StatusWhy = "", ""
		return
	}
	m.StatusCode = code.String()
	m.StatusWhy = status.WhyOf(err)
}

// Clone はメタデータを複製したコピーを返す。Body は共有する
func (m *Message) Clone() *Message {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
