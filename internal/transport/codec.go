package transport

import (
	"bytes"
	"fmt"
	"mime"

	"github.com/goccy/go-json"
	"github.com/ugorji/go/codec"
)

// Codec はメッセージ本文のエンコード方式
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	// []byte を bin 型で書き出す
	h.WriteExt = true
	return h
}()

type msgpackCodec struct{}

func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, msgpackHandle).Decode(v)
}

var (
	// JSON は goccy/go-json によるコーデック
	JSON Codec = jsonCodec{}
	// MsgPack は ugorji/go/codec によるコーデック
	MsgPack Codec = msgpackCodec{}
)

// CodecFor はコンテンツタイプに対応するコーデックを返す。空なら JSON を返す
func CodecFor(contentType string) (Codec, error) {
	if contentType == "" {
		return JSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("コンテンツタイプを解析できません: %w", err)
	}
	switch mediaType {
	case JSON.ContentType():
		return JSON, nil
	case MsgPack.ContentType(), "application/x-msgpack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("サポートされていないコンテンツタイプ: %s", contentType)
}

// CodecByName は設定ファイルで使う名前からコーデックを返す
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("不明なコーデック: %s", name)
}

func codecName(c Codec) string {
	if c == MsgPack {
		return "msgpack"
	}
	return "json"
}
