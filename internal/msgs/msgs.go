// Package msgs はカメラ設定の通信用レコードとドメインモデルとの変換を提供する
package msgs

import (
	"fmt"
	"math"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/status"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Resolution は解像度
type Resolution struct {
	Width  uint32 `json:"width" yaml:"width" toml:"width" codec:"width"`
	Height uint32 `json:"height" yaml:"height" toml:"height" codec:"height"`
}

// ImageFormat は画像形式 ("JPEG", "PNG", "WebP") と圧縮率
type ImageFormat struct {
	Format      string   `json:"format" yaml:"format" toml:"format" codec:"format"`
	Compression *float64 `json:"compression,omitempty" yaml:"compression,omitempty" toml:"compression,omitempty" codec:"compression,omitempty"`
}

// ColorSpace は色空間 ("RGB", "GRAY", "YCbCr", "HSV")
type ColorSpace struct {
	Value string `json:"value" yaml:"value" toml:"value" codec:"value"`
}

// Vertex は座標
type Vertex struct {
	X float64 `json:"x" yaml:"x" toml:"x" codec:"x"`
	Y float64 `json:"y" yaml:"y" toml:"y" codec:"y"`
}

// BoundingPoly は関心領域
type BoundingPoly struct {
	Vertices []Vertex `json:"vertices" yaml:"vertices" toml:"vertices" codec:"vertices"`
}

// ImageSettings は画像グループ
type ImageSettings struct {
	Resolution *Resolution   `json:"resolution,omitempty" yaml:"resolution,omitempty" toml:"resolution,omitempty" codec:"resolution,omitempty"`
	Format     *ImageFormat  `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty" codec:"format,omitempty"`
	ColorSpace *ColorSpace   `json:"color_space,omitempty" yaml:"color_space,omitempty" toml:"color_space,omitempty" codec:"color_space,omitempty"`
	Region     *BoundingPoly `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty" codec:"region,omitempty"`
}

// SamplingSettings はサンプリンググループ。frequency と period は排他
type SamplingSettings struct {
	Frequency *float64 `json:"frequency,omitempty" yaml:"frequency,omitempty" toml:"frequency,omitempty" codec:"frequency,omitempty"` // Hz
	Period    *float64 `json:"period,omitempty" yaml:"period,omitempty" toml:"period,omitempty" codec:"period,omitempty"`             // 秒
	Delay     *float64 `json:"delay,omitempty" yaml:"delay,omitempty" toml:"delay,omitempty" codec:"delay,omitempty"`                 // 秒
}

// CameraSetting は正規化された制御値
type CameraSetting struct {
	Ratio     float64 `json:"ratio" yaml:"ratio" toml:"ratio" codec:"ratio"`
	Automatic bool    `json:"automatic,omitempty" yaml:"automatic,omitempty" toml:"automatic,omitempty" codec:"automatic,omitempty"`
}

// CameraSettings はカメラ制御グループ
type CameraSettings struct {
	Brightness     *CameraSetting `json:"brightness,omitempty" yaml:"brightness,omitempty" toml:"brightness,omitempty" codec:"brightness,omitempty"`
	Exposure       *CameraSetting `json:"exposure,omitempty" yaml:"exposure,omitempty" toml:"exposure,omitempty" codec:"exposure,omitempty"`
	Focus          *CameraSetting `json:"focus,omitempty" yaml:"focus,omitempty" toml:"focus,omitempty" codec:"focus,omitempty"`
	Gain           *CameraSetting `json:"gain,omitempty" yaml:"gain,omitempty" toml:"gain,omitempty" codec:"gain,omitempty"`
	Gamma          *CameraSetting `json:"gamma,omitempty" yaml:"gamma,omitempty" toml:"gamma,omitempty" codec:"gamma,omitempty"`
	Hue            *CameraSetting `json:"hue,omitempty" yaml:"hue,omitempty" toml:"hue,omitempty" codec:"hue,omitempty"`
	Iris           *CameraSetting `json:"iris,omitempty" yaml:"iris,omitempty" toml:"iris,omitempty" codec:"iris,omitempty"`
	Saturation     *CameraSetting `json:"saturation,omitempty" yaml:"saturation,omitempty" toml:"saturation,omitempty" codec:"saturation,omitempty"`
	Sharpness      *CameraSetting `json:"sharpness,omitempty" yaml:"sharpness,omitempty" toml:"sharpness,omitempty" codec:"sharpness,omitempty"`
	Shutter        *CameraSetting `json:"shutter,omitempty" yaml:"shutter,omitempty" toml:"shutter,omitempty" codec:"shutter,omitempty"`
	WhiteBalanceBu *CameraSetting `json:"white_balance_bu,omitempty" yaml:"white_balance_bu,omitempty" toml:"white_balance_bu,omitempty" codec:"white_balance_bu,omitempty"`
	WhiteBalanceRv *CameraSetting `json:"white_balance_rv,omitempty" yaml:"white_balance_rv,omitempty" toml:"white_balance_rv,omitempty" codec:"white_balance_rv,omitempty"`
	Zoom           *CameraSetting `json:"zoom,omitempty" yaml:"zoom,omitempty" toml:"zoom,omitempty" codec:"zoom,omitempty"`
}

// CameraConfig はカメラ設定全体
type CameraConfig struct {
	Image    *ImageSettings    `json:"image,omitempty" yaml:"image,omitempty" toml:"image,omitempty" codec:"image,omitempty"`
	Sampling *SamplingSettings `json:"sampling,omitempty" yaml:"sampling,omitempty" toml:"sampling,omitempty" codec:"sampling,omitempty"`
	Camera   *CameraSettings   `json:"camera,omitempty" yaml:"camera,omitempty" toml:"camera,omitempty" codec:"camera,omitempty"`
}

// FieldSelector は取得するグループの名前
type FieldSelector struct {
	Fields []string `json:"fields" yaml:"fields" toml:"fields" codec:"fields"`
}

// Empty は GetConfig/SetConfig の空の応答
type Empty struct{}

func (s *CameraSettings) fields() []**CameraSetting {
	return []**CameraSetting{
		&s.Brightness, &s.Exposure, &s.Focus, &s.Gain, &s.Gamma, &s.Hue, &s.Iris,
		&s.Saturation, &s.Sharpness, &s.Shutter, &s.WhiteBalanceBu, &s.WhiteBalanceRv, &s.Zoom,
	}
}

func invalid(format string, args ...any) error {
	return status.Errorf(status.InvalidArgument, format, args...)
}

// Domain はドメインモデルに変換する。値の組み合わせが不正なら INVALID_ARGUMENT を返す
func (c *CameraConfig) Domain() (camera.Config, error) {
	var out camera.Config
	if c == nil {
		return out, nil
	}

	if img := c.Image; img != nil {
		out.Image = &camera.ImageSettings{}
		if r := img.Resolution; r != nil {
			out.Image.Resolution = &camera.Resolution{Width: r.Width, Height: r.Height}
		}
		if f := img.Format; f != nil {
			kind, ok := camera.ParseImageFormatKind(f.Format)
			if !ok {
				return out, invalid("不明な画像形式: %q", f.Format)
			}
			out.Image.Format = &camera.ImageFormat{Format: kind, Compression: f.Compression}
		}
		if cs := img.ColorSpace; cs != nil {
			v, ok := camera.ParseColorSpace(cs.Value)
			if !ok {
				return out, invalid("不明な色空間: %q", cs.Value)
			}
			out.Image.ColorSpace = &v
		}
		if p := img.Region; p != nil {
			poly := camera.BoundingPoly{Vertices: make([]camera.Vertex, 0, len(p.Vertices))}
			for _, v := range p.Vertices {
				poly.Vertices = append(poly.Vertices, camera.Vertex{X: v.X, Y: v.Y})
			}
			out.Image.Region = &poly
		}
	}

	if s := c.Sampling; s != nil {
		out.Sampling = &camera.SamplingSettings{}
		switch {
		case s.Frequency != nil && s.Period != nil:
			return out, invalid("frequency と period は同時に指定できません")
		case s.Frequency != nil:
			out.Sampling.Rate = camera.Frequency(*s.Frequency)
		case s.Period != nil:
			if !finite(*s.Period) {
				return out, status.Errorf(status.OutOfRange, "period の値 %v は範囲外です", *s.Period)
			}
			out.Sampling.Rate = camera.Period(seconds(*s.Period))
		}
		if s.Delay != nil {
			if !finite(*s.Delay) {
				return out, status.Errorf(status.OutOfRange, "delay の値 %v は範囲外です", *s.Delay)
			}
			d := seconds(*s.Delay)
			out.Sampling.Delay = &d
		}
	}

	if cam := c.Camera; cam != nil {
		out.Camera = &camera.CameraSettings{}
		for i, f := range cam.fields() {
			if *f == nil {
				continue
			}
			out.Camera.Set(camera.Controls[i], &camera.CameraSetting{Ratio: (*f).Ratio, Automatic: (*f).Automatic})
		}
	}

	return out, nil
}

// NewCameraConfig はドメインモデルから通信用レコードを作成する
func NewCameraConfig(c camera.Config) *CameraConfig {
	out := &CameraConfig{}

	if img := c.Image; img != nil {
		out.Image = &ImageSettings{}
		if r := img.Resolution; r != nil {
			out.Image.Resolution = &Resolution{Width: r.Width, Height: r.Height}
		}
		if f := img.Format; f != nil {
			out.Image.Format = &ImageFormat{Format: f.Format.String(), Compression: f.Compression}
		}
		if cs := img.ColorSpace; cs != nil {
			out.Image.ColorSpace = &ColorSpace{Value: cs.String()}
		}
		if p := img.Region; p != nil {
			poly := &BoundingPoly{Vertices: make([]Vertex, 0, len(p.Vertices))}
			for _, v := range p.Vertices {
				poly.Vertices = append(poly.Vertices, Vertex{X: v.X, Y: v.Y})
			}
			out.Image.Region = poly
		}
	}

	if s := c.Sampling; s != nil {
		out.Sampling = &SamplingSettings{}
		switch r := s.Rate.(type) {
		case camera.Frequency:
			f := float64(r)
			out.Sampling.Frequency = &f
		case camera.Period:
			p := time.Duration(r).Seconds()
			out.Sampling.Period = &p
		}
		if s.Delay != nil {
			d := s.Delay.Seconds()
			out.Sampling.Delay = &d
		}
	}

	if cam := c.Camera; cam != nil {
		out.Camera = &CameraSettings{}
		for i, f := range out.Camera.fields() {
			if v := cam.Get(camera.Controls[i]); v != nil {
				*f = &CameraSetting{Ratio: v.Ratio, Automatic: v.Automatic}
			}
		}
	}

	return out
}

// Domain はフィールド名をドメインのセレクタに変換する
func (s FieldSelector) Domain() (camera.FieldSelector, error) {
	out := make(camera.FieldSelector, 0, len(s.Fields))
	for _, name := range s.Fields {
		f, ok := camera.ParseField(name)
		if !ok {
			return nil, invalid("不明なフィールド: %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// NewFieldSelector はドメインのセレクタから通信用レコードを作成する
func NewFieldSelector(sel camera.FieldSelector) FieldSelector {
	out := FieldSelector{Fields: make([]string, 0, len(sel))}
	for _, f := range sel {
		out.Fields = append(out.Fields, f.String())
	}
	return out
}

// MarshalTimestamp は時刻を google.protobuf.Timestamp としてエンコードする
func MarshalTimestamp(t time.Time) ([]byte, error) {
	ts := timestamppb.New(t)
	if err := ts.CheckValid(); err != nil {
		return nil, fmt.Errorf("タイムスタンプが範囲外です: %w", err)
	}
	data, err := proto.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("タイムスタンプのエンコードに失敗: %w", err)
	}
	return data, nil
}

// UnmarshalTimestamp は google.protobuf.Timestamp を時刻に戻す
func UnmarshalTimestamp(data []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, fmt.Errorf("タイムスタンプのデコードに失敗: %w", err)
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("不正なタイムスタンプ: %w", err)
	}
	return ts.AsTime(), nil
}

// TimestampContentType は Timestamp トピックのコンテンツタイプ
const TimestampContentType = "application/x-protobuf; proto=google.protobuf.Timestamp"

// finite は秒数が時間に変換できる有限値かを返す
func finite(s float64) bool {
	return !math.IsNaN(s) && !math.IsInf(s, 0) && math.Abs(s) < math.MaxInt64/float64(time.Second)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
