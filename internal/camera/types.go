package camera

import (
	"context"
	"fmt"
	"time"
)

// Resolution は画像の解像度を表す
type Resolution struct {
	Width  uint32 // 幅
	Height uint32 // 高さ
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ImageFormatKind は画像のエンコード形式
type ImageFormatKind int

const (
	FormatJPEG ImageFormatKind = iota
	FormatPNG
	FormatWebP
)

var formatNames = []string{"JPEG", "PNG", "WebP"}

func (k ImageFormatKind) String() string {
	if int(k) >= 0 && int(k) < len(formatNames) {
		return formatNames[k]
	}
	return fmt.Sprintf("ImageFormatKind(%d)", int(k))
}

// ParseImageFormatKind は名前から画像形式を取得する
func ParseImageFormatKind(name string) (ImageFormatKind, bool) {
	for i, n := range formatNames {
		if n == name {
			return ImageFormatKind(i), true
		}
	}
	return 0, false
}

// ImageFormat は画像形式と圧縮率を表す
type ImageFormat struct {
	Format ImageFormatKind
	// Compression は 0.0〜1.0 の圧縮率。nil の場合は形式ごとの既定値
	Compression *float64
}

// ColorSpace は色空間を表す
type ColorSpace int

const (
	ColorSpaceRGB ColorSpace = iota
	ColorSpaceGray
	ColorSpaceYCbCr
	ColorSpaceHSV
)

var colorSpaceNames = []string{"RGB", "GRAY", "YCbCr", "HSV"}

func (c ColorSpace) String() string {
	if int(c) >= 0 && int(c) < len(colorSpaceNames) {
		return colorSpaceNames[c]
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

// ParseColorSpace は名前から色空間を取得する
func ParseColorSpace(name string) (ColorSpace, bool) {
	for i, n := range colorSpaceNames {
		if n == name {
			return ColorSpace(i), true
		}
	}
	return 0, false
}

// Vertex は画像上の座標
type Vertex struct {
	X float64
	Y float64
}

// BoundingPoly は関心領域。左上と右下の2頂点で矩形を表す
type BoundingPoly struct {
	Vertices []Vertex
}

// ImageSettings は画像グループの設定
type ImageSettings struct {
	Resolution *Resolution
	Format     *ImageFormat
	ColorSpace *ColorSpace
	Region     *BoundingPoly
}

// SamplingRate は周波数または周期のどちらか一方を表す
type SamplingRate interface {
	// Hz はサンプリングレートを周波数で返す
	Hz() float64
	isSamplingRate()
}

// Frequency はHz単位のサンプリングレート
type Frequency float64

// Hz は周波数を返す
func (f Frequency) Hz() float64 { return float64(f) }

func (Frequency) isSamplingRate() {}

// Period はフレーム間隔で表したサンプリングレート
type Period time.Duration

// Hz は周期を周波数に換算して返す
func (p Period) Hz() float64 {
	if p <= 0 {
		return 0
	}
	return float64(time.Second) / float64(p)
}

func (Period) isSamplingRate() {}

// SamplingSettings はサンプリンググループの設定
type SamplingSettings struct {
	Rate  SamplingRate
	Delay *time.Duration
}

// CameraSetting はカメラ制御値。Ratio は 0.0〜1.0 に正規化される
type CameraSetting struct {
	Ratio     float64
	Automatic bool
}

// Control はカメラ制御項目を表す
type Control int

const (
	ControlBrightness Control = iota
	ControlExposure
	ControlFocus
	ControlGain
	ControlGamma
	ControlHue
	ControlIris
	ControlSaturation
	ControlSharpness
	ControlShutter
	ControlWhiteBalanceBlue
	ControlWhiteBalanceRed
	ControlZoom
)

// Controls は設定の適用と取得で使う固定順序
var Controls = []Control{
	ControlBrightness,
	ControlExposure,
	ControlFocus,
	ControlGain,
	ControlGamma,
	ControlHue,
	ControlIris,
	ControlSaturation,
	ControlSharpness,
	ControlShutter,
	ControlWhiteBalanceBlue,
	ControlWhiteBalanceRed,
	ControlZoom,
}

var controlNames = []string{
	"Brightness", "Exposure", "Focus", "Gain", "Gamma", "Hue", "Iris",
	"Saturation", "Sharpness", "Shutter", "WhiteBalanceBlue", "WhiteBalanceRed", "Zoom",
}

func (c Control) String() string {
	if int(c) >= 0 && int(c) < len(controlNames) {
		return controlNames[c]
	}
	return fmt.Sprintf("Control(%d)", int(c))
}

// CameraSettings はカメラ制御グループの設定
type CameraSettings struct {
	Brightness       *CameraSetting
	Exposure         *CameraSetting
	Focus            *CameraSetting
	Gain             *CameraSetting
	Gamma            *CameraSetting
	Hue              *CameraSetting
	Iris             *CameraSetting
	Saturation       *CameraSetting
	Sharpness        *CameraSetting
	Shutter          *CameraSetting
	WhiteBalanceBlue *CameraSetting
	WhiteBalanceRed  *CameraSetting
	Zoom             *CameraSetting
}

func (s *CameraSettings) field(c Control) **CameraSetting {
	switch c {
	case ControlBrightness:
		return &s.Brightness
	case ControlExposure:
		return &s.Exposure
	case ControlFocus:
		return &s.Focus
	case ControlGain:
		return &s.Gain
	case ControlGamma:
		return &s.Gamma
	case ControlHue:
		return &s.Hue
	case ControlIris:
		return &s.Iris
	case ControlSaturation:
		return &s.Saturation
	case ControlSharpness:
		return &s.Sharpness
	case ControlShutter:
		return &s.Shutter
	case ControlWhiteBalanceBlue:
		return &s.WhiteBalanceBlue
	case ControlWhiteBalanceRed:
		return &s.WhiteBalanceRed
	case ControlZoom:
		return &s.Zoom
	}
	return nil
}

// Get は制御項目の値を返す。未設定なら nil
func (s *CameraSettings) Get(c Control) *CameraSetting {
	if f := s.field(c); f != nil {
		return *f
	}
	return nil
}

// Set は制御項目の値を設定する
func (s *CameraSettings) Set(c Control, v *CameraSetting) {
	if f := s.field(c); f != nil {
		*f = v
	}
}

// Config はカメラ設定全体。nil のグループは対象外を意味する
type Config struct {
	Image    *ImageSettings
	Sampling *SamplingSettings
	Camera   *CameraSettings
}

// Field は取得対象のグループ
type Field int

const (
	FieldImageSettings Field = iota
	FieldSamplingSettings
	FieldCameraSettings
	FieldAll
)

var fieldNames = []string{"IMAGE_SETTINGS", "SAMPLING_SETTINGS", "CAMERA_SETTINGS", "ALL"}

func (f Field) String() string {
	if int(f) >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField は名前から Field を取得する
func ParseField(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// FieldSelector は取得するグループの集合
type FieldSelector []Field

// Expand は ALL を3グループに展開し、重複を除いたグループを返す
func (s FieldSelector) Expand() []Field {
	seen := make(map[Field]bool, 3)
	groups := make([]Field, 0, 3)
	add := func(f Field) {
		if !seen[f] {
			seen[f] = true
			groups = append(groups, f)
		}
	}

	for _, f := range s {
		if f == FieldAll {
			add(FieldImageSettings)
			add(FieldSamplingSettings)
			add(FieldCameraSettings)
			continue
		}
		add(f)
	}
	return groups
}

// Image はドライバから取得した1フレーム
type Image struct {
	Data       []byte
	Format     ImageFormatKind
	Resolution Resolution
}

// Empty はフレームが空かどうかを返す
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// DriverKind はドライバの種類
type DriverKind string

const (
	DriverV4L2 DriverKind = "v4l2"
	DriverX11  DriverKind = "x11"
	DriverMock DriverKind = "mock"
)

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Kind        DriverKind   // 対応するドライバ
	Device      string       // デバイスパスまたはディスプレイ
	Name        string       // デバイス名
	Serial      string       // シリアルまたはバス情報
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるピクセルフォーマット
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// FindCameras は接続可能なカメラを列挙する
	FindCameras(ctx context.Context) ([]DeviceInfo, error)
}
