package camera

import (
	"math"
	"reflect"
	"testing"
	"time"

	"camgateway/internal/status"
)

func TestFieldSelector_Expand(t *testing.T) {
	tests := []struct {
		name string
		sel  FieldSelector
		want []Field
	}{
		{"all", FieldSelector{FieldAll}, []Field{FieldImageSettings, FieldSamplingSettings, FieldCameraSettings}},
		{"all with duplicates", FieldSelector{FieldCameraSettings, FieldAll, FieldCameraSettings},
			[]Field{FieldCameraSettings, FieldImageSettings, FieldSamplingSettings}},
		{"single", FieldSelector{FieldSamplingSettings}, []Field{FieldSamplingSettings}},
		{"empty", FieldSelector{}, []Field{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sel.Expand(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSamplingRate_Hz(t *testing.T) {
	if got := Period(200 * time.Millisecond).Hz(); math.Abs(got-5) > 1e-9 {
		t.Errorf("Expected 5Hz, got %v", got)
	}
	if got := Frequency(30).Hz(); got != 30 {
		t.Errorf("Expected 30Hz, got %v", got)
	}
	if got := Period(0).Hz(); got != 0 {
		t.Errorf("Expected 0 for zero period, got %v", got)
	}
}

func TestCameraSettings_GetSet(t *testing.T) {
	var s CameraSettings
	for i, c := range Controls {
		s.Set(c, &CameraSetting{Ratio: float64(i) / 100})
	}
	if s.Zoom == nil || s.Zoom.Ratio != 0.12 {
		t.Errorf("Unexpected zoom: %+v", s.Zoom)
	}
	if got := s.Get(ControlWhiteBalanceBlue); got == nil || got.Ratio != 0.10 {
		t.Errorf("Unexpected white balance blue: %+v", got)
	}
	if s.Get(Control(99)) != nil {
		t.Error("Expected nil for unknown control")
	}
}

func TestEnumNames(t *testing.T) {
	if f, ok := ParseImageFormatKind("WebP"); !ok || f != FormatWebP {
		t.Error("Expected WebP to parse")
	}
	if cs, ok := ParseColorSpace("GRAY"); !ok || cs != ColorSpaceGray {
		t.Error("Expected GRAY to parse")
	}
	if f, ok := ParseField("ALL"); !ok || f != FieldAll {
		t.Error("Expected ALL to parse")
	}
	if _, ok := ParseColorSpace("CMYK"); ok {
		t.Error("Expected CMYK to be rejected")
	}
}

func TestConfig_Validate(t *testing.T) {
	negative := -time.Second

	tests := []struct {
		name string
		cfg  Config
		want status.Code
	}{
		{"empty", Config{}, status.OK},
		{"valid", Config{
			Image:    &ImageSettings{Resolution: &Resolution{Width: 640, Height: 480}},
			Sampling: &SamplingSettings{Rate: Frequency(10)},
			Camera:   &CameraSettings{Gain: &CameraSetting{Ratio: 1}},
		}, status.OK},
		{"zero resolution", Config{Image: &ImageSettings{Resolution: &Resolution{}}}, status.InvalidArgument},
		{"compression", Config{Image: &ImageSettings{Format: &ImageFormat{Format: FormatJPEG, Compression: ratio(-0.1)}}}, status.OutOfRange},
		{"one vertex", Config{Image: &ImageSettings{Region: &BoundingPoly{Vertices: []Vertex{{1, 1}}}}}, status.InvalidArgument},
		{"three vertices", Config{Image: &ImageSettings{Region: &BoundingPoly{Vertices: []Vertex{{0, 0}, {1, 1}, {2, 2}}}}}, status.Unimplemented},
		{"zero rate", Config{Sampling: &SamplingSettings{Rate: Frequency(0)}}, status.OutOfRange},
		{"negative delay", Config{Sampling: &SamplingSettings{Delay: &negative}}, status.OutOfRange},
		{"ratio", Config{Camera: &CameraSettings{Hue: &CameraSetting{Ratio: 1.01}}}, status.OutOfRange},
		{"NaN ratio", Config{Camera: &CameraSettings{Gain: &CameraSetting{Ratio: math.NaN()}}}, status.OutOfRange},
		{"Inf ratio", Config{Camera: &CameraSettings{Gain: &CameraSetting{Ratio: math.Inf(1)}}}, status.OutOfRange},
		{"NaN compression", Config{Image: &ImageSettings{Format: &ImageFormat{Format: FormatJPEG, Compression: ratio(math.NaN())}}}, status.OutOfRange},
		{"NaN frequency", Config{Sampling: &SamplingSettings{Rate: Frequency(math.NaN())}}, status.OutOfRange},
		{"Inf frequency", Config{Sampling: &SamplingSettings{Rate: Frequency(math.Inf(1))}}, status.OutOfRange},
		{"NaN vertex", Config{Image: &ImageSettings{Region: &BoundingPoly{Vertices: []Vertex{{math.NaN(), 0}, {10, 10}}}}}, status.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.CodeOf(tt.cfg.Validate()); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}
