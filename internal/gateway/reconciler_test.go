package gateway

import (
	"math"
	"testing"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/status"
)

func ptr[T any](v T) *T { return &v }

func TestReconciler_ApplyOrder(t *testing.T) {
	tests := []struct {
		name      string
		failOp    string
		failCode  status.Code
		wantCalls map[string]int
	}{
		{
			name: "all fields applied",
			wantCalls: map[string]int{
				"SetResolution": 1, "SetColorSpace": 1, "SetImageFormat": 1,
				"SetSamplingRate": 1, "SetDelay": 1, "SetGain": 1, "SetZoom": 1,
			},
		},
		{
			name:     "second image field fails",
			failOp:   "SetColorSpace",
			failCode: status.OutOfRange,
			wantCalls: map[string]int{
				"SetResolution": 1, "SetColorSpace": 1, "SetImageFormat": 0,
				"SetSamplingRate": 0, "SetGain": 0,
			},
		},
		{
			name:     "sampling fails before camera",
			failOp:   "SetSamplingRate",
			failCode: status.Unimplemented,
			wantCalls: map[string]int{
				"SetImageFormat": 1, "SetSamplingRate": 1, "SetDelay": 0, "SetGain": 0,
			},
		},
		{
			name:     "earlier control stops later controls",
			failOp:   "SetGain",
			failCode: status.PermissionDenied,
			wantCalls: map[string]int{
				"SetDelay": 1, "SetGain": 1, "SetZoom": 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := camera.NewMockDriver()
			if tt.failOp != "" {
				driver.SetFailure(tt.failOp, status.New(tt.failCode, "injected"))
			}
			gray := camera.ColorSpaceGray
			cfg := camera.Config{
				Image: &camera.ImageSettings{
					Resolution: &camera.Resolution{Width: 320, Height: 240},
					ColorSpace: &gray,
					Format:     &camera.ImageFormat{Format: camera.FormatPNG},
				},
				Sampling: &camera.SamplingSettings{
					Rate:  camera.Frequency(10),
					Delay: ptr(5 * time.Millisecond),
				},
				Camera: &camera.CameraSettings{
					Gain: &camera.CameraSetting{Ratio: 0.4},
					Zoom: &camera.CameraSetting{Ratio: 0.1},
				},
			}

			err := NewReconciler(driver).Apply(cfg)
			if got := status.CodeOf(err); got != tt.failCode {
				t.Errorf("Expected %v, got %v (%v)", tt.failCode, got, err)
			}
			for op, want := range tt.wantCalls {
				if got := driver.Calls(op); got != want {
					t.Errorf("%s: expected %d calls, got %d", op, want, got)
				}
			}
		})
	}
}

func TestReconciler_ApplyNoRollback(t *testing.T) {
	driver := camera.NewMockDriver()
	driver.SetFailure("SetImageFormat", status.New(status.InvalidArgument, "injected"))

	cfg := camera.Config{Image: &camera.ImageSettings{
		Resolution: &camera.Resolution{Width: 800, Height: 600},
		Format:     &camera.ImageFormat{Format: camera.FormatJPEG},
	}}
	if err := NewReconciler(driver).Apply(cfg); err == nil {
		t.Fatal("Expected error")
	}

	r, _ := driver.GetResolution()
	if r != (camera.Resolution{Width: 800, Height: 600}) {
		t.Errorf("Expected resolution to stay applied, got %v", r)
	}
}

func TestReconciler_ApplyValidatesFirst(t *testing.T) {
	driver := camera.NewMockDriver()
	cfg := camera.Config{
		Image:  &camera.ImageSettings{Resolution: &camera.Resolution{Width: 320, Height: 240}},
		Camera: &camera.CameraSettings{Brightness: &camera.CameraSetting{Ratio: 1.5}},
	}

	err := NewReconciler(driver).Apply(cfg)
	if status.CodeOf(err) != status.OutOfRange {
		t.Errorf("Expected OUT_OF_RANGE, got %v", err)
	}
	if driver.Calls("SetResolution") != 0 {
		t.Error("Expected no driver calls before validation passes")
	}
}

func TestReconciler_ApplyRejectsNaN(t *testing.T) {
	tests := []struct {
		name string
		cfg  camera.Config
		op   string
	}{
		{"gain", camera.Config{Camera: &camera.CameraSettings{Gain: &camera.CameraSetting{Ratio: math.NaN()}}}, "SetGain"},
		{"frequency", camera.Config{Sampling: &camera.SamplingSettings{Rate: camera.Frequency(math.NaN())}}, "SetSamplingRate"},
		{"infinite frequency", camera.Config{Sampling: &camera.SamplingSettings{Rate: camera.Frequency(math.Inf(1))}}, "SetSamplingRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := camera.NewMockDriver()
			err := NewReconciler(driver).Apply(tt.cfg)
			if status.CodeOf(err) != status.OutOfRange {
				t.Errorf("Expected OUT_OF_RANGE, got %v", err)
			}
			if driver.Calls(tt.op) != 0 {
				t.Errorf("Expected %s not to be called", tt.op)
			}
		})
	}

	// ドライバに直接渡した場合も拒否する
	driver := camera.NewMockDriver()
	if err := driver.SetSamplingRate(camera.Frequency(math.NaN())); status.CodeOf(err) != status.OutOfRange {
		t.Errorf("Expected OUT_OF_RANGE from driver, got %v", err)
	}
	if err := driver.SetCameraSetting(camera.ControlGain, camera.CameraSetting{Ratio: math.NaN()}); status.CodeOf(err) != status.OutOfRange {
		t.Errorf("Expected OUT_OF_RANGE from driver, got %v", err)
	}
}

func TestReconciler_ReadAllCallsEachGetterOnce(t *testing.T) {
	expanded := camera.FieldSelector{camera.FieldImageSettings, camera.FieldSamplingSettings, camera.FieldCameraSettings}
	withAll := camera.FieldSelector{camera.FieldAll, camera.FieldCameraSettings, camera.FieldImageSettings}

	counts := func(sel camera.FieldSelector) map[string]int {
		driver := camera.NewMockDriver()
		if _, err := NewReconciler(driver).Read(sel); err != nil {
			t.Fatalf("Read(%v) failed: %v", sel, err)
		}
		out := make(map[string]int)
		for _, op := range []string{"GetResolution", "GetColorSpace", "GetImageFormat", "GetRegionOfInterest",
			"GetSamplingRate", "GetDelay", "GetBrightness", "GetZoom"} {
			out[op] = driver.Calls(op)
		}
		return out
	}

	want := counts(expanded)
	got := counts(withAll)
	for op, n := range want {
		if n != 1 {
			t.Errorf("%s: expected one call for the expanded selector, got %d", op, n)
		}
		if got[op] != n {
			t.Errorf("%s: expected %d calls with ALL, got %d", op, n, got[op])
		}
	}
}

func TestReconciler_ReadOmitsUnimplemented(t *testing.T) {
	driver := camera.NewMockDriver()
	driver.SetUnsupported(camera.ControlZoom)
	driver.SetFailure("GetDelay", status.New(status.Unimplemented, "no delay"))

	cfg, err := NewReconciler(driver).Read(camera.FieldSelector{camera.FieldAll})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if cfg.Image == nil || cfg.Sampling == nil || cfg.Camera == nil {
		t.Fatalf("Expected all groups present, got %+v", cfg)
	}
	if cfg.Camera.Zoom != nil {
		t.Error("Expected unsupported zoom to be omitted")
	}
	if cfg.Camera.Brightness == nil || cfg.Camera.Brightness.Ratio != 0.5 {
		t.Errorf("Expected brightness to be populated, got %+v", cfg.Camera.Brightness)
	}
	if cfg.Sampling.Delay != nil {
		t.Error("Expected unimplemented delay to be omitted")
	}
	if cfg.Sampling.Rate == nil {
		t.Error("Expected sampling rate to be populated")
	}
}

func TestReconciler_ReadSelectedGroupsOnly(t *testing.T) {
	driver := camera.NewMockDriver()
	cfg, err := NewReconciler(driver).Read(camera.FieldSelector{camera.FieldSamplingSettings})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if cfg.Image != nil || cfg.Camera != nil || cfg.Sampling == nil {
		t.Errorf("Expected only sampling group, got %+v", cfg)
	}
	if driver.Calls("GetResolution") != 0 {
		t.Error("Expected image getters not to be called")
	}
}

func TestReconciler_ReadAbortsOnOtherErrors(t *testing.T) {
	driver := camera.NewMockDriver()
	driver.SetFailure("GetGain", status.New(status.PermissionDenied, "auto mode"))

	_, err := NewReconciler(driver).Read(camera.FieldSelector{camera.FieldAll})
	if status.CodeOf(err) != status.PermissionDenied {
		t.Errorf("Expected PERMISSION_DENIED, got %v", err)
	}
	if driver.Calls("GetZoom") != 0 {
		t.Error("Expected read to stop at the failing getter")
	}
}
