package camera

import (
	"context"
	"errors"
	"math"
	"strings"
	"syscall"
	"testing"

	"camgateway/internal/status"
)

func sampleControls() []v4l2Control {
	return []v4l2Control{
		{ID: cidBrightness, Name: "Brightness", Min: -64, Max: 64, Step: 1},
		{ID: cidSaturation, Name: "Saturation", Min: 0, Max: 128, Step: 1},
		{ID: cidAutoWhiteBalance, Name: "White Balance, Automatic", Min: 0, Max: 1, Step: 1},
		{ID: cidSharpness, Name: "Sharpness", Min: 0, Max: 6, Step: 1},
		{ID: cidGain, Name: "Gain", Min: 0, Max: 100, Step: 1},
		{ID: cidExposureAuto, Name: "Auto Exposure", Min: 0, Max: 3, Step: 1},
		{ID: cidExposureAbsolute, Name: "Exposure Time, Absolute", Min: 1, Max: 5000, Step: 1},
		{ID: cidFocusAbsolute, Name: "Focus, Absolute", Min: 0, Max: 250, Step: 5},
	}
}

// fakeControls はV4L2デバイスのコントロールを再現する
type fakeControls struct {
	controls  []v4l2Control
	values    map[uint32]int32
	readOnly  map[uint32]bool
	writeOnly map[uint32]bool
	failing   map[uint32]error
	closed    bool
}

func newFakeControls() *fakeControls {
	return &fakeControls{
		controls: sampleControls(),
		values: map[uint32]int32{
			cidBrightness:       0,
			cidSaturation:       64,
			cidAutoWhiteBalance: 1,
			cidSharpness:        3,
			cidGain:             0,
			cidExposureAuto:     3,
			cidExposureAbsolute: 157,
			cidFocusAbsolute:    0,
		},
		readOnly:  map[uint32]bool{},
		writeOnly: map[uint32]bool{},
		failing:   map[uint32]error{},
	}
}

func (f *fakeControls) Controls() ([]v4l2Control, error) { return f.controls, nil }

func (f *fakeControls) Get(id uint32) (int32, error) {
	if err := f.failing[id]; err != nil {
		return 0, err
	}
	v, ok := f.values[id]
	switch {
	case !ok:
		return 0, syscall.EINVAL
	case f.writeOnly[id]:
		return 0, syscall.EACCES
	}
	return v, nil
}

func (f *fakeControls) Set(id uint32, value int32) error {
	if err := f.failing[id]; err != nil {
		return err
	}
	if _, ok := f.values[id]; !ok {
		return syscall.EINVAL
	}
	if f.readOnly[id] {
		return syscall.EACCES
	}
	f.values[id] = value
	// 自動露出中は露出時間を書き込めない
	if id == cidExposureAuto {
		f.readOnly[cidExposureAbsolute] = value != 1
	}
	return nil
}

func (f *fakeControls) Close() error {
	f.closed = true
	return nil
}

func connectedV4L2(t *testing.T) (*V4L2Driver, *fakeControls) {
	t.Helper()
	fake := newFakeControls()
	fake.readOnly[cidExposureAbsolute] = true
	d := newV4L2Driver(func(device string) (controlDevice, error) {
		if device != "/dev/video0" {
			t.Fatalf("unexpected device: %s", device)
		}
		return fake, nil
	})
	if err := d.Connect(context.Background(), DeviceInfo{Kind: DriverV4L2, Device: "/dev/video0"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return d, fake
}

func TestV4L2Control_OpRange(t *testing.T) {
	tests := []struct {
		name    string
		control v4l2Control
		want    OpRange
	}{
		{"int", v4l2Control{Min: -64, Max: 64, Step: 1}, OpRange{Min: -64, Max: 64, Step: 1}},
		{"bool", v4l2Control{Min: 0, Max: 1, Step: 1}, OpRange{Min: 0, Max: 1, Step: 1}},
		{"button", v4l2Control{}, OpRange{Min: 0, Max: 1, Step: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.control.opRange(); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestV4L2Driver_Brightness(t *testing.T) {
	d, fake := connectedV4L2(t)

	if err := d.SetCameraSetting(ControlBrightness, CameraSetting{Ratio: 0.75}); err != nil {
		t.Fatalf("SetCameraSetting failed: %v", err)
	}
	if got := fake.values[cidBrightness]; got != 32 {
		t.Errorf("Expected brightness 32, got %d", got)
	}

	s, err := d.GetCameraSetting(ControlBrightness)
	if err != nil {
		t.Fatalf("GetCameraSetting failed: %v", err)
	}
	if math.Abs(s.Ratio-0.75) > 1e-9 || s.Automatic {
		t.Errorf("Unexpected setting: %+v", s)
	}
}

func TestV4L2Driver_ShutterManualAndAuto(t *testing.T) {
	d, fake := connectedV4L2(t)

	s, err := d.GetCameraSetting(ControlShutter)
	if err != nil {
		t.Fatalf("GetCameraSetting failed: %v", err)
	}
	if !s.Automatic {
		t.Error("Expected shutter to start in automatic mode")
	}

	// 手動にすると露出時間が書き込めるようになる
	if err := d.SetCameraSetting(ControlShutter, CameraSetting{Ratio: 1}); err != nil {
		t.Fatalf("SetCameraSetting failed: %v", err)
	}
	if fake.values[cidExposureAuto] != 1 {
		t.Error("Expected manual exposure mode")
	}
	if fake.values[cidExposureAbsolute] != 5000 {
		t.Errorf("Expected exposure 5000, got %d", fake.values[cidExposureAbsolute])
	}

	if err := d.SetCameraSetting(ControlShutter, CameraSetting{Automatic: true}); err != nil {
		t.Fatalf("SetCameraSetting(auto) failed: %v", err)
	}
	if fake.values[cidExposureAuto] != 3 {
		t.Error("Expected aperture priority mode")
	}
}

func TestV4L2Driver_Errors(t *testing.T) {
	d, fake := connectedV4L2(t)
	fake.readOnly[cidSharpness] = true
	fake.writeOnly[cidSaturation] = true
	fake.failing[cidFocusAbsolute] = syscall.EIO
	fake.failing[cidGain] = syscall.ENOTTY

	setTests := []struct {
		name    string
		control Control
		setting CameraSetting
		want    status.Code
	}{
		{"missing control", ControlZoom, CameraSetting{Ratio: 0.5}, status.Unimplemented},
		{"unsupported ioctl", ControlGain, CameraSetting{Ratio: 0.5}, status.Unimplemented},
		{"read-only control", ControlSharpness, CameraSetting{Ratio: 0.5}, status.PermissionDenied},
		{"device failure", ControlFocus, CameraSetting{Ratio: 0.5}, status.InternalError},
		{"no auto mode", ControlBrightness, CameraSetting{Automatic: true}, status.Unimplemented},
		{"ratio out of range", ControlBrightness, CameraSetting{Ratio: 2}, status.OutOfRange},
		{"ratio NaN", ControlBrightness, CameraSetting{Ratio: math.NaN()}, status.OutOfRange},
	}

	for _, tt := range setTests {
		t.Run("set "+tt.name, func(t *testing.T) {
			err := d.SetCameraSetting(tt.control, tt.setting)
			if got := status.CodeOf(err); got != tt.want {
				t.Errorf("Expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}

	getTests := []struct {
		name    string
		control Control
		want    status.Code
	}{
		{"missing control", ControlIris, status.Unimplemented},
		{"write-only control", ControlSaturation, status.PermissionDenied},
		{"device failure", ControlFocus, status.InternalError},
	}

	for _, tt := range getTests {
		t.Run("get "+tt.name, func(t *testing.T) {
			_, err := d.GetCameraSetting(tt.control)
			if got := status.CodeOf(err); got != tt.want {
				t.Errorf("Expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestControlStatus_Sentinels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		write bool
		want  status.Code
	}{
		{"no control", errNoControl, true, status.Unimplemented},
		{"wrapped access", errors.Join(errControlAccess, syscall.EBUSY), true, status.PermissionDenied},
		{"read denied", syscall.EPERM, false, status.PermissionDenied},
		{"other", errors.New("boom"), false, status.InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := controlStatus(ControlGain, "test", tt.write, tt.err)
			if got := status.CodeOf(err); got != tt.want {
				t.Errorf("Expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestV4L2Driver_ConnectFailure(t *testing.T) {
	d := newV4L2Driver(func(string) (controlDevice, error) {
		return nil, syscall.ENOENT
	})
	err := d.Connect(context.Background(), DeviceInfo{Kind: DriverV4L2, Device: "/dev/video9"})
	if status.CodeOf(err) != status.InternalError {
		t.Errorf("Expected INTERNAL_ERROR, got %v", err)
	}
	if _, err := d.GetCameraSetting(ControlBrightness); status.CodeOf(err) != status.Unimplemented {
		t.Errorf("Expected UNIMPLEMENTED without device, got %v", err)
	}
}

func TestV4L2Driver_CloseReleasesDevice(t *testing.T) {
	d, fake := connectedV4L2(t)
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fake.closed {
		t.Error("Expected control device to be closed")
	}
}

func TestV4L2Driver_ImageSettingsWhileIdle(t *testing.T) {
	d, _ := connectedV4L2(t)

	if err := d.SetResolution(Resolution{Width: 640, Height: 480}); err != nil {
		t.Fatalf("SetResolution failed: %v", err)
	}
	if err := d.SetColorSpace(ColorSpaceGray); err != nil {
		t.Fatalf("SetColorSpace failed: %v", err)
	}
	if err := d.SetColorSpace(ColorSpaceHSV); status.CodeOf(err) != status.InvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT for HSV, got %v", err)
	}
	if err := d.SetRegionOfInterest(BoundingPoly{Vertices: []Vertex{{10, 20}, {110, 220}}}); err != nil {
		t.Fatalf("SetRegionOfInterest failed: %v", err)
	}
	if err := d.SetDelay(0); status.CodeOf(err) != status.Unimplemented {
		t.Errorf("Expected UNIMPLEMENTED for delay, got %v", err)
	}

	args := strings.Join(d.args(), " ")
	for _, want := range []string{"-video_size 640x480", "crop=100:200:10:20", "format=gray", "-i /dev/video0"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected ffmpeg args to contain %q: %s", want, args)
		}
	}

	if d.IsCapturing() {
		t.Error("Expected driver to remain idle")
	}
}
