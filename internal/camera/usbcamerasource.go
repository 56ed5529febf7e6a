package camera

import (
	"context"
	"errors"
	"math"
	"strconv"

	"camgateway/internal/status"
)

// controlBinding はカメラ制御項目とV4L2コントロールIDの対応
type controlBinding struct {
	value   uint32
	auto    uint32 // 0 なら自動モードなし
	autoOn  int32
	autoOff int32
}

// v4l2Bindings はUVCカメラで一般的なコントロール
var v4l2Bindings = map[Control]controlBinding{
	ControlBrightness:       {value: cidBrightness},
	ControlExposure:         {value: cidExposureBias},
	ControlFocus:            {value: cidFocusAbsolute, auto: cidFocusAuto, autoOn: 1, autoOff: 0},
	ControlGain:             {value: cidGain},
	ControlGamma:            {value: cidGamma},
	ControlHue:              {value: cidHue, auto: cidHueAuto, autoOn: 1, autoOff: 0},
	ControlIris:             {value: cidIrisAbsolute},
	ControlSaturation:       {value: cidSaturation},
	ControlSharpness:        {value: cidSharpness},
	ControlShutter:          {value: cidExposureAbsolute, auto: cidExposureAuto, autoOn: 3, autoOff: 1},
	ControlWhiteBalanceBlue: {value: cidBlueBalance, auto: cidAutoWhiteBalance, autoOn: 1, autoOff: 0},
	ControlWhiteBalanceRed:  {value: cidRedBalance, auto: cidAutoWhiteBalance, autoOn: 1, autoOff: 0},
	ControlZoom:             {value: cidZoomAbsolute},
}

// V4L2Driver はUSBカメラ用のドライバ
//
// 映像はffmpegで取得し、カメラ制御は go4vl でデバイスを直接読み書きする。
type V4L2Driver struct {
	*ffmpegDriver
	open     controlOpener
	dev      controlDevice
	controls map[uint32]v4l2Control
}

// NewV4L2Driver は新しいV4L2Driverを作成する
func NewV4L2Driver() *V4L2Driver {
	return newV4L2Driver(openControlDevice)
}

func newV4L2Driver(open controlOpener) *V4L2Driver {
	return &V4L2Driver{
		ffmpegDriver: newFFmpegDriver("v4l2", v4l2Input),
		open:         open,
	}
}

func v4l2Input(device string, r Resolution, fps float64) []string {
	return []string{
		"-f", "v4l2",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-video_size", r.String(),
		"-i", device,
	}
}

// Connect はデバイスに接続して制御項目を読み込む
func (d *V4L2Driver) Connect(ctx context.Context, info DeviceInfo) error {
	dev, err := d.open(info.Device)
	if err != nil {
		return internalError("接続", err)
	}
	controls, err := dev.Controls()
	if err != nil {
		dev.Close()
		return internalError("制御項目の取得", err)
	}
	d.dev = dev
	d.controls = make(map[uint32]v4l2Control, len(controls))
	for _, c := range controls {
		d.controls[c.ID] = c
	}
	return d.ffmpegDriver.Connect(ctx, info)
}

// Close はキャプチャを停止してデバイスを閉じる
func (d *V4L2Driver) Close() error {
	err := d.ffmpegDriver.Close()
	if d.dev != nil {
		err = errors.Join(err, d.dev.Close())
		d.dev = nil
	}
	return err
}

// resolve はカメラ制御項目に対応するコントロールを探す
func (d *V4L2Driver) resolve(c Control) (v4l2Control, controlBinding, error) {
	b, ok := v4l2Bindings[c]
	if !ok || d.dev == nil {
		return v4l2Control{}, b, notImplemented(c.String())
	}
	value, ok := d.controls[b.value]
	if !ok {
		return value, b, notImplemented(c.String())
	}
	if _, ok := d.controls[b.auto]; !ok {
		b.auto = 0
	}
	return value, b, nil
}

// SetCameraSetting はカメラ制御値を書き込む
func (d *V4L2Driver) SetCameraSetting(c Control, s CameraSetting) error {
	if err := checkRatio(c.String(), s.Ratio); err != nil {
		return err
	}
	value, b, err := d.resolve(c)
	if err != nil {
		return err
	}

	if s.Automatic {
		if b.auto == 0 {
			return status.Errorf(status.Unimplemented, "'%s' の自動モードはこのカメラでは使えません", c)
		}
		if err := d.dev.Set(b.auto, b.autoOn); err != nil {
			return controlStatus(c, "自動モード設定", true, err)
		}
		return nil
	}

	// 自動モードを切ると値のコントロールが書き込めるようになる
	if b.auto != 0 {
		if err := d.dev.Set(b.auto, b.autoOff); err != nil {
			return controlStatus(c, "手動モード設定", true, err)
		}
	}

	v := int32(math.Round(value.opRange().ToValue(s.Ratio)))
	if err := d.dev.Set(value.ID, v); err != nil {
		return controlStatus(c, "設定", true, err)
	}
	return nil
}

// GetCameraSetting はカメラ制御値を読み出す
func (d *V4L2Driver) GetCameraSetting(c Control) (CameraSetting, error) {
	value, b, err := d.resolve(c)
	if err != nil {
		return CameraSetting{}, err
	}

	v, err := d.dev.Get(value.ID)
	if err != nil {
		return CameraSetting{}, controlStatus(c, "取得", false, err)
	}
	setting := CameraSetting{Ratio: value.opRange().ToRatio(float64(v))}

	if b.auto != 0 {
		a, err := d.dev.Get(b.auto)
		if err != nil {
			return CameraSetting{}, controlStatus(c, "自動モード取得", false, err)
		}
		setting.Automatic = a != b.autoOff
	}
	return setting, nil
}

