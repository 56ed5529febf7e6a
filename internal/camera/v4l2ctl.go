package camera

import (
	"errors"
	"fmt"
	"syscall"
)

// V4L2のコントロールID (linux/v4l2-controls.h)
const (
	cidBrightness       uint32 = 0x00980900
	cidSaturation       uint32 = 0x00980902
	cidHue              uint32 = 0x00980903
	cidAutoWhiteBalance uint32 = 0x0098090c
	cidRedBalance       uint32 = 0x0098090e
	cidBlueBalance      uint32 = 0x0098090f
	cidGamma            uint32 = 0x00980910
	cidGain             uint32 = 0x00980913
	cidHueAuto          uint32 = 0x00980919
	cidSharpness        uint32 = 0x0098091b

	cidExposureAuto     uint32 = 0x009a0901
	cidExposureAbsolute uint32 = 0x009a0902
	cidFocusAbsolute    uint32 = 0x009a090a
	cidFocusAuto        uint32 = 0x009a090c
	cidZoomAbsolute     uint32 = 0x009a090d
	cidIrisAbsolute     uint32 = 0x009a0911
	cidExposureBias     uint32 = 0x009a0913
)

var (
	errNoControl     = errors.New("コントロールがありません")
	errControlAccess = errors.New("コントロールにアクセスできません")
)

// v4l2Control はデバイスが報告するコントロールの値域
type v4l2Control struct {
	ID   uint32
	Name string
	Min  int32
	Max  int32
	Step int32
}

// opRange は値域を返す。値域を持たない (bool など) 場合は 0〜1 とする
func (c v4l2Control) opRange() OpRange {
	if c.Max <= c.Min {
		return OpRange{Min: 0, Max: 1, Step: 1}
	}
	return OpRange{Min: float64(c.Min), Max: float64(c.Max), Step: float64(c.Step)}
}

// controlDevice はV4L2コントロールを読み書きするデバイス
type controlDevice interface {
	Controls() ([]v4l2Control, error)
	Get(id uint32) (int32, error)
	Set(id uint32, value int32) error
	Close() error
}

// controlOpener はデバイスパスから controlDevice を開く
type controlOpener func(device string) (controlDevice, error)

// controlStatus はコントロール操作のエラーをステータスに変換する
func controlStatus(c Control, op string, write bool, err error) error {
	switch {
	case errors.Is(err, errNoControl), errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENOTTY):
		return notImplemented(c.String())
	case errors.Is(err, errControlAccess), errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EBUSY):
		if write {
			return writeabilityError(c.String())
		}
		return readabilityError(c.String())
	}
	return internalError(fmt.Sprintf("%s の%s", c, op), err)
}
