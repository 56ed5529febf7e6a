//go:build linux

package camera

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/vladimirvivien/go4vl/v4l2"
)

// go4vlDevice は go4vl でV4L2コントロールを読み書きする
//
// 映像の取得は ffmpeg が別に開いたファイル記述子で行う。
type go4vlDevice struct {
	path string
	fd   uintptr
}

func openControlDevice(path string) (controlDevice, error) {
	fd, err := v4l2.OpenDevice(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("デバイス %s を開けません: %w", path, err)
	}
	return &go4vlDevice{path: path, fd: fd}, nil
}

func (d *go4vlDevice) Controls() ([]v4l2Control, error) {
	ctrls, err := v4l2.QueryAllControls(d.fd)
	if err != nil {
		return nil, fmt.Errorf("%s の制御項目の取得に失敗: %w", d.path, classify(err))
	}
	out := make([]v4l2Control, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, v4l2Control{
			ID:   uint32(c.ID),
			Name: c.Name,
			Min:  c.Minimum,
			Max:  c.Maximum,
			Step: c.Step,
		})
	}
	return out, nil
}

func (d *go4vlDevice) Get(id uint32) (int32, error) {
	v, err := v4l2.GetControlValue(d.fd, v4l2.CtrlID(id))
	if err != nil {
		return 0, classify(err)
	}
	return int32(v), nil
}

func (d *go4vlDevice) Set(id uint32, value int32) error {
	return classify(v4l2.SetControlValue(d.fd, v4l2.CtrlID(id), v4l2.CtrlValue(value)))
}

func (d *go4vlDevice) Close() error {
	return v4l2.CloseDevice(d.fd)
}

// classify は go4vl のエラーを未対応とアクセス不可に分類する
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, v4l2.ErrorBadArgument), errors.Is(err, v4l2.ErrorUnsupported):
		return fmt.Errorf("%w: %v", errNoControl, err)
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %v", errControlAccess, err)
	}
	return err
}
