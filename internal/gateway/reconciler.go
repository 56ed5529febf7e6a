package gateway

import (
	"fmt"
	"log"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/status"
)

// Reconciler はカメラ設定をドライバに適用し、ドライバから読み出す
//
// 適用は画像、サンプリング、カメラ制御の順に固定の順序で行い、
// 最初に失敗した操作で中断する。適用済みの設定は元に戻さない。
type Reconciler struct {
	driver camera.CameraDriver
}

// NewReconciler はドライバを操作する Reconciler を作成する
func NewReconciler(driver camera.CameraDriver) *Reconciler {
	return &Reconciler{driver: driver}
}

// Apply は設定に含まれる項目を順に適用する
func (r *Reconciler) Apply(cfg camera.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := r.applyImage(cfg.Image); err != nil {
		return err
	}
	if err := r.applySampling(cfg.Sampling); err != nil {
		return err
	}
	return r.applyCamera(cfg.Camera)
}

func (r *Reconciler) applyImage(s *camera.ImageSettings) error {
	if s == nil {
		return nil
	}
	if s.Resolution != nil {
		if err := r.driver.SetResolution(*s.Resolution); err != nil {
			return fmt.Errorf("解像度の設定に失敗しました: %w", err)
		}
	}
	if s.ColorSpace != nil {
		if err := r.driver.SetColorSpace(*s.ColorSpace); err != nil {
			return fmt.Errorf("色空間の設定に失敗しました: %w", err)
		}
	}
	if s.Format != nil {
		if err := r.driver.SetImageFormat(*s.Format); err != nil {
			return fmt.Errorf("画像形式の設定に失敗しました: %w", err)
		}
	}
	if s.Region != nil {
		if err := r.driver.SetRegionOfInterest(*s.Region); err != nil {
			return fmt.Errorf("関心領域の設定に失敗しました: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) applySampling(s *camera.SamplingSettings) error {
	if s == nil {
		return nil
	}
	if s.Rate != nil {
		if err := r.driver.SetSamplingRate(s.Rate); err != nil {
			return fmt.Errorf("サンプリングレートの設定に失敗しました: %w", err)
		}
	}
	if s.Delay != nil {
		if err := r.driver.SetDelay(*s.Delay); err != nil {
			return fmt.Errorf("遅延の設定に失敗しました: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) applyCamera(s *camera.CameraSettings) error {
	if s == nil {
		return nil
	}
	for _, c := range camera.Controls {
		v := s.Get(c)
		if v == nil {
			continue
		}
		if err := r.driver.SetCameraSetting(c, *v); err != nil {
			return fmt.Errorf("%s の設定に失敗しました: %w", c, err)
		}
	}
	return nil
}

// Read は選択されたグループの設定をドライバから読み出す
//
// 未対応 (UNIMPLEMENTED) の項目は結果から省き、それ以外の失敗で中断する。
func (r *Reconciler) Read(sel camera.FieldSelector) (camera.Config, error) {
	var cfg camera.Config
	for _, f := range sel.Expand() {
		var err error
		switch f {
		case camera.FieldImageSettings:
			cfg.Image, err = r.readImage()
		case camera.FieldSamplingSettings:
			cfg.Sampling, err = r.readSampling()
		case camera.FieldCameraSettings:
			cfg.Camera, err = r.readCamera()
		default:
			err = status.Errorf(status.InvalidArgument, "不明なフィールド: %s", f)
		}
		if err != nil {
			return camera.Config{}, err
		}
	}
	return cfg, nil
}

// optional はゲッターの結果を返す。未対応なら nil を返して続行する
func optional[T any](name string, get func() (T, error)) (*T, error) {
	v, err := get()
	if err == nil {
		return &v, nil
	}
	if status.CodeOf(err) == status.Unimplemented {
		log.Printf("[reconciler] %s は未対応のため省略します", name)
		return nil, nil
	}
	return nil, fmt.Errorf("%s の取得に失敗しました: %w", name, err)
}

func (r *Reconciler) readImage() (*camera.ImageSettings, error) {
	var (
		s   camera.ImageSettings
		err error
	)
	if s.Resolution, err = optional("resolution", r.driver.GetResolution); err != nil {
		return nil, err
	}
	if s.ColorSpace, err = optional("color_space", r.driver.GetColorSpace); err != nil {
		return nil, err
	}
	if s.Format, err = optional("format", r.driver.GetImageFormat); err != nil {
		return nil, err
	}
	if s.Region, err = optional("region", r.driver.GetRegionOfInterest); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Reconciler) readSampling() (*camera.SamplingSettings, error) {
	var s camera.SamplingSettings
	rate, err := optional("sampling_rate", r.driver.GetSamplingRate)
	if err != nil {
		return nil, err
	}
	if rate != nil {
		s.Rate = *rate
	}
	if s.Delay, err = optional[time.Duration]("delay", r.driver.GetDelay); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Reconciler) readCamera() (*camera.CameraSettings, error) {
	var s camera.CameraSettings
	for _, c := range camera.Controls {
		v, err := optional(c.String(), func() (camera.CameraSetting, error) {
			return r.driver.GetCameraSetting(c)
		})
		if err != nil {
			return nil, err
		}
		s.Set(c, v)
	}
	return &s, nil
}
