package camera

import (
	"camgateway/internal/status"
)

// Validate はハードウェアに触れずに判定できる値を検証する
func (c Config) Validate() error {
	if img := c.Image; img != nil {
		if r := img.Resolution; r != nil && (r.Width == 0 || r.Height == 0) {
			return status.Errorf(status.InvalidArgument, "不正な解像度: %s", r)
		}
		if f := img.Format; f != nil {
			if _, ok := contentTypes.Forward(f.Format); !ok {
				return status.Errorf(status.InvalidArgument, "不明な画像形式: %s", f.Format)
			}
			if f.Compression != nil {
				if err := checkRatio("compression", *f.Compression); err != nil {
					return err
				}
			}
		}
		if cs := img.ColorSpace; cs != nil {
			if _, ok := ParseColorSpace(cs.String()); !ok {
				return status.Errorf(status.InvalidArgument, "不明な色空間: %s", cs)
			}
		}
		if p := img.Region; p != nil {
			if _, _, _, _, err := regionRect(*p); err != nil {
				return err
			}
		}
	}

	if s := c.Sampling; s != nil {
		if s.Rate != nil && !validRate(s.Rate) {
			return status.Errorf(status.OutOfRange, "サンプリングレートは正の値が必要です: %s", describe(s.Rate))
		}
		if s.Delay != nil && *s.Delay < 0 {
			return status.Errorf(status.OutOfRange, "遅延は0以上が必要です: %s", *s.Delay)
		}
	}

	if cam := c.Camera; cam != nil {
		for _, ctrl := range Controls {
			if v := cam.Get(ctrl); v != nil {
				if err := checkRatio(ctrl.String(), v.Ratio); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
