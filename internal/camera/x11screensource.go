package camera

import (
	"context"
	"os/exec"
	"strconv"

	"camgateway/internal/status"
)

// ScreenDriver はX11画面をカメラとして扱うドライバ
//
// 画像とサンプリングの設定のみ対応し、カメラ制御はすべて未対応となる。
type ScreenDriver struct {
	*ffmpegDriver
}

// NewScreenDriver は新しいScreenDriverを作成する
func NewScreenDriver() *ScreenDriver {
	return &ScreenDriver{ffmpegDriver: newFFmpegDriver("x11", x11Input)}
}

func x11Input(display string, r Resolution, fps float64) []string {
	return []string{
		"-f", "x11grab",
		"-video_size", r.String(),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", display,
	}
}

// Connect はディスプレイが利用可能か確認して接続する
func (d *ScreenDriver) Connect(ctx context.Context, info DeviceInfo) error {
	if err := exec.CommandContext(ctx, "xdpyinfo", "-display", info.Device).Run(); err != nil {
		return status.Errorf(status.InternalError, "ディスプレイ %s に接続できません: %v", info.Device, err)
	}
	return d.ffmpegDriver.Connect(ctx, info)
}
