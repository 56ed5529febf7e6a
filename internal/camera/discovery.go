package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// commandRunner は外部コマンドを実行して標準出力を返す
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
		return out, fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(string(ee.Stderr)))
	}
	return out, err
}

// LinuxDiscovery はLinux環境でV4L2デバイスを検出する
type LinuxDiscovery struct {
	pattern string
	run     commandRunner
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*", run: runCommand}
}

// FindCameras はカラー映像を出力できるV4L2デバイスを列挙する
//
// 1台のカメラが複数のノード (映像とメタデータ) を持つ場合は番号の小さいノードのみ返す。
func (d *LinuxDiscovery) FindCameras(ctx context.Context) ([]DeviceInfo, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var cameras []DeviceInfo
	seen := make(map[string]bool)
	for _, device := range matches {
		if err := ctx.Err(); err != nil {
			return cameras, err
		}
		if !isVideoNode(device) {
			continue
		}

		info, err := d.deviceInfo(ctx, device)
		if err != nil || !hasColorFormat(info.Formats) {
			continue
		}
		if info.Serial != "" {
			if seen[info.Serial] {
				continue
			}
			seen[info.Serial] = true
		}
		cameras = append(cameras, info)
	}

	return cameras, nil
}

// deviceInfo は v4l2-ctl からデバイスの詳細を取得する
func (d *LinuxDiscovery) deviceInfo(ctx context.Context, device string) (DeviceInfo, error) {
	out, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("デバイス情報の取得に失敗: %w", err)
	}
	fields := parseInfo(string(out))

	info := DeviceInfo{
		Kind:   DriverV4L2,
		Device: device,
		Name:   fields["Card type"],
		Serial: fields["Bus info"],
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	out, err = d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("フォーマット一覧の取得に失敗: %w", err)
	}
	info.Formats, info.Resolutions = parseFormats(string(out))

	return info, nil
}

// isVideoNode はパスが /dev/videoN 形式かを返す
func isVideoNode(device string) bool {
	if _, err := os.Stat(device); err != nil {
		return false
	}
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// parseInfo は "Key : Value" 形式の出力を解析する
func parseInfo(output string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, dup := info[key]; !dup {
			info[key] = strings.TrimSpace(value)
		}
	}
	return info
}

var (
	formatLine = regexp.MustCompile(`\[\d+\]:\s+'(\w+)'`)
	sizeLine   = regexp.MustCompile(`Size:\s+\w+\s+(\d+)x(\d+)`)
)

// parseFormats は --list-formats-ext の出力からフォーマットと解像度を取り出す
func parseFormats(output string) ([]string, []Resolution) {
	var formats []string
	var resolutions []Resolution
	for _, line := range strings.Split(output, "\n") {
		if m := formatLine.FindStringSubmatch(line); m != nil {
			if !slices.Contains(formats, m[1]) {
				formats = append(formats, m[1])
			}
			continue
		}
		if m := sizeLine.FindStringSubmatch(line); m != nil {
			w, _ := strconv.ParseUint(m[1], 10, 32)
			h, _ := strconv.ParseUint(m[2], 10, 32)
			r := Resolution{Width: uint32(w), Height: uint32(h)}
			if !slices.Contains(resolutions, r) {
				resolutions = append(resolutions, r)
			}
		}
	}
	return formats, resolutions
}

// hasColorFormat はカラーのピクセルフォーマットを持つかを返す
func hasColorFormat(formats []string) bool {
	return slices.Contains(formats, "MJPG") || slices.Contains(formats, "YUYV")
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}
	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// ScreenDiscovery は $DISPLAY をカメラとして報告する
type ScreenDiscovery struct{}

// FindCameras は画面キャプチャの対象を返す
func (ScreenDiscovery) FindCameras(_ context.Context) ([]DeviceInfo, error) {
	display := os.Getenv("DISPLAY")
	if display == "" {
		return nil, nil
	}
	return []DeviceInfo{{
		Kind:   DriverX11,
		Device: display,
		Name:   "X11 " + display,
		Serial: "x11:" + display,
	}}, nil
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	Devices []DeviceInfo
}

// NewMockDiscovery は指定デバイスを報告するMockDiscoveryを作成する
func NewMockDiscovery(devices ...string) *MockDiscovery {
	d := &MockDiscovery{}
	for i, device := range devices {
		d.Devices = append(d.Devices, DeviceInfo{
			Kind:   DriverMock,
			Device: device,
			Name:   fmt.Sprintf("テストカメラ %d", i+1),
			Serial: fmt.Sprintf("mock-%04d", i+1),
			Resolutions: []Resolution{
				{Width: 640, Height: 480},
				{Width: 1280, Height: 720},
			},
			Formats: []string{"MJPG"},
		})
	}
	return d
}

// FindCameras は登録済みのデバイスを返す
func (d *MockDiscovery) FindCameras(_ context.Context) ([]DeviceInfo, error) {
	return append([]DeviceInfo(nil), d.Devices...), nil
}
