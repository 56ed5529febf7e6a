package camera

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"camgateway/internal/status"
)

// DefaultGrabTimeout はフレーム取得を待つ既定の上限
const DefaultGrabTimeout = 3 * time.Second

var defaultResolution = Resolution{Width: 1280, Height: 720}

// inputArgs はffmpegの入力部分の引数を組み立てる
type inputArgs func(device string, r Resolution, fps float64) []string

// ffmpegDriver はffmpegで映像を取得するドライバの共通実装
//
// 画像・サンプリング設定とフレーム取得を担い、カメラ制御は埋め込む側で実装する。
type ffmpegDriver struct {
	name    string
	input   inputArgs
	capture *CaptureState
	stream  *ffmpegStream

	info        DeviceInfo
	resolution  Resolution
	colorSpace  ColorSpace
	format      ImageFormat
	region      *BoundingPoly
	rate        SamplingRate
	reverseX    bool
	reverseY    bool
	grabTimeout time.Duration
	timestamp   time.Time
}

func newFFmpegDriver(name string, input inputArgs) *ffmpegDriver {
	d := &ffmpegDriver{
		name:        name,
		input:       input,
		colorSpace:  ColorSpaceRGB,
		format:      ImageFormat{Format: FormatJPEG},
		rate:        Frequency(15),
		grabTimeout: DefaultGrabTimeout,
	}
	d.capture = NewCaptureState(d.startStream, d.stopStream)
	return d
}

// SetGrabTimeout はフレーム取得のタイムアウトを変更する
func (d *ffmpegDriver) SetGrabTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.grabTimeout = timeout
	}
}

// Connect はデバイス情報を保持し、既定の解像度を決める
func (d *ffmpegDriver) Connect(_ context.Context, info DeviceInfo) error {
	d.info = info
	switch {
	case len(info.Resolutions) == 0 || slices.Contains(info.Resolutions, defaultResolution):
		d.resolution = defaultResolution
	default:
		d.resolution = info.Resolutions[0]
	}
	log.Printf("[%s] 接続しました: %s (%s) %s", d.name, info.Name, info.Device, d.resolution)
	return nil
}

// Close はキャプチャを停止する
func (d *ffmpegDriver) Close() error {
	return d.capture.Stop()
}

func (d *ffmpegDriver) StartCapture() error { return d.capture.Start() }
func (d *ffmpegDriver) StopCapture() error  { return d.capture.Stop() }
func (d *ffmpegDriver) IsCapturing() bool   { return d.capture.IsCapturing() }

// LastTimestamp は直前に取得したフレームの時刻を返す
func (d *ffmpegDriver) LastTimestamp() time.Time {
	return d.timestamp
}

// args はffmpegの引数を現在の設定から組み立てる
func (d *ffmpegDriver) args() []string {
	args := d.input(d.info.Device, d.resolution, d.rate.Hz())

	var filters []string
	if d.region != nil {
		x, y, w, h, _ := regionRect(*d.region)
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d", w, h, x, y))
	}
	if d.reverseX {
		filters = append(filters, "hflip")
	}
	if d.reverseY {
		filters = append(filters, "vflip")
	}
	pix, _ := pixelFormats.Forward(d.colorSpace)
	filters = append(filters, "format="+pix, "format=yuvj420p")

	return append(args,
		"-vf", strings.Join(filters, ","),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

func (d *ffmpegDriver) startStream() error {
	s, err := startFFmpeg(d.args())
	if err != nil {
		return err
	}
	d.stream = s
	return nil
}

func (d *ffmpegDriver) stopStream() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}

// GrabImage は次のフレームを取得する。タイムアウト時はキャプチャを再起動して空のフレームを返す
func (d *ffmpegDriver) GrabImage() Image {
	if !d.capture.IsCapturing() || d.stream == nil {
		return Image{}
	}

	frame, ok := d.stream.Next(d.grabTimeout)
	if !ok {
		if err := d.stream.Err(); err != nil {
			log.Printf("[%s] ffmpegが終了しました: %v", d.name, err)
		} else {
			log.Printf("[%s] フレーム取得がタイムアウトしました (%s)", d.name, d.grabTimeout)
		}
		d.restart()
		return Image{}
	}
	d.timestamp = time.Now()

	data, err := transcode(frame, d.colorSpace, d.format)
	if err != nil {
		log.Printf("[%s] フレームの変換に失敗: %v", d.name, err)
		return Image{}
	}
	return Image{Data: data, Format: d.format.Format, Resolution: d.outputResolution()}
}

func (d *ffmpegDriver) restart() {
	if err := d.capture.Stop(); err != nil {
		log.Printf("[%s] 再起動のための停止に失敗: %v", d.name, err)
	}
	if err := d.capture.Start(); err != nil {
		log.Printf("[%s] キャプチャの再起動に失敗: %v", d.name, err)
	}
}

func (d *ffmpegDriver) outputResolution() Resolution {
	if d.region == nil {
		return d.resolution
	}
	_, _, w, h, _ := regionRect(*d.region)
	return Resolution{Width: uint32(w), Height: uint32(h)}
}

// SetResolution は解像度を変更する
func (d *ffmpegDriver) SetResolution(r Resolution) error {
	if len(d.info.Resolutions) > 0 && !slices.Contains(d.info.Resolutions, r) {
		return status.Errorf(status.OutOfRange, "サポートされていない解像度: %s", r)
	}
	if r == d.resolution {
		return nil
	}
	return WhileIdle(d.capture, r, func(r Resolution) error {
		d.resolution = r
		if d.region != nil && !fits(*d.region, r) {
			d.region = nil
		}
		return nil
	})
}

func (d *ffmpegDriver) GetResolution() (Resolution, error) {
	return d.resolution, nil
}

// SetImageFormat は出力形式を変更する。エンコードは取得時に行うため再起動しない
func (d *ffmpegDriver) SetImageFormat(f ImageFormat) error {
	if f.Format == FormatWebP {
		return notImplemented("WebP")
	}
	if _, ok := contentTypes.Forward(f.Format); !ok {
		return status.Errorf(status.InvalidArgument, "不明な画像形式: %s", f.Format)
	}
	if f.Compression != nil {
		if err := checkRatio("compression", *f.Compression); err != nil {
			return err
		}
		c := *f.Compression
		f.Compression = &c
	}
	d.format = f
	return nil
}

func (d *ffmpegDriver) GetImageFormat() (ImageFormat, error) {
	return d.format, nil
}

// SetColorSpace は色空間を変更する
func (d *ffmpegDriver) SetColorSpace(c ColorSpace) error {
	if _, ok := pixelFormats.Forward(c); !ok {
		return status.Errorf(status.InvalidArgument, "色空間 %s はサポートされていません", c)
	}
	if c == d.colorSpace {
		return nil
	}
	return WhileIdle(d.capture, c, func(c ColorSpace) error {
		d.colorSpace = c
		return nil
	})
}

func (d *ffmpegDriver) GetColorSpace() (ColorSpace, error) {
	return d.colorSpace, nil
}

// SetRegionOfInterest は切り出し領域を変更する
func (d *ffmpegDriver) SetRegionOfInterest(p BoundingPoly) error {
	if _, _, _, _, err := regionRect(p); err != nil {
		return err
	}
	if !fits(p, d.resolution) {
		return status.Errorf(status.OutOfRange, "関心領域が解像度 %s を超えています", d.resolution)
	}

	region := &BoundingPoly{Vertices: append([]Vertex(nil), p.Vertices...)}
	if slices.Equal(p.Vertices, fullFrame(d.resolution).Vertices) {
		region = nil
	}
	return WhileIdle(d.capture, region, func(region *BoundingPoly) error {
		d.region = region
		return nil
	})
}

func (d *ffmpegDriver) GetRegionOfInterest() (BoundingPoly, error) {
	if d.region == nil {
		return fullFrame(d.resolution), nil
	}
	return *d.region, nil
}

// SetSamplingRate はフレームレートを変更する
func (d *ffmpegDriver) SetSamplingRate(r SamplingRate) error {
	if !validRate(r) {
		return status.New(status.OutOfRange, "サンプリングレートは正の値が必要です")
	}
	return WhileIdle(d.capture, r, func(r SamplingRate) error {
		d.rate = r
		return nil
	})
}

func (d *ffmpegDriver) GetSamplingRate() (SamplingRate, error) {
	return d.rate, nil
}

func (d *ffmpegDriver) SetDelay(time.Duration) error {
	return notImplemented("delay")
}

func (d *ffmpegDriver) GetDelay() (time.Duration, error) {
	return 0, notImplemented("delay")
}

func (d *ffmpegDriver) SetCameraSetting(c Control, _ CameraSetting) error {
	return notImplemented(c.String())
}

func (d *ffmpegDriver) GetCameraSetting(c Control) (CameraSetting, error) {
	return CameraSetting{}, notImplemented(c.String())
}

func (d *ffmpegDriver) SetPacketDelay(int) error {
	return notImplemented("packet_delay")
}

func (d *ffmpegDriver) SetPacketSize(int) error {
	return notImplemented("packet_size")
}

// ReverseX は左右反転を切り替える
func (d *ffmpegDriver) ReverseX(reverse bool) error {
	return WhileIdle(d.capture, reverse, func(v bool) error {
		d.reverseX = v
		return nil
	})
}

// ReverseY は上下反転を切り替える
func (d *ffmpegDriver) ReverseY(reverse bool) error {
	return WhileIdle(d.capture, reverse, func(v bool) error {
		d.reverseY = v
		return nil
	})
}

// fits は関心領域が解像度に収まるかを返す
func fits(p BoundingPoly, r Resolution) bool {
	x, y, w, h, err := regionRect(p)
	if err != nil {
		return false
	}
	return x+w <= int(r.Width) && y+h <= int(r.Height)
}
