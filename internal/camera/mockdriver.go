package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"sync"
	"time"

	"camgateway/internal/status"
)

var errMockDevice = errors.New("モックデバイスの障害")

// MockTuning はMockDriverに適用された伝送・向きの設定
type MockTuning struct {
	PacketDelay int
	PacketSize  int
	ReverseX    bool
	ReverseY    bool
}

// MockDriver はテスト用のモックドライバ実装
//
// 合成したテストパターンをフレームとして返し、全プロパティに対応する。
// 失敗の注入と操作回数の記録ができる。
type MockDriver struct {
	mu          sync.Mutex
	capture     *CaptureState
	calls       map[string]int
	failures    map[string]error
	unsupported map[Control]bool
	readOnly    map[Control]bool
	emptyFrames int
	pacing      bool
	now         func() time.Time

	info       DeviceInfo
	resolution Resolution
	colorSpace ColorSpace
	format     ImageFormat
	region     *BoundingPoly
	rate       SamplingRate
	delay      time.Duration
	settings   map[Control]CameraSetting
	tuning     MockTuning

	frames    uint64
	timestamp time.Time
	lastGrab  time.Time
}

// NewMockDriver は新しいMockDriverを作成する
func NewMockDriver() *MockDriver {
	m := &MockDriver{
		calls:       make(map[string]int),
		failures:    make(map[string]error),
		unsupported: make(map[Control]bool),
		readOnly:    make(map[Control]bool),
		pacing:      true,
		now:         time.Now,
		resolution:  Resolution{Width: 640, Height: 480},
		colorSpace:  ColorSpaceRGB,
		format:      ImageFormat{Format: FormatJPEG},
		rate:        Frequency(15),
		settings:    make(map[Control]CameraSetting),
	}
	for _, c := range Controls {
		m.settings[c] = CameraSetting{Ratio: 0.5}
	}
	m.capture = NewCaptureState(
		func() error { return m.record("StartCapture") },
		func() error { return m.record("StopCapture") },
	)
	return m
}

// record は操作回数を数え、注入された失敗を返す。ロックを保持した状態で呼ぶ
func (m *MockDriver) record(op string) error {
	m.calls[op]++
	return m.failures[op]
}

// SetFailure は操作 op が err を返すように設定する。nil で解除する
func (m *MockDriver) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// SetShouldFailStart はキャプチャ開始を失敗させるかを設定する
func (m *MockDriver) SetShouldFailStart(shouldFail bool) {
	m.setShouldFail("StartCapture", shouldFail)
}

// SetShouldFailStop はキャプチャ停止を失敗させるかを設定する
func (m *MockDriver) SetShouldFailStop(shouldFail bool) {
	m.setShouldFail("StopCapture", shouldFail)
}

func (m *MockDriver) setShouldFail(op string, shouldFail bool) {
	if shouldFail {
		m.SetFailure(op, errMockDevice)
		return
	}
	m.SetFailure(op, nil)
}

// SetUnsupported は制御項目を未対応として扱う
func (m *MockDriver) SetUnsupported(c Control) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsupported[c] = true
}

// SetReadOnly は制御項目を書き込み不可として扱う
func (m *MockDriver) SetReadOnly(c Control) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly[c] = true
}

// SetEmptyFrames は次の n 回の取得で空のフレームを返すように設定する
func (m *MockDriver) SetEmptyFrames(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyFrames = n
}

// SetPacing はサンプリングレートに合わせて取得を待つかを設定する
func (m *MockDriver) SetPacing(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pacing = enabled
}

// SetClock はタイムスタンプに使う時計を差し替える
func (m *MockDriver) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Calls は操作がデバイスに対して実行された回数を返す
func (m *MockDriver) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ResetCalls は操作回数を消去する
func (m *MockDriver) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// Tuning は適用された伝送・向きの設定を返す
func (m *MockDriver) Tuning() MockTuning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tuning
}

// Frames は返したフレーム数を返す
func (m *MockDriver) Frames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *MockDriver) Connect(_ context.Context, info DeviceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Connect"); err != nil {
		return internalError("接続", err)
	}
	m.info = info
	return nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture.Stop()
}

func (m *MockDriver) StartCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture.Start()
}

func (m *MockDriver) StopCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture.Stop()
}

func (m *MockDriver) IsCapturing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture.IsCapturing()
}

// GrabImage はテストパターンのフレームを返す
func (m *MockDriver) GrabImage() Image {
	m.pace()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GrabImage"]++

	if !m.capture.IsCapturing() {
		return Image{}
	}
	if m.emptyFrames > 0 {
		m.emptyFrames--
		return Image{}
	}

	out := m.resolution
	if m.region != nil {
		_, _, w, h, _ := regionRect(*m.region)
		out = Resolution{Width: uint32(w), Height: uint32(h)}
	}
	data, err := EncodeImage(testPattern(out, m.colorSpace, m.frames), m.format)
	if err != nil {
		log.Printf("[mock] フレームのエンコードに失敗: %v", err)
		return Image{}
	}

	m.frames++
	m.timestamp = m.now()
	m.lastGrab = time.Now()
	return Image{Data: data, Format: m.format.Format, Resolution: out}
}

// pace はサンプリングレートに合わせて次のフレームまで待つ
func (m *MockDriver) pace() {
	m.mu.Lock()
	var wait time.Duration
	if m.pacing && !m.lastGrab.IsZero() && m.rate.Hz() > 0 {
		period := time.Duration(float64(time.Second) / m.rate.Hz())
		wait = time.Until(m.lastGrab.Add(period))
	}
	m.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

func (m *MockDriver) LastTimestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timestamp
}

func (m *MockDriver) SetResolution(r Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetResolution"); err != nil {
		return err
	}
	if r.Width == 0 || r.Height == 0 || r.Width > 4096 || r.Height > 4096 {
		return notInRange("resolution", r)
	}
	return WhileIdle(m.capture, r, func(r Resolution) error {
		m.resolution = r
		if m.region != nil && !fits(*m.region, r) {
			m.region = nil
		}
		return nil
	})
}

func (m *MockDriver) GetResolution() (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution, m.record("GetResolution")
}

func (m *MockDriver) SetImageFormat(f ImageFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetImageFormat"); err != nil {
		return err
	}
	if f.Format == FormatWebP {
		return notImplemented("WebP")
	}
	if f.Compression != nil {
		if err := checkRatio("compression", *f.Compression); err != nil {
			return err
		}
		c := *f.Compression
		f.Compression = &c
	}
	m.format = f
	return nil
}

func (m *MockDriver) GetImageFormat() (ImageFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format, m.record("GetImageFormat")
}

func (m *MockDriver) SetColorSpace(c ColorSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetColorSpace"); err != nil {
		return err
	}
	if c != ColorSpaceRGB && c != ColorSpaceGray {
		return status.Errorf(status.InvalidArgument, "色空間 %s はサポートされていません", c)
	}
	return WhileIdle(m.capture, c, func(c ColorSpace) error {
		m.colorSpace = c
		return nil
	})
}

func (m *MockDriver) GetColorSpace() (ColorSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colorSpace, m.record("GetColorSpace")
}

func (m *MockDriver) SetRegionOfInterest(p BoundingPoly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetRegionOfInterest"); err != nil {
		return err
	}
	if _, _, _, _, err := regionRect(p); err != nil {
		return err
	}
	if !fits(p, m.resolution) {
		return notInRange("region", p.Vertices)
	}
	region := BoundingPoly{Vertices: append([]Vertex(nil), p.Vertices...)}
	return WhileIdle(m.capture, &region, func(r *BoundingPoly) error {
		m.region = r
		return nil
	})
}

func (m *MockDriver) GetRegionOfInterest() (BoundingPoly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetRegionOfInterest"); err != nil {
		return BoundingPoly{}, err
	}
	if m.region == nil {
		return fullFrame(m.resolution), nil
	}
	return *m.region, nil
}

func (m *MockDriver) SetSamplingRate(r SamplingRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetSamplingRate"); err != nil {
		return err
	}
	if !validRate(r) {
		return notInRange("sampling_rate", r)
	}
	m.rate = r
	return nil
}

func (m *MockDriver) GetSamplingRate() (SamplingRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate, m.record("GetSamplingRate")
}

func (m *MockDriver) SetDelay(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetDelay"); err != nil {
		return err
	}
	if d < 0 {
		return notInRange("delay", d)
	}
	m.delay = d
	return nil
}

func (m *MockDriver) GetDelay() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay, m.record("GetDelay")
}

func (m *MockDriver) SetCameraSetting(c Control, s CameraSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Set" + c.String()); err != nil {
		return err
	}
	if m.unsupported[c] {
		return notImplemented(c.String())
	}
	if m.readOnly[c] {
		return writeabilityError(c.String())
	}
	if err := checkRatio(c.String(), s.Ratio); err != nil {
		return err
	}
	m.settings[c] = s
	return nil
}

func (m *MockDriver) GetCameraSetting(c Control) (CameraSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Get" + c.String()); err != nil {
		return CameraSetting{}, err
	}
	if m.unsupported[c] {
		return CameraSetting{}, notImplemented(c.String())
	}
	return m.settings[c], nil
}

func (m *MockDriver) SetPacketDelay(delay int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetPacketDelay"); err != nil {
		return err
	}
	m.tuning.PacketDelay = delay
	return nil
}

func (m *MockDriver) SetPacketSize(size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetPacketSize"); err != nil {
		return err
	}
	m.tuning.PacketSize = size
	return nil
}

func (m *MockDriver) ReverseX(reverse bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ReverseX"); err != nil {
		return err
	}
	m.tuning.ReverseX = reverse
	return nil
}

func (m *MockDriver) ReverseY(reverse bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ReverseY"); err != nil {
		return err
	}
	m.tuning.ReverseY = reverse
	return nil
}

// testPattern はフレーム番号に応じて縦帯が移動するグラデーションを生成する
func testPattern(r Resolution, cs ColorSpace, n uint64) image.Image {
	w, h := int(r.Width), int(r.Height)
	bar := int(n*8) % max(w, 1)

	if cs == ColorSpaceGray {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := uint8(x * 255 / max(w, 1))
				if x >= bar && x < bar+8 {
					v = 255
				}
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
		return img
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / max(w, 1)),
				G: uint8(y * 255 / max(h, 1)),
				B: 128,
				A: 255,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
