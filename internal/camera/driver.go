package camera

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"camgateway/internal/status"
)

// CameraDriver はカメラ1台を制御するポート
//
// 各操作はステータス付きエラーを返し、成功時は nil となる。
// 呼び出しはキャプチャループのゴルーチンからのみ行われる前提で、
// 呼び出し側に対するスレッドセーフ性は要求しない。
type CameraDriver interface {
	// Connect はデバイスに接続する
	Connect(ctx context.Context, info DeviceInfo) error
	// Close は接続を閉じる
	Close() error

	// StartCapture はキャプチャを開始する。既に開始済みなら何もしない
	StartCapture() error
	// StopCapture はキャプチャを停止する。既に停止済みなら何もしない
	StopCapture() error
	// IsCapturing はキャプチャ中かどうかを返す
	IsCapturing() bool
	// GrabImage は次のフレームを返す。取得できなければ空のフレームを返す
	GrabImage() Image
	// LastTimestamp は直前に取得したフレームの取得時刻を返す
	LastTimestamp() time.Time

	SetResolution(r Resolution) error
	GetResolution() (Resolution, error)
	SetImageFormat(f ImageFormat) error
	GetImageFormat() (ImageFormat, error)
	SetColorSpace(c ColorSpace) error
	GetColorSpace() (ColorSpace, error)
	SetRegionOfInterest(p BoundingPoly) error
	GetRegionOfInterest() (BoundingPoly, error)

	SetSamplingRate(r SamplingRate) error
	GetSamplingRate() (SamplingRate, error)
	SetDelay(d time.Duration) error
	GetDelay() (time.Duration, error)

	SetCameraSetting(c Control, s CameraSetting) error
	GetCameraSetting(c Control) (CameraSetting, error)
}

// StreamTuner は起動時に一度だけ適用する伝送・向きの調整
type StreamTuner interface {
	SetPacketDelay(delay int) error
	SetPacketSize(size int) error
	ReverseX(reverse bool) error
	ReverseY(reverse bool) error
}

// notImplemented は未対応プロパティのエラーを返す
func notImplemented(name string) error {
	return status.Errorf(status.Unimplemented, "'%s' property not implemented for this camera.", name)
}

// writeabilityError は書き込めないプロパティのエラーを返す
func writeabilityError(name string) error {
	return status.Errorf(status.PermissionDenied, "[%s] Not available or not writable", name)
}

// readabilityError は読み出せないプロパティのエラーを返す
func readabilityError(name string) error {
	return status.Errorf(status.PermissionDenied, "[%s] Not available or not readable", name)
}

// internalError はデバイス由来の失敗を警告ログに残してエラーを返す
func internalError(op string, err error) error {
	log.Printf("[driver] 警告: %s に失敗: %v", op, err)
	return status.Errorf(status.InternalError, "%s: %v", op, err)
}

// checkRatio は正規化値の範囲を検証する
func checkRatio(name string, ratio float64) error {
	if !(ratio >= 0 && ratio <= 1) {
		return status.Errorf(status.OutOfRange, "%s の値 %v は 0.0〜1.0 の範囲外です", name, ratio)
	}
	return nil
}

// validRate はサンプリングレートが有限の正の周波数かを返す
func validRate(r SamplingRate) bool {
	if r == nil {
		return false
	}
	hz := r.Hz()
	return hz > 0 && !math.IsInf(hz, 0)
}

// notInRange は値域外のエラーを返す
func notInRange(name string, v any) error {
	return status.Errorf(status.OutOfRange, "%s の値 %s は範囲外です", name, describe(v))
}

// regionRect は関心領域を矩形に変換する
func regionRect(p BoundingPoly) (x, y, w, h int, err error) {
	switch {
	case len(p.Vertices) < 2:
		return 0, 0, 0, 0, status.New(status.InvalidArgument, "関心領域には2つの頂点が必要です")
	case len(p.Vertices) > 2:
		return 0, 0, 0, 0, status.New(status.Unimplemented, "2頂点以外の関心領域は未対応です")
	}
	tl, br := p.Vertices[0], p.Vertices[1]
	if !(br.X > tl.X && br.Y > tl.Y && tl.X >= 0 && tl.Y >= 0) || math.IsInf(br.X, 0) || math.IsInf(br.Y, 0) {
		return 0, 0, 0, 0, status.Errorf(status.InvalidArgument, "不正な関心領域: %v", p.Vertices)
	}
	return int(tl.X), int(tl.Y), int(br.X - tl.X), int(br.Y - tl.Y), nil
}

// fullFrame は解像度全体を覆う関心領域を返す
func fullFrame(r Resolution) BoundingPoly {
	return BoundingPoly{Vertices: []Vertex{{X: 0, Y: 0}, {X: float64(r.Width), Y: float64(r.Height)}}}
}

// describe はログ用に設定値を文字列化する
func describe(v any) string {
	switch x := v.(type) {
	case Frequency:
		return fmt.Sprintf("%.2fHz", float64(x))
	case Period:
		return time.Duration(x).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
