package camera

import (
	"fmt"
	"log"

	"camgateway/internal/status"
)

// CaptureState はドライバのキャプチャ状態を保持する
//
// キャプチャ中には変更できない設定は WhileIdle を通して適用し、
// 呼び出し側から見た状態は変更の前後で変わらない。
type CaptureState struct {
	capturing bool
	start     func() error
	stop      func() error
}

// NewCaptureState はデバイスの開始・停止処理を受け取って CaptureState を作成する
func NewCaptureState(start, stop func() error) *CaptureState {
	return &CaptureState{start: start, stop: stop}
}

// IsCapturing はキャプチャ中かどうかを返す
func (s *CaptureState) IsCapturing() bool {
	return s.capturing
}

// Start はキャプチャを開始する。既に開始済みなら何もしない
func (s *CaptureState) Start() error {
	if s.capturing {
		return nil
	}
	if err := s.start(); err != nil {
		return internalError("キャプチャ開始", err)
	}
	s.capturing = true
	return nil
}

// Stop はキャプチャを停止する。既に停止済みなら何もしない
func (s *CaptureState) Stop() error {
	if !s.capturing {
		return nil
	}
	if err := s.stop(); err != nil {
		return internalError("キャプチャ停止", err)
	}
	s.capturing = false
	return nil
}

// WhileIdle はキャプチャを一時停止して mutate を実行し、元の状態に戻す
//
// mutate が失敗しても再開は必ず試みる。再開に失敗した場合はそのエラーを優先して返す。
// 停止に失敗した場合は mutate を実行しない。
func WhileIdle[T any](s *CaptureState, value T, mutate func(T) error) error {
	wasCapturing := s.capturing
	if wasCapturing {
		if err := s.Stop(); err != nil {
			return err
		}
	}

	err := mutate(value)

	if wasCapturing {
		if rerr := s.Start(); rerr != nil {
			if err != nil {
				log.Printf("[driver] 設定変更の失敗 (%v) 後にキャプチャを再開できませんでした", err)
				return status.Errorf(status.CodeOf(rerr),
					"キャプチャを再開できません (設定変更も失敗: %s): %s", status.WhyOf(err), status.WhyOf(rerr))
			}
			return fmt.Errorf("キャプチャを再開できません: %w", rerr)
		}
	}

	return err
}
