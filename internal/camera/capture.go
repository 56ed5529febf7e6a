package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// execCommand はテストで差し替えられるコマンド生成関数
var execCommand = exec.CommandContext

// ffmpegStream はffmpegのMJPEG出力を読み取り、最新フレームを保持する
type ffmpegStream struct {
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// startFFmpeg はffmpegを起動して image2pipe 出力の読み取りを開始する
func startFFmpeg(args []string) (*ffmpegStream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := execCommand(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	s := &ffmpegStream{
		cancel: cancel,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}

	// stderrは最後の数行だけ残す
	go func() {
		scanner := bufio.NewScanner(stderr)
		var last string
		for scanner.Scan() {
			last = scanner.Text()
		}
		if last != "" && ctx.Err() == nil {
			log.Printf("[ffmpeg] %s", last)
		}
	}()

	go func() {
		defer close(s.done)
		err := readFrames(stdout, s.push)
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			// Close による停止
			return
		}
		if err == nil {
			err = waitErr
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()

	return s, nil
}

// push は最新フレームだけを残して古いフレームを捨てる
func (s *ffmpegStream) push(frame []byte) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// Next はタイムアウトまでに届いたフレームを返す
func (s *ffmpegStream) Next(timeout time.Duration) ([]byte, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-s.frames:
		return frame, true
	case <-s.done:
		select {
		case frame := <-s.frames:
			return frame, true
		default:
			return nil, false
		}
	case <-timer.C:
		return nil, false
	}
}

// Err はプロセスが異常終了していればその理由を返す
func (s *ffmpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close はffmpegを停止して読み取りの終了を待つ
func (s *ffmpegStream) Close() error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("ffmpegの停止がタイムアウトしました")
	}
}

// readFrames はストリームからJPEGフレームを切り出して emit に渡す
func readFrames(r io.Reader, emit func([]byte)) error {
	buffer := make([]byte, 1024*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])
			rest := splitJPEG(pending.Bytes(), emit)
			remaining := append([]byte(nil), rest...)
			pending.Reset()
			pending.Write(remaining)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitJPEG は完全なJPEGフレームを切り出し、未処理のデータを返す
func splitJPEG(data []byte, emit func([]byte)) []byte {
	for {
		startIdx := bytes.Index(data, jpegStart)
		if startIdx == -1 {
			// マーカーの途中で途切れている可能性がある
			if n := len(data); n > 0 && data[n-1] == 0xFF {
				return data[n-1:]
			}
			return nil
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
		if endIdx == -1 {
			// 完全なフレームがまだない
			return data[startIdx:]
		}

		endIdx += startIdx + 2 + 2
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		emit(frame)

		data = data[endIdx:]
	}
}
