package camera

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func fakeJPEG(payload ...byte) []byte {
	frame := append([]byte{0xFF, 0xD8}, payload...)
	return append(frame, 0xFF, 0xD9)
}

func TestSplitJPEG(t *testing.T) {
	a := fakeJPEG(1, 2, 3)
	b := fakeJPEG(4, 5)

	var frames [][]byte
	data := append(append([]byte{0x00, 0x01}, a...), b[:3]...)
	rest := splitJPEG(data, func(f []byte) { frames = append(frames, f) })

	if len(frames) != 1 || !bytes.Equal(frames[0], a) {
		t.Fatalf("Expected first frame to be extracted, got %v", frames)
	}
	if !bytes.Equal(rest, b[:3]) {
		t.Fatalf("Expected partial frame to remain, got %v", rest)
	}

	rest = splitJPEG(append(rest, b[3:]...), func(f []byte) { frames = append(frames, f) })
	if len(frames) != 2 || !bytes.Equal(frames[1], b) {
		t.Errorf("Expected second frame, got %v", frames)
	}
	if len(rest) != 0 {
		t.Errorf("Expected no remaining data, got %v", rest)
	}
}

func TestSplitJPEG_KeepsTrailingMarkerByte(t *testing.T) {
	rest := splitJPEG([]byte{0x10, 0x20, 0xFF}, func([]byte) {
		t.Error("unexpected frame")
	})
	if !bytes.Equal(rest, []byte{0xFF}) {
		t.Errorf("Expected trailing 0xFF to be kept, got %v", rest)
	}
}

// chunkReader は1バイトずつ返すリーダー
type chunkReader struct {
	data []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadFrames_ByteByByte(t *testing.T) {
	stream := append(fakeJPEG(1), fakeJPEG(2, 3)...)

	var frames [][]byte
	if err := readFrames(&chunkReader{data: stream}, func(f []byte) { frames = append(frames, f) }); err != nil {
		t.Fatalf("readFrames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[1], fakeJPEG(2, 3)) {
		t.Errorf("Unexpected second frame: %v", frames[1])
	}
}

func TestFFmpegStream_PushKeepsLatest(t *testing.T) {
	s := &ffmpegStream{frames: make(chan []byte, 1), done: make(chan struct{})}
	s.push([]byte{1})
	s.push([]byte{2})

	frame, ok := s.Next(time.Second)
	if !ok || frame[0] != 2 {
		t.Errorf("Expected latest frame, got %v %v", frame, ok)
	}
}
