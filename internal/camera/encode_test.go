package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"camgateway/internal/status"
)

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 32), B: 64, A: 255})
		}
	}
	return img
}

func ratio(v float64) *float64 { return &v }

func TestEncodeImage(t *testing.T) {
	t.Run("jpeg", func(t *testing.T) {
		data, err := EncodeImage(sampleImage(), ImageFormat{Format: FormatJPEG, Compression: ratio(0.2)})
		if err != nil {
			t.Fatalf("EncodeImage failed: %v", err)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Expected valid JPEG: %v", err)
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
			t.Errorf("Unexpected bounds: %v", img.Bounds())
		}
	})

	t.Run("png", func(t *testing.T) {
		data, err := EncodeImage(sampleImage(), ImageFormat{Format: FormatPNG})
		if err != nil {
			t.Fatalf("EncodeImage failed: %v", err)
		}
		if _, err := png.Decode(bytes.NewReader(data)); err != nil {
			t.Fatalf("Expected valid PNG: %v", err)
		}
	})

	t.Run("webp", func(t *testing.T) {
		_, err := EncodeImage(sampleImage(), ImageFormat{Format: FormatWebP})
		if status.CodeOf(err) != status.Unimplemented {
			t.Errorf("Expected UNIMPLEMENTED, got %v", err)
		}
	})

	t.Run("compression out of range", func(t *testing.T) {
		_, err := EncodeImage(sampleImage(), ImageFormat{Format: FormatPNG, Compression: ratio(1.5)})
		if status.CodeOf(err) != status.OutOfRange {
			t.Errorf("Expected OUT_OF_RANGE, got %v", err)
		}
	})
}

func TestJPEGQuality(t *testing.T) {
	if q := jpegQuality(nil); q != jpeg.DefaultQuality {
		t.Errorf("Expected default quality, got %d", q)
	}
	if q := jpegQuality(ratio(0)); q != 100 {
		t.Errorf("Expected quality 100 for no compression, got %d", q)
	}
	if q := jpegQuality(ratio(1)); q != 1 {
		t.Errorf("Expected quality 1 for full compression, got %d", q)
	}
	if pngLevel(ratio(0.9)) != png.BestCompression {
		t.Error("Expected best compression for 0.9")
	}
}

func TestTranscode_GrayPNG(t *testing.T) {
	var src bytes.Buffer
	if err := jpeg.Encode(&src, sampleImage(), nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}

	// 既定のJPEGはそのまま返す
	out, err := transcode(src.Bytes(), ColorSpaceRGB, ImageFormat{Format: FormatJPEG})
	if err != nil {
		t.Fatalf("transcode failed: %v", err)
	}
	if !bytes.Equal(out, src.Bytes()) {
		t.Error("Expected passthrough for default JPEG")
	}

	out, err = transcode(src.Bytes(), ColorSpaceGray, ImageFormat{Format: FormatPNG})
	if err != nil {
		t.Fatalf("transcode failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Expected valid PNG: %v", err)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("Expected gray image, got %T", img)
	}
}
