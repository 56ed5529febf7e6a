package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	"camgateway/internal/status"
)

// jpegQuality は圧縮率をJPEG品質に変換する
func jpegQuality(compression *float64) int {
	if compression == nil {
		return jpeg.DefaultQuality
	}
	return int(math.Round(100 - 99*clamp01(*compression)))
}

// pngLevel は圧縮率をPNGの圧縮レベルに変換する
func pngLevel(compression *float64) png.CompressionLevel {
	if compression == nil {
		return png.DefaultCompression
	}
	switch c := clamp01(*compression); {
	case c < 0.25:
		return png.NoCompression
	case c < 0.5:
		return png.BestSpeed
	case c < 0.75:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// EncodeImage は画像を指定形式でエンコードする
func EncodeImage(img image.Image, f ImageFormat) ([]byte, error) {
	if f.Compression != nil {
		if err := checkRatio("compression", *f.Compression); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	switch f.Format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(f.Compression)}); err != nil {
			return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
		}
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(f.Compression)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("PNGエンコードに失敗: %w", err)
		}
	case FormatWebP:
		return nil, notImplemented("WebP")
	default:
		return nil, status.Errorf(status.InvalidArgument, "不明な画像形式: %s", f.Format)
	}
	return buf.Bytes(), nil
}

// ToGray は画像をグレースケールに変換する
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// transcode はJPEGフレームを指定形式・色空間に変換する
func transcode(frame []byte, cs ColorSpace, f ImageFormat) ([]byte, error) {
	// 既定圧縮のJPEGはffmpegの出力をそのまま使う
	if f.Format == FormatJPEG && f.Compression == nil {
		return frame, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	if cs == ColorSpaceGray {
		img = ToGray(img)
	}
	return EncodeImage(img, f)
}
