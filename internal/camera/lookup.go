package camera

import "fmt"

// Pair は対応表の1エントリ
type Pair[K, V comparable] struct {
	Key   K
	Value V
}

// Lookup は正引きと逆引きを持つ対応表
//
// 構築時にキーと値の一意性を検証し、以後は読み取り専用として扱う。
type Lookup[K, V comparable] struct {
	forward map[K]V
	reverse map[V]K
	keys    []K
}

// NewLookup は対応表を作成する。キーまたは値が重複している場合は panic する
func NewLookup[K, V comparable](pairs ...Pair[K, V]) *Lookup[K, V] {
	l := &Lookup[K, V]{
		forward: make(map[K]V, len(pairs)),
		reverse: make(map[V]K, len(pairs)),
		keys:    make([]K, 0, len(pairs)),
	}
	for _, p := range pairs {
		if _, dup := l.forward[p.Key]; dup {
			panic(fmt.Sprintf("対応表のキーが重複しています: %v", p.Key))
		}
		if _, dup := l.reverse[p.Value]; dup {
			panic(fmt.Sprintf("対応表の値が重複しています: %v", p.Value))
		}
		l.forward[p.Key] = p.Value
		l.reverse[p.Value] = p.Key
		l.keys = append(l.keys, p.Key)
	}
	return l
}

// Forward はキーに対応する値を返す
func (l *Lookup[K, V]) Forward(key K) (V, bool) {
	v, ok := l.forward[key]
	return v, ok
}

// Reverse は値に対応するキーを返す
func (l *Lookup[K, V]) Reverse(value V) (K, bool) {
	k, ok := l.reverse[value]
	return k, ok
}

// Keys は登録順のキーを返す
func (l *Lookup[K, V]) Keys() []K {
	return append([]K(nil), l.keys...)
}

// contentTypes は画像形式とMIMEタイプの対応
var contentTypes = NewLookup(
	Pair[ImageFormatKind, string]{FormatJPEG, "image/jpeg"},
	Pair[ImageFormatKind, string]{FormatPNG, "image/png"},
	Pair[ImageFormatKind, string]{FormatWebP, "image/webp"},
)

// ContentType は画像形式のMIMEタイプを返す
func ContentType(f ImageFormatKind) string {
	if ct, ok := contentTypes.Forward(f); ok {
		return ct
	}
	return "application/octet-stream"
}

// FormatFromContentType はMIMEタイプから画像形式を返す
func FormatFromContentType(ct string) (ImageFormatKind, bool) {
	return contentTypes.Reverse(ct)
}

// pixelFormats は色空間とffmpegのピクセルフォーマットの対応
var pixelFormats = NewLookup(
	Pair[ColorSpace, string]{ColorSpaceRGB, "yuvj420p"},
	Pair[ColorSpace, string]{ColorSpaceGray, "gray"},
)
