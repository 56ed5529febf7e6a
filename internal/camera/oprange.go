package camera

import "math"

// OpRange はデバイス固有の値域
type OpRange struct {
	Min  float64
	Max  float64
	Step float64
}

// ToRatio はデバイス値を 0.0〜1.0 に正規化する
func (r OpRange) ToRatio(value float64) float64 {
	if r.Max <= r.Min {
		return 0
	}
	return clamp01((value - r.Min) / (r.Max - r.Min))
}

// ToValue は正規化値をデバイス値に変換する。Step があれば刻みに丸める
func (r OpRange) ToValue(ratio float64) float64 {
	v := r.Min + clamp01(ratio)*(r.Max-r.Min)
	if r.Step > 0 {
		v = r.Min + math.Round((v-r.Min)/r.Step)*r.Step
	}
	return math.Min(math.Max(v, r.Min), r.Max)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
