package playback

import "github.com/chewxy/math32"

// Downsample reduces values to at most maxPoints points for display using simple
// decimation. Destination-based: reuses dst if it has sufficient capacity.
// If len(values) <= maxPoints, all values are copied.
func Downsample(dst []float32, values []float32, maxPoints int) []float32 {
	if maxPoints <= 0 {
		return dst[:0]
	}

	if len(values) <= maxPoints {
		if cap(dst) >= len(values) {
			dst = dst[:len(values)]
			copy(dst, values)
			return dst
		}
		result := make([]float32, len(values))
		copy(result, values)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float32, 0, maxPoints)
	}

	step := float64(len(values)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(values) {
			dst = append(dst, values[idx])
		}
	}

	return dst
}

// MinMax returns the smallest and largest non NaN value. ok is false when every
// value is NaN.
func MinMax(values []float32) (lo, hi float32, ok bool) {
	lo, hi = math32.Inf(1), math32.Inf(-1)
	for _, v := range values {
		if math32.IsNaN(v) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// Divisions converts a value to graph divisions for a column descriptor,
// 0 being the centre line.
func (d Descriptor) Divisions(value float32) float32 {
	return (value + d.Offset) / d.PerDiv
}
