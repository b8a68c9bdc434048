package tensor

// Quantization holds affine quantization parameters.
// A single scale/zero-point pair applies to the whole tensor; longer arrays
// apply per channel along QuantizedDimension.
type Quantization struct {
	Scales             []float32
	ZeroPoints         []int32
	QuantizedDimension int
}

// PerTensor returns quantization with a single scale and zero point.
func PerTensor(scale float32, zeroPoint int32) *Quantization {
	return &Quantization{
		Scales:     []float32{scale},
		ZeroPoints: []int32{zeroPoint},
	}
}

// PerChannel returns quantization with one scale per channel of dim.
// Zero points default to 0 when zeroPoints is nil.
func PerChannel(dim int, scales []float32, zeroPoints []int32) *Quantization {
	if zeroPoints == nil {
		zeroPoints = make([]int32, len(scales))
	}
	return &Quantization{
		Scales:             append([]float32(nil), scales...),
		ZeroPoints:         append([]int32(nil), zeroPoints...),
		QuantizedDimension: dim,
	}
}

// IsPerChannel reports whether the parameters carry more than one scale.
func (q *Quantization) IsPerChannel() bool {
	return q != nil && len(q.Scales) > 1
}
