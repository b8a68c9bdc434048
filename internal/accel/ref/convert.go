package ref

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/parallel"
)

// channelOf returns a function mapping a flat element index to its channel
// along dim for an innermost-first shape. dim must lie inside the shape,
// which CreateTensor guarantees.
func channelOf(shape accel.ShapeType, dim int32) func(int) int {
	stride := 1
	for _, d := range shape[:dim] {
		stride *= int(d)
	}
	extent := int(shape[dim])
	return func(i int) int { return (i / stride) % extent }
}

// quantParams returns scale and zero point lookups for element i.
func quantParams(spec accel.TensorSpec) (func(int) (float32, int32), bool) {
	q := spec.Quant
	switch q.Type {
	case accel.QuantAsymmetric:
		if len(q.Scales) == 0 {
			return nil, false
		}
		scale, zp := q.Scales[0], int32(0)
		if len(q.ZeroPoints) > 0 {
			zp = q.ZeroPoints[0]
		}
		return func(int) (float32, int32) { return scale, zp }, true
	case accel.QuantSymmetricPerChannel:
		ch := channelOf(spec.Shape, q.ChannelDim)
		return func(i int) (float32, int32) {
			c := ch(i)
			var zp int32
			if c < len(q.ZeroPoints) {
				zp = q.ZeroPoints[c]
			}
			return q.Scales[c], zp
		}, len(q.Scales) > 0
	default:
		return nil, false
	}
}

// loadFloat32 decodes (and dequantizes) the tensor payload, chunked by cfg.
func loadFloat32(t *Tensor, cfg parallel.Config) ([]float32, error) {
	out := make([]float32, t.spec.Shape.NumElements())
	err := parallel.ForErr(len(out), func(start, end int) error {
		return decodeRange(t.spec, t.data, out[start:end], start)
	}, cfg)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRange decodes elements [first, first+len(out)) of data.
func decodeRange(spec accel.TensorSpec, data []byte, out []float32, first int) error {
	qp, quantized := quantParams(spec)

	switch spec.DataType {
	case accel.Float32:
		for k := range out {
			i := first + k
			out[k] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case accel.Float16:
		for k := range out {
			i := first + k
			out[k] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
	case accel.Int32, accel.Int16, accel.Int8, accel.Uint8:
		for k := range out {
			i := first + k
			v := rawInt(spec.DataType, data, i)
			if quantized {
				scale, zp := qp(i)
				out[k] = scale * float32(v-zp)
			} else {
				out[k] = float32(v)
			}
		}
	default:
		return errors.Wrapf(accel.ErrUnsupportedType, "load %s", spec.DataType)
	}
	return nil
}

// storeFloat32 encodes (and quantizes) values into the tensor payload,
// chunked by cfg.
func storeFloat32(t *Tensor, values []float32, cfg parallel.Config) error {
	return parallel.ForErr(len(values), func(start, end int) error {
		return encodeRange(t.spec, t.data, values[start:end], start)
	}, cfg)
}

// encodeRange encodes values into elements [first, first+len(values)).
func encodeRange(spec accel.TensorSpec, data []byte, values []float32, first int) error {
	qp, quantized := quantParams(spec)

	switch spec.DataType {
	case accel.Float32:
		for k, v := range values {
			binary.LittleEndian.PutUint32(data[4*(first+k):], math.Float32bits(v))
		}
	case accel.Float16:
		for k, v := range values {
			binary.LittleEndian.PutUint16(data[2*(first+k):], float16.Fromfloat32(v).Bits())
		}
	case accel.Int32, accel.Int16, accel.Int8, accel.Uint8:
		for k, v := range values {
			i := first + k
			var q int64
			if quantized {
				scale, zp := qp(i)
				q = int64(math.Round(float64(v/scale))) + int64(zp)
			} else {
				q = int64(math.Round(float64(v)))
			}
			putRawInt(spec.DataType, data, i, q)
		}
	default:
		return errors.Wrapf(accel.ErrUnsupportedType, "store %s", spec.DataType)
	}
	return nil
}

func rawInt(dt accel.DataType, data []byte, i int) int32 {
	switch dt {
	case accel.Int32:
		return int32(binary.LittleEndian.Uint32(data[4*i:])) //nolint:gosec // G115: reinterpretation
	case accel.Int16:
		return int32(int16(binary.LittleEndian.Uint16(data[2*i:]))) //nolint:gosec // G115: reinterpretation
	case accel.Int8:
		return int32(int8(data[i]))
	default:
		return int32(data[i])
	}
}

func putRawInt(dt accel.DataType, data []byte, i int, v int64) {
	switch dt {
	case accel.Int32:
		v = clamp(v, math.MinInt32, math.MaxInt32)
		binary.LittleEndian.PutUint32(data[4*i:], uint32(int32(v))) //nolint:gosec // G115: clamped above
	case accel.Int16:
		v = clamp(v, math.MinInt16, math.MaxInt16)
		binary.LittleEndian.PutUint16(data[2*i:], uint16(int16(v))) //nolint:gosec // G115: clamped above
	case accel.Int8:
		data[i] = byte(int8(clamp(v, math.MinInt8, math.MaxInt8))) //nolint:gosec // G115: clamped
	default:
		data[i] = byte(clamp(v, 0, math.MaxUint8))
	}
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}
