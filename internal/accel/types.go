package accel

import (
	"fmt"

	"github.com/pkg/errors"
)

// DataType is an accelerator element type.
type DataType int

// Accelerator element types.
const (
	Unknown DataType = iota
	Float32
	Float16
	Int32
	Int16
	Int8
	Uint8
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float16, Int16:
		return 2
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "FLOAT32"
	case Float16:
		return "FLOAT16"
	case Int32:
		return "INT32"
	case Int16:
		return "INT16"
	case Int8:
		return "INT8"
	case Uint8:
		return "UINT8"
	default:
		return "UNKNOWN"
	}
}

// Attribute is the role a tensor plays in a graph.
type Attribute int

// Tensor attributes.
const (
	Transient Attribute = iota
	Input
	Output
	Variable
	Constant
)

// String returns the attribute name.
func (a Attribute) String() string {
	switch a {
	case Input:
		return "INPUT"
	case Output:
		return "OUTPUT"
	case Variable:
		return "VARIABLE"
	case Constant:
		return "CONSTANT"
	default:
		return "TRANSIENT"
	}
}

// QuantType selects the quantization scheme.
type QuantType int

// Quantization schemes.
const (
	QuantNone QuantType = iota
	QuantAsymmetric
	QuantSymmetricPerChannel
)

// Quantization describes how integer elements map to real values.
type Quantization struct {
	Type       QuantType
	ChannelDim int32
	Scales     []float32
	ZeroPoints []int32
}

// NewAsymmetric returns per-tensor asymmetric quantization.
func NewAsymmetric(scale float32, zeroPoint int32) Quantization {
	return Quantization{
		Type:       QuantAsymmetric,
		Scales:     []float32{scale},
		ZeroPoints: []int32{zeroPoint},
	}
}

// NewPerChannel returns per-channel symmetric quantization along channelDim.
func NewPerChannel(channelDim int32, scales []float32, zeroPoints []int32) Quantization {
	return Quantization{
		Type:       QuantSymmetricPerChannel,
		ChannelDim: channelDim,
		Scales:     append([]float32(nil), scales...),
		ZeroPoints: append([]int32(nil), zeroPoints...),
	}
}

// Validate checks the parameters against an innermost-first shape.
// Per-channel parameters need a channel dimension inside the shape, one
// scale per channel and either no zero points or one per channel.
func (q Quantization) Validate(shape ShapeType) error {
	switch q.Type {
	case QuantNone:
		return nil
	case QuantAsymmetric:
		if len(q.Scales) != 1 || len(q.ZeroPoints) > 1 {
			return errors.Wrapf(ErrQuantization, "asymmetric needs one scale, got %d", len(q.Scales))
		}
		return nil
	case QuantSymmetricPerChannel:
		if q.ChannelDim < 0 || int(q.ChannelDim) >= len(shape) {
			return errors.Wrapf(ErrQuantization, "channel dim %d outside rank %d", q.ChannelDim, len(shape))
		}
		extent := int(shape[q.ChannelDim])
		if len(q.Scales) != extent {
			return errors.Wrapf(ErrQuantization, "%d scales for %d channels", len(q.Scales), extent)
		}
		if len(q.ZeroPoints) != 0 && len(q.ZeroPoints) != extent {
			return errors.Wrapf(ErrQuantization, "%d zero points for %d channels", len(q.ZeroPoints), extent)
		}
		return nil
	default:
		return errors.Wrapf(ErrQuantization, "unknown scheme %d", q.Type)
	}
}

// ShapeType lists dimensions innermost first (W, H, C, N for images).
type ShapeType []uint32

// NumElements returns the product of all dimensions.
func (s ShapeType) NumElements() int {
	n := 1
	for _, d := range s {
		n *= int(d)
	}
	return n
}

// Equal checks if two shapes are equal.
func (s ShapeType) Equal(other ShapeType) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s ShapeType) Clone() ShapeType {
	return append(ShapeType(nil), s...)
}

// TensorSpec fully describes an accelerator tensor.
type TensorSpec struct {
	DataType DataType
	Shape    ShapeType
	Attr     Attribute
	Quant    Quantization
}

// ByteSize returns the payload size in bytes.
func (s TensorSpec) ByteSize() int {
	return s.Shape.NumElements() * s.DataType.Size()
}

// WithAttr returns a copy of s with a different attribute.
func (s TensorSpec) WithAttr(attr Attribute) TensorSpec {
	s.Shape = s.Shape.Clone()
	s.Attr = attr
	return s
}

// String returns a compact description.
func (s TensorSpec) String() string {
	return fmt.Sprintf("%s%v/%s", s.DataType, []uint32(s.Shape), s.Attr)
}
