// Package tensor describes tensors as the host inference engine sees them:
// element type, shape, quantization, backing data and allocation kind.
package tensor

// DataType is the element type of a host tensor.
type DataType int

// Host element types.
const (
	NoType DataType = iota
	Float32
	Float16
	Int32
	Int16
	Int8
	Uint8
	Bool
	Float64
	Int64
)

// Size returns the byte size of one element, or 0 for NoType.
func (dt DataType) Size() int {
	switch dt {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Float16, Int16:
		return 2
	case Int8, Uint8, Bool:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Int16:
		return "int16"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	default:
		return "notype"
	}
}
