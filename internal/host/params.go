package host

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// FusedActivation is an activation applied to an operator's result.
type FusedActivation int32

// Fused activations.
const (
	ActNone FusedActivation = iota
	ActRelu
	ActReluN1To1
	ActRelu6
	ActTanh
	ActSignBit
	ActSigmoid
)

// ArithmeticParams configures ADD, SUB and MUL.
type ArithmeticParams struct {
	Activation FusedActivation
}

// FullyConnectedParams configures FULLY_CONNECTED.
type FullyConnectedParams struct {
	Activation  FusedActivation
	KeepNumDims int32
}

// RNNParams configures RNN.
type RNNParams struct {
	Activation               FusedActivation
	AsymmetricQuantizeInputs int32
}

// LeakyReluParams configures LEAKY_RELU and its custom counterpart.
type LeakyReluParams struct {
	Alpha float32
}

// ParamSize returns the encoded size of a fixed-size parameter struct.
func ParamSize(p any) int {
	return binary.Size(p)
}

// EncodeParams serializes a fixed-size parameter struct into the blob stored
// on a Node.
func EncodeParams(p any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
		panic(errors.Wrapf(err, "encode %T", p))
	}
	return buf.Bytes()
}

// DecodeParams fills p (a pointer to a fixed-size struct) from blob.
func DecodeParams(blob []byte, p any) error {
	if want := binary.Size(p); len(blob) < want {
		return errors.Wrapf(ErrBadParams, "%T needs %d bytes, got %d", p, want, len(blob))
	}
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, p); err != nil {
		return errors.Wrapf(ErrBadParams, "decode %T: %v", p, err)
	}
	return nil
}
