package webgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphbridge/internal/accel"
)

func TestNewWithoutAdapter(t *testing.T) {
	if IsAvailable() {
		t.Skip("WebGPU adapter present")
	}
	_, err := New()
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestElementwiseOnGPU(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	ctx, err := New()
	require.NoError(t, err)
	defer ctx.Release()
	assert.Equal(t, Name, ctx.Name())

	g, err := ctx.CreateGraph()
	require.NoError(t, err)

	spec := func(attr accel.Attribute) accel.TensorSpec {
		return accel.TensorSpec{DataType: accel.Float32, Shape: accel.ShapeType{4}, Attr: attr}
	}
	enc := func(values ...float32) []byte {
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}

	a, err := g.CreateTensor(spec(accel.Input), nil)
	require.NoError(t, err)
	b, err := g.CreateTensor(spec(accel.Constant), enc(1, 1, 1, 1))
	require.NoError(t, err)
	sum, err := g.CreateTensor(spec(accel.Transient), nil)
	require.NoError(t, err)
	out, err := g.CreateTensor(spec(accel.Output), nil)
	require.NoError(t, err)

	op, err := g.CreateOperation(accel.Sub{})
	require.NoError(t, err)
	op.BindInputs(a, b).BindOutputs(sum)
	op, err = g.CreateOperation(accel.Relu{})
	require.NoError(t, err)
	op.BindInputs(sum).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, a.CopyDataToTensor(enc(-1, 0, 2, 5)))
	require.NoError(t, g.Run())

	got := make([]byte, 16)
	require.NoError(t, out.CopyDataFromTensor(got))
	assert.Equal(t, enc(0, 0, 1, 4), got)
}
