package delegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/ref"
	"github.com/born-ml/graphbridge/internal/tensor"
)

func TestTensorSpecShape(t *testing.T) {
	tests := []struct {
		name  string
		shape tensor.Shape
		perm  []uint32
		want  accel.ShapeType
	}{
		{"scalar", tensor.Shape{}, nil, accel.ShapeType{1}},
		{"reversed", tensor.Shape{2, 3, 4}, nil, accel.ShapeType{4, 3, 2}},
		{"permuted", tensor.Shape{2, 3, 4}, []uint32{2, 0, 1}, accel.ShapeType{3, 2, 4}},
		{"identity", tensor.Shape{5, 7}, []uint32{0, 1}, accel.ShapeType{7, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := TensorSpec(tensor.New("x", tensor.Float32, tt.shape), tt.perm, accel.Transient)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Shape)
			assert.Equal(t, accel.Float32, spec.DataType)
			assert.Equal(t, accel.Transient, spec.Attr)
		})
	}
}

func TestTensorSpecErrors(t *testing.T) {
	x := tensor.New("x", tensor.Float32, tensor.Shape{2, 3})
	_, err := TensorSpec(x, []uint32{0}, accel.Input)
	require.ErrorIs(t, err, ErrPermutation)
	_, err = TensorSpec(x, []uint32{1, 1}, accel.Input)
	require.ErrorIs(t, err, ErrPermutation)
	_, err = TensorSpec(x, []uint32{0, 2}, accel.Input)
	require.ErrorIs(t, err, ErrPermutation)

	for _, dt := range []tensor.DataType{tensor.Float64, tensor.Int64, tensor.NoType} {
		_, err = TensorSpec(tensor.New("x", dt, tensor.Shape{2}), nil, accel.Input)
		require.ErrorIs(t, err, ErrUnsupportedType, dt.String())
	}
}

func TestTensorSpecTypes(t *testing.T) {
	want := map[tensor.DataType]accel.DataType{
		tensor.Float32: accel.Float32,
		tensor.Float16: accel.Float16,
		tensor.Int32:   accel.Int32,
		tensor.Int16:   accel.Int16,
		tensor.Int8:    accel.Int8,
		tensor.Uint8:   accel.Uint8,
		tensor.Bool:    accel.Int8,
	}
	for host, dev := range want {
		spec, err := TensorSpec(tensor.New("x", host, tensor.Shape{1}), nil, accel.Input)
		require.NoError(t, err)
		assert.Equal(t, dev, spec.DataType, host.String())
	}
}

func TestTensorSpecQuantization(t *testing.T) {
	x := tensor.New("x", tensor.Uint8, tensor.Shape{4})
	x.Quant = tensor.PerTensor(0.5, 3)
	spec, err := TensorSpec(x, nil, accel.Input)
	require.NoError(t, err)
	assert.Equal(t, accel.NewAsymmetric(0.5, 3), spec.Quant)

	w := tensor.New("w", tensor.Int8, tensor.Shape{3, 2})
	w.Quant = tensor.PerChannel(0, []float32{1, 2, 3}, nil)
	spec, err = TensorSpec(w, nil, accel.Constant)
	require.NoError(t, err)
	assert.Equal(t, accel.QuantSymmetricPerChannel, spec.Quant.Type)
	assert.Equal(t, int32(1), spec.Quant.ChannelDim)
	assert.Equal(t, []float32{1, 2, 3}, spec.Quant.Scales)
	assert.Equal(t, []int32{0, 0, 0}, spec.Quant.ZeroPoints)

	spec, err = TensorSpec(w, []uint32{1, 0}, accel.Constant)
	require.NoError(t, err)
	assert.Equal(t, accel.ShapeType{3, 2}, spec.Shape)
	assert.Equal(t, int32(0), spec.Quant.ChannelDim)

	none := tensor.New("n", tensor.Float32, tensor.Shape{2})
	spec, err = TensorSpec(none, nil, accel.Input)
	require.NoError(t, err)
	assert.Equal(t, accel.QuantNone, spec.Quant.Type)
}

func TestTensorSpecRejectsBadPerChannel(t *testing.T) {
	tests := []struct {
		name  string
		quant *tensor.Quantization
	}{
		{"dimension past rank", tensor.PerChannel(5, []float32{1, 2, 3}, nil)},
		{"negative dimension", tensor.PerChannel(-1, []float32{1, 2, 3}, nil)},
		{"scale count", tensor.PerChannel(0, []float32{1, 2, 3, 4}, nil)},
		{"scales on wrong dimension", tensor.PerChannel(1, []float32{1, 2, 3}, nil)},
		{"zero point count", tensor.PerChannel(0, []float32{1, 2, 3}, []int32{0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tensor.New("w", tensor.Int8, tensor.Shape{3, 2})
			w.Data = make([]byte, 6)
			w.Quant = tt.quant

			_, err := TensorSpec(w, nil, accel.Constant)
			require.ErrorIs(t, err, ErrQuantization)

			g, err := ref.NewContext().CreateGraph()
			require.NoError(t, err)
			_, err = TranslateTensor(g, w, accel.Constant, []uint32{1, 0})
			require.ErrorIs(t, err, ErrQuantization)
			assert.Empty(t, g.Tensors())
		})
	}
}

func TestConvertAxis(t *testing.T) {
	assert.Equal(t, int32(3), ConvertAxis(0, 4, nil))
	assert.Equal(t, int32(0), ConvertAxis(3, 4, nil))
	// dim 0 lands at position 1 after the permutation.
	assert.Equal(t, int32(2), ConvertAxis(0, 4, []uint32{3, 0, 1, 2}))
	assert.Equal(t, int32(0), ConvertAxis(3, 4, []uint32{1, 2, 0, 3}))
}

func TestTransposeData(t *testing.T) {
	x := tensor.FromFloat32("x", tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	data, err := TransposeData(x, []uint32{1, 0})
	require.NoError(t, err)

	xt := tensor.New("xt", tensor.Float32, tensor.Shape{3, 2})
	xt.Data = data
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.AsFloat32())

	perm := []uint32{1, 0}
	inv := tensor.InversePermutation([]int{1, 0})
	for i, p := range inv {
		perm[i] = uint32(p)
	}
	back, err := TransposeData(xt, perm)
	require.NoError(t, err)
	assert.Equal(t, x.Data, back)
}

func TestTransposeDataWidths(t *testing.T) {
	b := tensor.New("b", tensor.Uint8, tensor.Shape{2, 2})
	b.Data = []byte{1, 2, 3, 4}
	out, err := TransposeData(b, []uint32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 3, 2, 4}, out)

	h := tensor.New("h", tensor.Int16, tensor.Shape{1, 2})
	h.Data = []byte{1, 0, 2, 0}
	out, err = TransposeData(h, []uint32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, out)

	l := tensor.New("l", tensor.Int64, tensor.Shape{2})
	l.Data = make([]byte, 16)
	_, err = TransposeData(l, []uint32{0})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestAttributeFor(t *testing.T) {
	weights := tensor.FromFloat32("w", tensor.Shape{2}, []float32{1, 2})
	weights.Allocation = tensor.AllocMmapRO
	assert.Equal(t, accel.Constant, AttributeFor(weights))

	act := tensor.New("a", tensor.Float32, tensor.Shape{2})
	assert.Equal(t, accel.Transient, AttributeFor(act))
	act.Allocate(tensor.AllocArenaRW)
	assert.Equal(t, accel.Transient, AttributeFor(act))

	state := tensor.New("h", tensor.Float32, tensor.Shape{2})
	state.IsVariable = true
	assert.Equal(t, accel.Variable, AttributeFor(state))
	state.Allocate(tensor.AllocPersistentRW)
	assert.Equal(t, accel.Variable, AttributeFor(state))

	// Model data wins over the variable flag.
	mapped := tensor.FromFloat32("v", tensor.Shape{2}, []float32{3, 4})
	mapped.IsVariable = true
	mapped.Allocation = tensor.AllocMmapRO
	assert.Equal(t, accel.Constant, AttributeFor(mapped))
}

func TestTranslateTensor(t *testing.T) {
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	w := tensor.FromFloat32("w", tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	c, err := TranslateTensor(g, w, accel.Constant, []uint32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, accel.ShapeType{2, 3}, c.Spec().Shape)
	want, err := TransposeData(w, []uint32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, want, c.ConstData())

	in, err := TranslateTensor(g, w, accel.Input, nil)
	require.NoError(t, err)
	assert.Nil(t, in.ConstData())
	assert.Equal(t, accel.Input, in.Spec().Attr)

	_, err = TranslateTensor(g, tensor.New("empty", tensor.Float32, tensor.Shape{2}), accel.Constant, nil)
	require.ErrorIs(t, err, ErrMissingTensor)

	l := tensor.New("l", tensor.Int64, tensor.Shape{2})
	l.Data = make([]byte, 16)
	_, err = TranslateTensor(g, l, accel.Constant, []uint32{0})
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Len(t, g.Tensors(), 2)
}
