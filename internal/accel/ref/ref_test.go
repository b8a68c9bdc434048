package ref

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/parallel"
)

func f32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func bytesF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func f32Spec(attr accel.Attribute, dims ...uint32) accel.TensorSpec {
	return accel.TensorSpec{DataType: accel.Float32, Shape: accel.ShapeType(dims), Attr: attr}
}

func mustTensor(t *testing.T, g accel.Graph, spec accel.TensorSpec, data []byte) accel.Tensor {
	t.Helper()
	tn, err := g.CreateTensor(spec, data)
	require.NoError(t, err)
	return tn
}

func mustOp(t *testing.T, g accel.Graph, op accel.Op) accel.Operation {
	t.Helper()
	o, err := g.CreateOperation(op)
	require.NoError(t, err)
	return o
}

func run(t *testing.T, g accel.Graph, out accel.Tensor) []float32 {
	t.Helper()
	require.NoError(t, g.Run())
	buf := make([]byte, out.Spec().ByteSize())
	require.NoError(t, out.CopyDataFromTensor(buf))
	return bytesF32(buf)
}

func TestAddConstant(t *testing.T) {
	ctx := NewContext()
	g, err := ctx.CreateGraph()
	require.NoError(t, err)

	a := mustTensor(t, g, f32Spec(accel.Input, 4, 1), nil)
	b := mustTensor(t, g, f32Spec(accel.Constant, 4, 1), f32Bytes(10, 20, 30, 40))
	out := mustTensor(t, g, f32Spec(accel.Output, 4, 1), nil)
	mustOp(t, g, accel.Add{}).BindInputs(a, b).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, a.CopyDataToTensor(f32Bytes(1, 2, 3, 4)))
	assert.Equal(t, []float32{11, 22, 33, 44}, run(t, g, out))

	// Second run with new input reuses the compiled graph.
	require.NoError(t, a.CopyDataToTensor(f32Bytes(0, 0, 0, 1)))
	assert.Equal(t, []float32{10, 20, 30, 41}, run(t, g, out))

	assert.Equal(t, Stats{Graphs: 1, Compiles: 1, Runs: 2}, ctx.Stats())
}

func TestBroadcastAdd(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	a := mustTensor(t, g, f32Spec(accel.Input, 3, 2), nil)
	b := mustTensor(t, g, f32Spec(accel.Constant, 3), f32Bytes(10, 20, 30))
	out := mustTensor(t, g, f32Spec(accel.Output, 3, 2), nil)
	mustOp(t, g, accel.Add{}).BindInputs(a, b).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, a.CopyDataToTensor(f32Bytes(1, 2, 3, 4, 5, 6)))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, run(t, g, out))
}

func TestCompileIsIdempotent(t *testing.T) {
	ctx := NewContext()
	g, err := ctx.CreateGraph()
	require.NoError(t, err)

	in := mustTensor(t, g, f32Spec(accel.Input, 2), nil)
	out := mustTensor(t, g, f32Spec(accel.Output, 2), nil)
	mustOp(t, g, accel.Relu{}).BindInputs(in).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, g.Compile())
	assert.True(t, g.Compiled())
	assert.Equal(t, int64(1), ctx.Stats().Compiles)
}

func TestGraphSealedAfterCompile(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)
	require.NoError(t, g.Compile())

	_, err = g.CreateTensor(f32Spec(accel.Input, 2), nil)
	require.ErrorIs(t, err, accel.ErrGraphCompiled)
	_, err = g.CreateOperation(accel.Relu{})
	require.ErrorIs(t, err, accel.ErrGraphCompiled)
}

func TestRunBeforeCompile(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)
	require.ErrorIs(t, g.Run(), accel.ErrNotCompiled)
}

func TestCreateTensorErrors(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	_, err = g.CreateTensor(f32Spec(accel.Constant, 2), f32Bytes(1))
	require.ErrorIs(t, err, accel.ErrBufferSize)

	_, err = g.CreateTensor(accel.TensorSpec{Shape: accel.ShapeType{2}}, nil)
	require.ErrorIs(t, err, accel.ErrUnsupportedType)

	_, err = g.CreateTensor(f32Spec(accel.Input), nil)
	require.ErrorIs(t, err, accel.ErrShapeMismatch)

	wide := accel.TensorSpec{
		DataType: accel.Int8,
		Shape:    accel.ShapeType{2, 3},
		Attr:     accel.Constant,
		Quant:    accel.NewPerChannel(1, []float32{1, 2, 3, 4}, nil),
	}
	_, err = g.CreateTensor(wide, make([]byte, 6))
	require.ErrorIs(t, err, accel.ErrQuantization)

	wide.Quant = accel.NewPerChannel(-4, []float32{1, 2, 3}, nil)
	_, err = g.CreateTensor(wide, make([]byte, 6))
	require.ErrorIs(t, err, accel.ErrQuantization)
}

func TestCompileRejectsBadGraphs(t *testing.T) {
	t.Run("shape mismatch", func(t *testing.T) {
		g, err := NewContext().CreateGraph()
		require.NoError(t, err)
		in := mustTensor(t, g, f32Spec(accel.Input, 2), nil)
		out := mustTensor(t, g, f32Spec(accel.Output, 3), nil)
		mustOp(t, g, accel.Relu{}).BindInputs(in).BindOutputs(out)
		require.ErrorIs(t, g.Compile(), accel.ErrShapeMismatch)
		assert.False(t, g.Compiled())
	})

	t.Run("read before produced", func(t *testing.T) {
		g, err := NewContext().CreateGraph()
		require.NoError(t, err)
		tmp := mustTensor(t, g, f32Spec(accel.Transient, 2), nil)
		out := mustTensor(t, g, f32Spec(accel.Output, 2), nil)
		mustOp(t, g, accel.Relu{}).BindInputs(tmp).BindOutputs(out)
		require.Error(t, g.Compile())
	})

	t.Run("required placeholder", func(t *testing.T) {
		g, err := NewContext().CreateGraph()
		require.NoError(t, err)
		out := mustTensor(t, g, f32Spec(accel.Output, 2), nil)
		mustOp(t, g, accel.Relu{}).BindInputs(g.CreateTensorPlaceholder()).BindOutputs(out)
		require.ErrorIs(t, g.Compile(), accel.ErrUnbound)
	})

	t.Run("foreign tensor", func(t *testing.T) {
		ctx := NewContext()
		g1, err := ctx.CreateGraph()
		require.NoError(t, err)
		g2, err := ctx.CreateGraph()
		require.NoError(t, err)
		in := mustTensor(t, g1, f32Spec(accel.Input, 2), nil)
		out := mustTensor(t, g2, f32Spec(accel.Output, 2), nil)
		mustOp(t, g2, accel.Relu{}).BindInputs(in).BindOutputs(out)
		require.ErrorIs(t, g2.Compile(), accel.ErrForeignTensor)
	})
}

func TestCopyChecksSize(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)
	in := mustTensor(t, g, f32Spec(accel.Input, 2), nil)

	require.ErrorIs(t, in.CopyDataToTensor(f32Bytes(1)), accel.ErrBufferSize)
	require.ErrorIs(t, in.CopyDataFromTensor(make([]byte, 4)), accel.ErrBufferSize)
	require.ErrorIs(t, g.CreateTensorPlaceholder().CopyDataToTensor(nil), accel.ErrUnbound)
}

func TestUnaryActivations(t *testing.T) {
	tests := []struct {
		name string
		op   accel.Op
		want []float32
	}{
		{"relu", accel.Relu{}, []float32{0, 0, 0.5, 7}},
		{"relu1", accel.Relu1{}, []float32{-1, -0.5, 0.5, 1}},
		{"relu6", accel.Relu6{}, []float32{0, 0, 0.5, 6}},
		{"leaky", accel.LeakyRelu{Alpha: 0.5}, []float32{-1, -0.25, 0.5, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewContext().CreateGraph()
			require.NoError(t, err)
			in := mustTensor(t, g, f32Spec(accel.Input, 4), nil)
			out := mustTensor(t, g, f32Spec(accel.Output, 4), nil)
			mustOp(t, g, tt.op).BindInputs(in).BindOutputs(out)
			require.NoError(t, g.Compile())
			require.NoError(t, in.CopyDataToTensor(f32Bytes(-2, -0.5, 0.5, 7)))
			assert.Equal(t, tt.want, run(t, g, out))
		})
	}
}

func TestSigmoidTanh(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)
	in := mustTensor(t, g, f32Spec(accel.Input, 1), nil)
	sig := mustTensor(t, g, f32Spec(accel.Output, 1), nil)
	th := mustTensor(t, g, f32Spec(accel.Output, 1), nil)
	mustOp(t, g, accel.Sigmoid{}).BindInputs(in).BindOutputs(sig)
	mustOp(t, g, accel.Tanh{}).BindInputs(in).BindOutputs(th)
	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(0)))

	assert.InDelta(t, 0.5, run(t, g, sig)[0], 1e-6)
	assert.InDelta(t, 0, run(t, g, th)[0], 1e-6)
}

func TestFullyConnected(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	// Two batches of depth 3, two units.
	in := mustTensor(t, g, f32Spec(accel.Input, 3, 2), nil)
	w := mustTensor(t, g, f32Spec(accel.Constant, 3, 2), f32Bytes(1, 0, 0, 0, 1, 0))
	bias := mustTensor(t, g, f32Spec(accel.Constant, 2), f32Bytes(10, 20))
	out := mustTensor(t, g, f32Spec(accel.Output, 2, 2), nil)
	mustOp(t, g, accel.FullyConnected{Weights: 2}).BindInputs(in, w, bias).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(1, 2, 3, 4, 5, 6)))
	assert.Equal(t, []float32{11, 22, 14, 25}, run(t, g, out))
}

func TestFullyConnectedWithoutBias(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	in := mustTensor(t, g, f32Spec(accel.Input, 2, 1), nil)
	w := mustTensor(t, g, f32Spec(accel.Constant, 2, 1), f32Bytes(2, 3))
	out := mustTensor(t, g, f32Spec(accel.Output, 1, 1), nil)
	mustOp(t, g, accel.FullyConnected{Weights: 1}).
		BindInputs(in, w, g.CreateTensorPlaceholder()).
		BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(1, 1)))
	assert.Equal(t, []float32{5}, run(t, g, out))
}

func TestRNNCell(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	x := mustTensor(t, g, f32Spec(accel.Input, 1, 1), nil)
	w := mustTensor(t, g, f32Spec(accel.Constant, 1, 1), f32Bytes(3))
	r := mustTensor(t, g, f32Spec(accel.Constant, 1, 1), f32Bytes(0.5))
	b := mustTensor(t, g, f32Spec(accel.Constant, 1), f32Bytes(1))
	h := mustTensor(t, g, f32Spec(accel.Input, 1, 1), nil)
	out := mustTensor(t, g, f32Spec(accel.Output, 1, 1), nil)
	state := mustTensor(t, g, f32Spec(accel.Output, 1, 1), nil)
	mustOp(t, g, accel.RNNCell{}).BindInputs(x, w, r, b, h).BindOutputs(out, state)

	require.NoError(t, g.Compile())
	require.NoError(t, x.CopyDataToTensor(f32Bytes(2)))
	require.NoError(t, h.CopyDataToTensor(f32Bytes(4)))
	assert.Equal(t, []float32{9}, run(t, g, out))
	assert.Equal(t, []float32{9}, run(t, g, state))
}

func TestTranspose(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	// Row-major 2x3 becomes 3x2.
	in := mustTensor(t, g, f32Spec(accel.Input, 3, 2), nil)
	out := mustTensor(t, g, f32Spec(accel.Output, 2, 3), nil)
	mustOp(t, g, accel.Transpose{Perm: []uint32{1, 0}}).BindInputs(in).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(1, 2, 3, 4, 5, 6)))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, run(t, g, out))
}

func TestReshapeKeepsBytes(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	in := mustTensor(t, g, f32Spec(accel.Input, 3, 2), nil)
	out := mustTensor(t, g, f32Spec(accel.Output, 6), nil)
	mustOp(t, g, accel.Reshape{Size: accel.ShapeType{6}}).BindInputs(in).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(1, 2, 3, 4, 5, 6)))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, run(t, g, out))
}

func TestQuantizedAdd(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	spec := func(attr accel.Attribute) accel.TensorSpec {
		return accel.TensorSpec{
			DataType: accel.Uint8,
			Shape:    accel.ShapeType{2},
			Attr:     attr,
			Quant:    accel.NewAsymmetric(0.5, 10),
		}
	}
	a := mustTensor(t, g, spec(accel.Input), nil)
	b := mustTensor(t, g, spec(accel.Constant), []byte{10, 12})
	out := mustTensor(t, g, spec(accel.Output), nil)
	mustOp(t, g, accel.Add{}).BindInputs(a, b).BindOutputs(out)

	require.NoError(t, g.Compile())
	require.NoError(t, a.CopyDataToTensor([]byte{12, 14}))
	require.NoError(t, g.Run())

	got := make([]byte, 2)
	require.NoError(t, out.CopyDataFromTensor(got))
	assert.Equal(t, []byte{12, 16}, got)
}

func TestFloat16Relu(t *testing.T) {
	g, err := NewContext().CreateGraph()
	require.NoError(t, err)

	spec := func(attr accel.Attribute) accel.TensorSpec {
		return accel.TensorSpec{DataType: accel.Float16, Shape: accel.ShapeType{2}, Attr: attr}
	}
	in := mustTensor(t, g, spec(accel.Input), nil)
	out := mustTensor(t, g, spec(accel.Output), nil)
	mustOp(t, g, accel.Relu{}).BindInputs(in).BindOutputs(out)
	require.NoError(t, g.Compile())

	src := make([]byte, 4)
	binary.LittleEndian.PutUint16(src[0:], float16.Fromfloat32(-1.5).Bits())
	binary.LittleEndian.PutUint16(src[2:], float16.Fromfloat32(2.5).Bits())
	require.NoError(t, in.CopyDataToTensor(src))
	require.NoError(t, g.Run())

	got := make([]byte, 4)
	require.NoError(t, out.CopyDataFromTensor(got))
	assert.Equal(t, float32(0), float16.Frombits(binary.LittleEndian.Uint16(got[0:])).Float32())
	assert.Equal(t, float32(2.5), float16.Frombits(binary.LittleEndian.Uint16(got[2:])).Float32())
}

func TestPerChannelDequantize(t *testing.T) {
	spec := accel.TensorSpec{
		DataType: accel.Int8,
		Shape:    accel.ShapeType{2, 2},
		Quant:    accel.NewPerChannel(1, []float32{1, 10}, nil),
	}
	values, err := loadFloat32(&Tensor{spec: spec, data: []byte{1, 2, 3, 4}}, parallel.Config{})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 30, 40}, values)
}

// chunked splits even tiny loops across goroutines.
var chunked = parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}

func TestChunkedConversions(t *testing.T) {
	spec := accel.TensorSpec{
		DataType: accel.Int8,
		Shape:    accel.ShapeType{2, 5},
		Quant:    accel.NewPerChannel(0, []float32{1, 10}, nil),
	}
	src := &Tensor{spec: spec, data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}
	values, err := loadFloat32(src, chunked)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 20, 3, 40, 5, 60, 7, 80, 9, 100}, values)

	dst := &Tensor{spec: spec, data: make([]byte, 10)}
	require.NoError(t, storeFloat32(dst, values, chunked))
	assert.Equal(t, src.data, dst.data)

	bad := &Tensor{spec: accel.TensorSpec{Shape: accel.ShapeType{8}}, data: make([]byte, 8)}
	_, err = loadFloat32(bad, chunked)
	require.ErrorIs(t, err, accel.ErrUnsupportedType)
	require.ErrorIs(t, storeFloat32(bad, make([]float32, 8), chunked), accel.ErrUnsupportedType)
}

func TestRNNCellBatchesInParallel(t *testing.T) {
	ctx := NewContextWithExecutor("chunked", func() Executor { return NewCPUExecutor(chunked) })
	g, err := ctx.CreateGraph()
	require.NoError(t, err)

	x := mustTensor(t, g, f32Spec(accel.Input, 1, 2), nil)
	w := mustTensor(t, g, f32Spec(accel.Constant, 1, 2), f32Bytes(1, 2))
	r := mustTensor(t, g, f32Spec(accel.Constant, 2, 2), f32Bytes(1, 0, 0, 1))
	b := mustTensor(t, g, f32Spec(accel.Constant, 2), f32Bytes(0, 0))
	h := mustTensor(t, g, f32Spec(accel.Input, 2, 2), nil)
	out := mustTensor(t, g, f32Spec(accel.Output, 2, 2), nil)
	state := mustTensor(t, g, f32Spec(accel.Output, 2, 2), nil)
	mustOp(t, g, accel.RNNCell{}).BindInputs(x, w, r, b, h).BindOutputs(out, state)
	require.NoError(t, g.Compile())

	require.NoError(t, x.CopyDataToTensor(f32Bytes(1, 2)))
	require.NoError(t, h.CopyDataToTensor(f32Bytes(1, 1, 0, 0)))
	assert.Equal(t, []float32{2, 3, 2, 4}, run(t, g, out))

	buf := make([]byte, 16)
	require.NoError(t, state.CopyDataFromTensor(buf))
	assert.Equal(t, []float32{2, 3, 2, 4}, bytesF32(buf))
}
