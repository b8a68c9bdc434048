package opmap

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/ref"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/host/interp"
	"github.com/born-ml/graphbridge/internal/tensor"
)

func newInterp() *interp.Interpreter {
	logger, _ := test.NewNullLogger()
	return interp.New(interp.Options{Logger: logger})
}

func f32(name string, dims ...int) *tensor.Tensor {
	return tensor.New(name, tensor.Float32, tensor.Shape(dims))
}

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

func supported(t *testing.T, r *Registry, it *interp.Interpreter, n int) bool {
	t.Helper()
	node, reg, err := it.NodeAndRegistration(n)
	require.NoError(t, err)
	_, op, ok := r.Lookup(reg)
	return ok && op.IsSupported(it, node, reg)
}

func TestOpID(t *testing.T) {
	add := Builtin(host.BuiltinAdd)
	assert.False(t, add.IsCustom())
	assert.Equal(t, "ADD", add.String())
	assert.Equal(t, host.BuiltinAdd, add.Code())

	leaky := Custom(host.CustomLeakyRelu)
	assert.True(t, leaky.IsCustom())
	assert.Equal(t, host.CustomLeakyRelu, leaky.String())
	assert.Equal(t, host.CustomLeakyRelu, leaky.CustomName())

	reg := &host.Registration{BuiltinCode: host.BuiltinAdd, CustomName: "x"}
	assert.Equal(t, Custom("x"), IdentityOf(reg))
	assert.Equal(t, add, IdentityOf(&host.Registration{BuiltinCode: host.BuiltinAdd}))
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	essential := []OpID{
		Builtin(host.BuiltinAdd), Builtin(host.BuiltinSub), Builtin(host.BuiltinMul),
		Builtin(host.BuiltinRelu), Builtin(host.BuiltinReluN1To1), Builtin(host.BuiltinRelu6),
		Builtin(host.BuiltinTanh), Builtin(host.BuiltinLogistic),
		Builtin(host.BuiltinFullyConnected), Builtin(host.BuiltinRNN),
		Builtin(host.BuiltinReshape), Builtin(host.BuiltinTranspose),
		Custom(host.CustomLeakyRelu),
	}
	for _, id := range essential {
		_, ok := r.Get(id)
		assert.True(t, ok, "expected %s to be registered", id)
	}
	assert.Len(t, r.SupportedOps(), len(essential))

	_, ok := r.Get(Builtin(host.BuiltinFloor))
	assert.False(t, ok)
	_, ok = r.Get(Custom("nope"))
	assert.False(t, ok)
}

func TestSupportedOpsSorted(t *testing.T) {
	ids := NewRegistry().SupportedOps()
	for i := 1; i < len(ids); i++ {
		assert.LessOrEqual(t, ids[i-1].String(), ids[i].String())
	}
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()
	r.Register(Custom("my.Relu"), unaryOp{op: accel.Relu{}})
	_, op, ok := r.Lookup(&host.Registration{BuiltinCode: host.BuiltinCustom, CustomName: "my.Relu"})
	require.True(t, ok)
	assert.Equal(t, 0, op.ParamSize())
}

func TestParamSizes(t *testing.T) {
	r := NewRegistry()
	sizes := map[OpID]int{
		Builtin(host.BuiltinAdd):            4,
		Builtin(host.BuiltinRelu):           0,
		Builtin(host.BuiltinFullyConnected): 8,
		Builtin(host.BuiltinRNN):            8,
		Builtin(host.BuiltinTranspose):      0,
		Custom(host.CustomLeakyRelu):        4,
	}
	for id, want := range sizes {
		op, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, op.ParamSize(), id.String())
	}
}

func TestIsSupported(t *testing.T) {
	r := NewRegistry()
	it := newInterp()
	defer it.Close()

	a := it.AddTensor(f32("a", 1, 4))
	b := it.AddTensor(f32("b", 4))
	c := it.AddTensor(f32("c", 1, 4))
	bad := it.AddTensor(tensor.New("bad", tensor.Float64, tensor.Shape{1, 4}))
	odd := it.AddTensor(f32("odd", 3))
	i8 := it.AddTensor(tensor.New("i8", tensor.Int8, tensor.Shape{1, 4}))

	add, err := it.AddBuiltin(host.BuiltinAdd, []int{a, b}, []int{c}, host.ArithmeticParams{})
	require.NoError(t, err)
	assert.True(t, supported(t, r, it, add))

	addF64, err := it.AddBuiltin(host.BuiltinAdd, []int{a, bad}, []int{c}, host.ArithmeticParams{})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, addF64))

	addMismatch, err := it.AddBuiltin(host.BuiltinAdd, []int{a, odd}, []int{c}, host.ArithmeticParams{})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, addMismatch))

	addMixed, err := it.AddBuiltin(host.BuiltinAdd, []int{a, i8}, []int{c}, host.ArithmeticParams{})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, addMixed))

	addSignBit, err := it.AddBuiltin(host.BuiltinAdd, []int{a, b}, []int{c}, host.ArithmeticParams{Activation: host.ActSignBit})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, addSignBit))

	addNoParams, err := it.AddBuiltin(host.BuiltinAdd, []int{a, b}, []int{c}, nil)
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, addNoParams))

	relu, err := it.AddBuiltin(host.BuiltinRelu, []int{a}, []int{c}, nil)
	require.NoError(t, err)
	assert.True(t, supported(t, r, it, relu))

	reluShape, err := it.AddBuiltin(host.BuiltinRelu, []int{a}, []int{b}, nil)
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, reluShape))

	floor, err := it.AddBuiltin(host.BuiltinFloor, []int{a}, []int{c}, nil)
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, floor))
}

func TestIsSupportedDense(t *testing.T) {
	r := NewRegistry()
	it := newInterp()
	defer it.Close()

	in := it.AddTensor(f32("in", 2, 3))
	w, err := it.AddConstant(tensor.FromFloat32("w", tensor.Shape{2, 3}, make([]float32, 6)))
	require.NoError(t, err)
	wVar := it.AddTensor(f32("wvar", 2, 3))
	out := it.AddTensor(f32("out", 2, 2))

	fc, err := it.AddBuiltin(host.BuiltinFullyConnected, []int{in, w, -1}, []int{out}, host.FullyConnectedParams{})
	require.NoError(t, err)
	assert.True(t, supported(t, r, it, fc))

	fcVar, err := it.AddBuiltin(host.BuiltinFullyConnected, []int{in, wVar, -1}, []int{out}, host.FullyConnectedParams{})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, fcVar))

	x := it.AddTensor(f32("x", 1, 1))
	rw, err := it.AddConstant(tensor.FromFloat32("rw", tensor.Shape{1, 1}, []float32{1}))
	require.NoError(t, err)
	bias, err := it.AddConstant(tensor.FromFloat32("bias", tensor.Shape{1}, []float32{0}))
	require.NoError(t, err)
	h := it.AddVariable(f32("h", 1, 1))
	notState := it.AddTensor(f32("h2", 1, 1))
	rout := it.AddTensor(f32("rout", 1, 1))

	cell, err := it.AddBuiltin(host.BuiltinRNN, []int{x, rw, rw, bias, h}, []int{rout}, host.RNNParams{})
	require.NoError(t, err)
	assert.True(t, supported(t, r, it, cell))

	node, _, err := it.NodeAndRegistration(cell)
	require.NoError(t, err)
	op, _ := r.Get(Builtin(host.BuiltinRNN))
	assert.Equal(t, []int{h}, op.StateTensorIndexes(node))

	cellNoState, err := it.AddBuiltin(host.BuiltinRNN, []int{x, rw, rw, bias, notState}, []int{rout}, host.RNNParams{})
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, cellNoState))
}

func TestIsSupportedTranspose(t *testing.T) {
	r := NewRegistry()
	it := newInterp()
	defer it.Close()

	in := it.AddTensor(f32("in", 2, 3))
	perm, err := it.AddConstant(tensor.FromInt32("perm", tensor.Shape{2}, []int32{1, 0}))
	require.NoError(t, err)
	dynPerm := it.AddTensor(tensor.New("dyn", tensor.Int32, tensor.Shape{2}))
	out := it.AddTensor(f32("out", 3, 2))
	wrong := it.AddTensor(f32("wrong", 2, 3))

	tr, err := it.AddBuiltin(host.BuiltinTranspose, []int{in, perm}, []int{out}, nil)
	require.NoError(t, err)
	assert.True(t, supported(t, r, it, tr))

	dyn, err := it.AddBuiltin(host.BuiltinTranspose, []int{in, dynPerm}, []int{out}, nil)
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, dyn))

	shape, err := it.AddBuiltin(host.BuiltinTranspose, []int{in, perm}, []int{wrong}, nil)
	require.NoError(t, err)
	assert.False(t, supported(t, r, it, shape))
}

func f32Spec(attr accel.Attribute, dims ...uint32) accel.TensorSpec {
	return accel.TensorSpec{DataType: accel.Float32, Shape: accel.ShapeType(dims), Attr: attr}
}

func TestMapAddWithFusedActivation(t *testing.T) {
	r := NewRegistry()
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	a, err := g.CreateTensor(f32Spec(accel.Input, 4, 1), nil)
	require.NoError(t, err)
	b, err := g.CreateTensor(f32Spec(accel.Input, 4, 1), nil)
	require.NoError(t, err)
	out, err := g.CreateTensor(f32Spec(accel.Output, 4, 1), nil)
	require.NoError(t, err)

	params := host.EncodeParams(host.ArithmeticParams{Activation: host.ActRelu6})
	require.NoError(t, r.MapOp(Builtin(host.BuiltinAdd), g, []accel.Tensor{a, b}, []accel.Tensor{out}, nil, params))
	require.Len(t, g.Operations(), 2)
	assert.Equal(t, "Add", g.Operations()[0].Op().Kind())
	assert.Equal(t, "Relu6", g.Operations()[1].Op().Kind())

	require.NoError(t, g.Compile())
	require.NoError(t, a.CopyDataToTensor(f32Bytes(1, 2, 3, 4)))
	require.NoError(t, b.CopyDataToTensor(f32Bytes(-5, 0, 3, 4)))
	require.NoError(t, g.Run())
	got := make([]byte, 16)
	require.NoError(t, out.CopyDataFromTensor(got))
	assert.Equal(t, []float32{0, 2, 6, 6}, bytesF32(got))
}

func TestMapFullyConnectedKeepNumDims(t *testing.T) {
	r := NewRegistry()
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	// Host shapes: in [1, 2, 2], weights [1, 2], out [1, 2, 1].
	in, err := g.CreateTensor(f32Spec(accel.Input, 2, 2, 1), nil)
	require.NoError(t, err)
	w, err := g.CreateTensor(f32Spec(accel.Constant, 2, 1), f32Bytes(1, 10))
	require.NoError(t, err)
	out, err := g.CreateTensor(f32Spec(accel.Output, 1, 2, 1), nil)
	require.NoError(t, err)

	params := host.EncodeParams(host.FullyConnectedParams{KeepNumDims: 1})
	require.NoError(t, r.MapOp(Builtin(host.BuiltinFullyConnected), g,
		[]accel.Tensor{in, w, g.CreateTensorPlaceholder()}, []accel.Tensor{out}, nil, params))

	kinds := make([]string, 0, 3)
	for _, o := range g.Operations() {
		kinds = append(kinds, o.Op().Kind())
	}
	assert.Equal(t, []string{"Reshape", "FullyConnected", "Reshape"}, kinds)

	require.NoError(t, g.Compile())
	require.NoError(t, in.CopyDataToTensor(f32Bytes(1, 2, 3, 4)))
	require.NoError(t, g.Run())
	got := make([]byte, 8)
	require.NoError(t, out.CopyDataFromTensor(got))
	assert.Equal(t, []float32{21, 43}, bytesF32(got))
}

func TestMapTransposePermutation(t *testing.T) {
	r := NewRegistry()
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	// Host [2, 3, 4] with perm [2, 0, 1] gives [4, 2, 3].
	in, err := g.CreateTensor(f32Spec(accel.Input, 4, 3, 2), nil)
	require.NoError(t, err)
	permBytes := make([]byte, 12)
	for i, p := range []uint32{2, 0, 1} {
		binary.LittleEndian.PutUint32(permBytes[4*i:], p)
	}
	perm, err := g.CreateTensor(accel.TensorSpec{DataType: accel.Int32, Shape: accel.ShapeType{3}, Attr: accel.Constant}, permBytes)
	require.NoError(t, err)
	out, err := g.CreateTensor(f32Spec(accel.Output, 3, 2, 4), nil)
	require.NoError(t, err)

	require.NoError(t, r.MapOp(Builtin(host.BuiltinTranspose), g, []accel.Tensor{in, perm}, []accel.Tensor{out}, nil, nil))
	op, ok := g.Operations()[0].Op().(accel.Transpose)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 0}, op.Perm)
	require.NoError(t, g.Compile())
}

func TestMapRNNBindsState(t *testing.T) {
	r := NewRegistry()
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	mk := func(attr accel.Attribute, data []byte, dims ...uint32) accel.Tensor {
		tn, err := g.CreateTensor(f32Spec(attr, dims...), data)
		require.NoError(t, err)
		return tn
	}
	x := mk(accel.Input, nil, 1, 1)
	w := mk(accel.Constant, f32Bytes(1), 1, 1)
	rw := mk(accel.Constant, f32Bytes(1), 1, 1)
	b := mk(accel.Constant, f32Bytes(0), 1)
	h := mk(accel.Input, nil, 1, 1)
	out := mk(accel.Output, nil, 1, 1)
	state := mk(accel.Output, nil, 1, 1)

	params := host.EncodeParams(host.RNNParams{})
	inputs := []accel.Tensor{x, w, rw, b, h}
	require.Error(t, r.MapOp(Builtin(host.BuiltinRNN), g, inputs, []accel.Tensor{out}, nil, params))
	require.NoError(t, r.MapOp(Builtin(host.BuiltinRNN), g, inputs, []accel.Tensor{out}, []accel.Tensor{state}, params))

	ops := g.Operations()
	require.NotEmpty(t, ops)
	last := ops[len(ops)-1]
	assert.Equal(t, []accel.Tensor{out, state}, last.Outputs())
}

func TestMapOpErrors(t *testing.T) {
	r := NewRegistry()
	g, err := ref.NewContext().CreateGraph()
	require.NoError(t, err)

	require.ErrorIs(t, r.MapOp(Builtin(host.BuiltinFloor), g, nil, nil, nil, nil), ErrUnknownOp)
	require.ErrorIs(t, r.MapOp(Builtin(host.BuiltinAdd), g, nil, nil, nil, nil), accel.ErrUnbound)

	a, err := g.CreateTensor(f32Spec(accel.Input, 1), nil)
	require.NoError(t, err)
	require.ErrorIs(t, r.MapOp(Builtin(host.BuiltinAdd), g, []accel.Tensor{a, a}, []accel.Tensor{a}, nil, []byte{1}), host.ErrBadParams)
}
