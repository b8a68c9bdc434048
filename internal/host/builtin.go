package host

import "strconv"

// BuiltinOperator is the numeric code of a builtin host operator.
// Codes follow the TensorFlow Lite schema numbering.
type BuiltinOperator int32

// Builtin operators known to this package.
const (
	BuiltinAdd             BuiltinOperator = 0
	BuiltinConcatenation   BuiltinOperator = 2
	BuiltinConv2D          BuiltinOperator = 3
	BuiltinDepthwiseConv2D BuiltinOperator = 4
	BuiltinFloor           BuiltinOperator = 8
	BuiltinFullyConnected  BuiltinOperator = 9
	BuiltinLogistic        BuiltinOperator = 14
	BuiltinMaxPool2D       BuiltinOperator = 17
	BuiltinMul             BuiltinOperator = 18
	BuiltinRelu            BuiltinOperator = 19
	BuiltinReluN1To1       BuiltinOperator = 20
	BuiltinRelu6           BuiltinOperator = 21
	BuiltinReshape         BuiltinOperator = 22
	BuiltinRNN             BuiltinOperator = 24
	BuiltinSoftmax         BuiltinOperator = 25
	BuiltinTanh            BuiltinOperator = 28
	BuiltinCustom          BuiltinOperator = 32
	BuiltinTranspose       BuiltinOperator = 39
	BuiltinSub             BuiltinOperator = 41
	BuiltinDelegate        BuiltinOperator = 51
	BuiltinLeakyRelu       BuiltinOperator = 98
)

var builtinNames = map[BuiltinOperator]string{
	BuiltinAdd:             "ADD",
	BuiltinConcatenation:   "CONCATENATION",
	BuiltinConv2D:          "CONV_2D",
	BuiltinDepthwiseConv2D: "DEPTHWISE_CONV_2D",
	BuiltinFloor:           "FLOOR",
	BuiltinFullyConnected:  "FULLY_CONNECTED",
	BuiltinLogistic:        "LOGISTIC",
	BuiltinMaxPool2D:       "MAX_POOL_2D",
	BuiltinMul:             "MUL",
	BuiltinRelu:            "RELU",
	BuiltinReluN1To1:       "RELU_N1_TO_1",
	BuiltinRelu6:           "RELU6",
	BuiltinReshape:         "RESHAPE",
	BuiltinRNN:             "RNN",
	BuiltinSoftmax:         "SOFTMAX",
	BuiltinTanh:            "TANH",
	BuiltinCustom:          "CUSTOM",
	BuiltinTranspose:       "TRANSPOSE",
	BuiltinSub:             "SUB",
	BuiltinDelegate:        "DELEGATE",
	BuiltinLeakyRelu:       "LEAKY_RELU",
}

// String returns the schema name of the operator.
func (op BuiltinOperator) String() string {
	if name, ok := builtinNames[op]; ok {
		return name
	}
	return "BUILTIN_" + strconv.Itoa(int(op))
}

// CustomLeakyRelu is the custom operator name of the leaky ReLU.
const CustomLeakyRelu = "born.LeakyRelu"
