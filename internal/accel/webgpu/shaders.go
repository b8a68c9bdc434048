//go:build windows

package webgpu

// workgroupSize is the number of threads per workgroup.
const workgroupSize = 256

// binaryShader builds an elementwise shader over two same-sized inputs.
func binaryShader(expr string) string {
	return `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = ` + expr + `;
    }
}
`
}

// unaryShader builds an elementwise shader over one input.
func unaryShader(expr string) string {
	return `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        let x = input[idx];
        result[idx] = ` + expr + `;
    }
}
`
}

var shaders = map[string]string{
	"Add":      binaryShader("a[idx] + b[idx]"),
	"Sub":      binaryShader("a[idx] - b[idx]"),
	"Multiply": binaryShader("a[idx] * b[idx]"),
	"Relu":     unaryShader("max(0.0, x)"),
	"Relu1":    unaryShader("clamp(x, -1.0, 1.0)"),
	"Relu6":    unaryShader("clamp(x, 0.0, 6.0)"),
	"Tanh":     unaryShader("tanh(x)"),
	"Sigmoid":  unaryShader("1.0 / (1.0 + exp(-x))"),
}
