// Package opmap maps host operators onto accel graph operations.
//
// The Registry holds one Op per operator identity. An identity is either a
// builtin operator code or a custom operator name; custom names take
// precedence when a registration carries both. Each Op answers four
// questions for the delegate:
//   - IsSupported: can this node run on the accelerator?
//   - ParamSize: how many parameter bytes to copy out of the node
//   - StateTensorIndexes: which inputs carry recurrent state
//   - MapOp: emit the accel operation(s) for one node
package opmap
