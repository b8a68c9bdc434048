package opmap

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
)

// ErrUnknownOp is returned when no Op is registered for an identity.
var ErrUnknownOp = errors.New("opmap: unknown operator")

// OpID identifies a host operator: a builtin code or a custom name.
type OpID struct {
	code   host.BuiltinOperator
	custom string
}

// Builtin returns the identity of a builtin operator.
func Builtin(code host.BuiltinOperator) OpID {
	return OpID{code: code}
}

// Custom returns the identity of a custom operator.
func Custom(name string) OpID {
	return OpID{code: host.BuiltinCustom, custom: name}
}

// IdentityOf returns the identity of a registration.
// A non-empty custom name wins over the builtin code.
func IdentityOf(reg *host.Registration) OpID {
	if reg.CustomName != "" {
		return Custom(reg.CustomName)
	}
	return Builtin(reg.BuiltinCode)
}

// IsCustom reports whether the identity is a custom name.
func (id OpID) IsCustom() bool { return id.custom != "" }

// Code returns the builtin code (BuiltinCustom for custom operators).
func (id OpID) Code() host.BuiltinOperator { return id.code }

// CustomName returns the custom name, or "" for builtins.
func (id OpID) CustomName() string { return id.custom }

// String returns the builtin name or the custom name.
func (id OpID) String() string {
	if id.IsCustom() {
		return id.custom
	}
	return id.code.String()
}

// Op maps one host operator onto the accelerator.
type Op interface {
	// IsSupported reports whether the node, with its actual tensors, can
	// be delegated.
	IsSupported(ctx host.Context, node *host.Node, reg *host.Registration) bool
	// ParamSize is the number of parameter bytes the operator reads.
	ParamSize() int
	// StateTensorIndexes returns the host tensor indexes holding recurrent
	// state: read as input and overwritten after every invocation.
	StateTensorIndexes(node *host.Node) []int
	// MapOp appends the accel operation(s) for one node to g.
	// states holds one output tensor per state index.
	MapOp(g accel.Graph, inputs, outputs, states []accel.Tensor, params []byte) error
}

// Registry maps operator identities to Ops.
type Registry struct {
	ops map[OpID]Op
}

// NewRegistry creates a registry with all default operators.
func NewRegistry() *Registry {
	r := &Registry{
		ops: make(map[OpID]Op),
	}

	r.registerElementwise()
	r.registerActivations()
	r.registerDense()
	r.registerLayout()

	return r
}

// Register adds or replaces an operator.
func (r *Registry) Register(id OpID, op Op) {
	r.ops[id] = op
}

// Get returns the Op for an identity.
func (r *Registry) Get(id OpID) (Op, bool) {
	op, ok := r.ops[id]
	return op, ok
}

// Lookup returns the identity of reg and its Op.
func (r *Registry) Lookup(reg *host.Registration) (OpID, Op, bool) {
	id := IdentityOf(reg)
	op, ok := r.ops[id]
	return id, op, ok
}

// MapOp dispatches to the Op registered for id.
func (r *Registry) MapOp(id OpID, g accel.Graph, inputs, outputs, states []accel.Tensor, params []byte) error {
	op, ok := r.ops[id]
	if !ok {
		return errors.Wrapf(ErrUnknownOp, "%s", id)
	}
	if err := op.MapOp(g, inputs, outputs, states, params); err != nil {
		return errors.Wrapf(err, "map %s", id)
	}
	return nil
}

// SupportedOps returns every registered identity, sorted by name.
func (r *Registry) SupportedOps() []OpID {
	ids := make([]OpID, 0, len(r.ops))
	for id := range r.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}
