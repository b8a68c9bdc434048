// Package delegate hands supported parts of a host execution plan to an
// accelerator backend.
//
// During Prepare the delegate walks the plan, keeps the nodes the operator
// catalog accepts and asks the host to replace them with delegate kernels.
// Each kernel captures its nodes, builds and compiles an accelerator graph
// on first invocation, and afterwards only moves data: inputs in, run,
// outputs out, recurrent state back into the host tensors.
package delegate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/opmap"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// KernelName is the custom name of the delegate kernel registration.
const KernelName = "graphbridge"

// KernelVersion is the version of the delegate kernel registration.
const KernelVersion = 1

// Delegate implements host.Delegate.
type Delegate struct {
	log        logrus.FieldLogger
	registry   *opmap.Registry
	newContext func() (accel.Context, error)
	reg        *host.Registration
}

var _ host.Delegate = (*Delegate)(nil)

// New creates a delegate. Zero-valued option fields take their defaults.
func New(opts Options) (*Delegate, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Registry == nil {
		opts.Registry = opmap.NewRegistry()
	}
	factory, err := opts.contextFactory()
	if err != nil {
		return nil, err
	}

	d := &Delegate{
		log:        opts.Logger.WithField("delegate", KernelName),
		registry:   opts.Registry,
		newContext: factory,
	}
	d.reg = &host.Registration{
		BuiltinCode: host.BuiltinDelegate,
		CustomName:  KernelName,
		Version:     KernelVersion,
		Init:        d.initKernel,
		Free:        d.freeKernel,
		Prepare:     func(host.Context, *host.Node) error { return nil },
		Invoke:      d.invokeKernel,
	}
	return d, nil
}

// Registration returns the kernel registration handed to the host.
func (d *Delegate) Registration() *host.Registration { return d.reg }

// SupportedOps returns the operators the delegate can take over.
func (d *Delegate) SupportedOps() []opmap.OpID { return d.registry.SupportedOps() }

// SupportedOp reports whether a node can be delegated: its operator must be
// in the catalog, accept the node's tensors, and carry the parameter bytes
// it needs.
func (d *Delegate) SupportedOp(ctx host.Context, node *host.Node, reg *host.Registration) bool {
	id, op, ok := d.registry.Lookup(reg)
	if !ok {
		return false
	}
	if n := op.ParamSize(); n > 0 && len(paramBlob(id, node)) < n {
		return false
	}
	return op.IsSupported(ctx, node, reg)
}

// Prepare claims every supported node of the execution plan.
func (d *Delegate) Prepare(ctx host.Context) error {
	plan := ctx.ExecutionPlan()
	supported := make([]int, 0, len(plan))
	for _, idx := range plan {
		node, reg, err := ctx.NodeAndRegistration(idx)
		if err != nil {
			return errors.Wrapf(err, "node %d", idx)
		}
		if !d.SupportedOp(ctx, node, reg) {
			d.log.WithFields(logrus.Fields{
				"node": idx,
				"op":   opmap.IdentityOf(reg).String(),
			}).Debug("fallback unsupported op")
			continue
		}
		supported = append(supported, idx)
	}

	d.log.WithFields(logrus.Fields{
		"nodes":     len(plan),
		"delegated": len(supported),
	}).Info("delegate prepared")
	return ctx.ReplaceNodeSubsetsWithDelegateKernels(d.reg, host.CountPrefixed(supported), d)
}

// CopyFromBufferHandle implements host.Delegate. The delegate owns no
// buffers, so there is nothing to copy.
func (d *Delegate) CopyFromBufferHandle(_ host.Context, handle host.BufferHandle, t *tensor.Tensor) error {
	d.log.WithFields(logrus.Fields{"handle": handle, "tensor": t.Name}).Debug("copy from buffer handle")
	return nil
}

// FreeBufferHandle implements host.Delegate.
func (d *Delegate) FreeBufferHandle(_ host.Context, handle *host.BufferHandle) {
	d.log.WithField("handle", *handle).Debug("free buffer handle")
	*handle = host.InvalidBufferHandle
}

func (d *Delegate) initKernel(ctx host.Context, params *host.DelegateParams) (any, error) {
	if params == nil {
		return nil, errors.Wrap(host.ErrDelegate, "no delegate params")
	}
	rec, err := Capture(ctx, params, d.registry)
	if err != nil {
		return nil, err
	}
	log := d.log.WithField("nodes", params.NodesToReplace)
	log.WithFields(logrus.Fields{
		"operations": len(rec.Operations),
		"inputs":     len(rec.Inputs),
		"outputs":    len(rec.Outputs),
		"states":     len(rec.States),
	}).Info("delegate kernel initialized")
	return newKernel(rec, newCompiler(rec, d.registry, d.newContext, log), log), nil
}

func (d *Delegate) freeKernel(_ host.Context, data any) {
	if k, ok := data.(*Kernel); ok {
		k.Close()
	}
}

func (d *Delegate) invokeKernel(ctx host.Context, node *host.Node) error {
	k, ok := node.UserData.(*Kernel)
	if !ok {
		return errors.Wrapf(host.ErrDelegate, "node user data is %T, not a delegate kernel", node.UserData)
	}
	return k.Invoke(ctx)
}
