package delegate

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/host"
)

var errKernelClosed = errors.New("kernel closed")

// Kernel is the per-subgraph instance created by the delegate registration's
// Init. It compiles its graph on first invocation and reuses it afterwards.
//
// Invocations are serialized. A runtime failure leaves the kernel unusable;
// a compile failure is reported again on every call.
type Kernel struct {
	record   *SubgraphRecord
	compiler *compiler
	log      logrus.FieldLogger

	mu     sync.Mutex
	failed error
}

func newKernel(record *SubgraphRecord, c *compiler, log logrus.FieldLogger) *Kernel {
	return &Kernel{
		record:   record,
		compiler: c,
		log:      log,
	}
}

// Record returns the captured subgraph.
func (k *Kernel) Record() *SubgraphRecord { return k.record }

// State returns the compile state of the kernel's graph.
func (k *Kernel) State() CompileState { return k.compiler.State() }

// Invoke compiles the graph if needed and runs one invocation against the
// host buffers of hctx.
func (k *Kernel) Invoke(hctx host.Context) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.failed != nil {
		return errors.Wrapf(ErrInstanceFailed, "%v", k.failed)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrExecution, "panic: %v", r)
		}
		if err != nil && !errors.Is(err, ErrCompile) {
			k.failed = err
			k.log.WithError(err).Error("delegate kernel failed")
		}
	}()

	if err := k.compiler.ensure(hctx); err != nil {
		return err
	}
	return execute(hctx, k.compiler.graph, k.compiler.io, k.log)
}

// Close releases the compiled graph and its accelerator context.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.compiler.mu.Lock()
	defer k.compiler.mu.Unlock()
	k.compiler.release()
	if k.failed == nil {
		k.failed = errKernelClosed
	}
}
