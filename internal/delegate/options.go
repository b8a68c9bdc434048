package delegate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/ref"
	"github.com/born-ml/graphbridge/internal/accel/webgpu"
	"github.com/born-ml/graphbridge/internal/opmap"
)

// Options configures a Delegate.
type Options struct {
	// Logger receives lifecycle and fallback messages.
	Logger logrus.FieldLogger
	// Registry is the operator catalog. Nil means opmap.NewRegistry().
	Registry *opmap.Registry
	// Backend names the accelerator: "reference" or "webgpu".
	Backend string
	// NewContext, when set, creates accelerator contexts and overrides
	// Backend. One context is created per claimed subgraph.
	NewContext func() (accel.Context, error)
}

// DefaultOptions returns the default delegate configuration.
//
// Default configuration:
//   - Logger: logrus standard logger
//   - Registry: every default operator
//   - Backend: reference (pure Go)
func DefaultOptions() Options {
	return Options{
		Logger:   logrus.StandardLogger(),
		Registry: opmap.NewRegistry(),
		Backend:  ref.Name,
	}
}

// Backends returns the names accepted in Options.Backend.
func Backends() []string {
	return []string{ref.Name, webgpu.Name}
}

func (o Options) contextFactory() (func() (accel.Context, error), error) {
	if o.NewContext != nil {
		return o.NewContext, nil
	}
	switch o.Backend {
	case "", ref.Name:
		return func() (accel.Context, error) { return ref.NewContext(), nil }, nil
	case webgpu.Name:
		if !webgpu.IsAvailable() {
			return nil, webgpu.ErrUnavailable
		}
		return func() (accel.Context, error) {
			ctx, err := webgpu.New()
			if err != nil {
				return nil, err
			}
			return ctx, nil
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", o.Backend)
	}
}
