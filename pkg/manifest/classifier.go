package manifest

import (
	"github.com/lpsinger/hydrate/pkg/engine"
)

// ClassifyAll returns copies of fns with Runtime set, in input order.
// A declared runtime wins; otherwise defaultRuntime applies.
func ClassifyAll(fns []engine.FunctionDescriptor, defaultRuntime engine.Runtime) ([]engine.FunctionDescriptor, error) {
	if err := defaultRuntime.Validate(); err != nil {
		return nil, engine.NewManifestError("invalid default runtime", err).WithCode(engine.ErrCodeUnknownRuntime)
	}

	out := make([]engine.FunctionDescriptor, len(fns))
	for i, fn := range fns {
		if fn.Runtime == "" {
			fn.Runtime = defaultRuntime
		}
		if err := fn.Runtime.Validate(); err != nil {
			return nil, engine.NewManifestError("cannot classify function", err).
				WithFunction(fn.ID).
				WithCode(engine.ErrCodeUnknownRuntime)
		}
		out[i] = fn
	}
	return out, nil
}

// Classify partitions fns by runtime. Every descriptor lands in exactly one
// group; nothing is dropped.
func Classify(fns []engine.FunctionDescriptor, defaultRuntime engine.Runtime) (engine.RuntimeGroup, error) {
	classified, err := ClassifyAll(fns, defaultRuntime)
	if err != nil {
		return nil, err
	}
	group := make(engine.RuntimeGroup)
	for _, fn := range classified {
		group[fn.Runtime] = append(group[fn.Runtime], fn)
	}
	return group, nil
}

// Classified returns the resolution's functions with runtimes assigned.
func (r *Resolution) Classified() ([]engine.FunctionDescriptor, error) {
	return ClassifyAll(r.Functions, r.DefaultRuntime)
}
