package manifest

import (
	"github.com/lpsinger/hydrate/pkg/engine"
)

// SharedPolicy decides which functions receive shared code.
type SharedPolicy struct {
	// Src is the shared source tree, relative to the project root.
	Src string

	// Disabled holds functions that must never carry a shared artifact.
	Disabled map[engine.FunctionID]bool
}

// Enabled reports whether fn should receive shared code.
func (p SharedPolicy) Enabled(id engine.FunctionID) bool {
	return !p.Disabled[id]
}

// ViewsPolicy decides which functions receive views code.
type ViewsPolicy struct {
	// Src is the views source tree, relative to the project root.
	Src string

	// PragmaDeclared switches from default-all to explicit opt-in.
	PragmaDeclared bool

	// Pragma holds the opt-in set when PragmaDeclared is true.
	Pragma map[engine.FunctionID]bool

	// Disabled holds functions that must never carry a views artifact.
	Disabled map[engine.FunctionID]bool
}

// Decide reports whether fn should receive views code, and if not, why.
// Disable wins over eligibility and pragma membership.
func (p ViewsPolicy) Decide(fn engine.FunctionDescriptor) (bool, string) {
	switch {
	case p.Disabled[fn.ID]:
		return false, "views disabled for function"
	case !fn.ID.Trigger.HasMethod():
		return false, "trigger " + string(fn.ID.Trigger) + " is not an http handler"
	case !fn.Method.IsRead():
		return false, "method " + string(fn.Method) + " is not read-style"
	case p.PragmaDeclared && !p.Pragma[fn.ID]:
		return false, "not listed in views pragma"
	default:
		return true, ""
	}
}

// StaticSource locates the project static asset manifest.
type StaticSource struct {
	// Src is the static manifest path, relative to the project root.
	Src string
}
