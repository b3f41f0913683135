package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Runtime is the closed set of execution runtimes a function can target.
type Runtime string

const (
	// RuntimeNode is Node.js; dependencies are installed with npm.
	RuntimeNode Runtime = "node"

	// RuntimePython is Python; dependencies are installed with pip.
	RuntimePython Runtime = "python"

	// RuntimeRuby is Ruby; dependencies are installed with bundler.
	RuntimeRuby Runtime = "ruby"
)

// DefaultRuntime applies when neither the function nor the project declares one.
const DefaultRuntime = RuntimeNode

// Runtimes lists every supported runtime.
var Runtimes = []Runtime{RuntimeNode, RuntimePython, RuntimeRuby}

// Layout describes where a runtime keeps dependencies and hydrated code,
// relative to the function directory.
type Layout struct {
	// DepsDir is the runtime-idiomatic dependency directory.
	DepsDir string

	// SharedMount is where the shared tree is copied.
	SharedMount string

	// ViewsMount is where the views tree is copied.
	ViewsMount string
}

var layouts = map[Runtime]Layout{
	RuntimeNode: {
		DepsDir:     "node_modules",
		SharedMount: filepath.Join("node_modules", "@architect", "shared"),
		ViewsMount:  filepath.Join("node_modules", "@architect", "views"),
	},
	RuntimePython: {
		DepsDir:     "vendor",
		SharedMount: filepath.Join("vendor", "shared"),
		ViewsMount:  filepath.Join("vendor", "views"),
	},
	RuntimeRuby: {
		DepsDir:     filepath.Join("vendor", "bundle"),
		SharedMount: filepath.Join("vendor", "shared"),
		ViewsMount:  filepath.Join("vendor", "views"),
	},
}

func init() {
	for r, l := range layouts {
		if err := l.validate(); err != nil {
			panic(fmt.Sprintf("engine: layout for %s: %v", r, err))
		}
	}
}

// validate ensures the shared and views mounts can never overlap.
func (l Layout) validate() error {
	if l.SharedMount == l.ViewsMount {
		return fmt.Errorf("shared and views mounts collide at %s", l.SharedMount)
	}
	if within(l.SharedMount, l.ViewsMount) || within(l.ViewsMount, l.SharedMount) {
		return fmt.Errorf("mounts %s and %s are nested", l.SharedMount, l.ViewsMount)
	}
	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// Layout returns the filesystem layout for the runtime.
func (r Runtime) Layout() Layout {
	l, ok := layouts[r]
	if !ok {
		panic(fmt.Sprintf("engine: no layout for runtime %q", r))
	}
	return l
}

// Validate checks if the runtime is one of the supported variants.
func (r Runtime) Validate() error {
	if _, ok := layouts[r]; ok {
		return nil
	}
	return fmt.Errorf("unsupported runtime: %q", r)
}

// ParseRuntime maps a runtime family or versioned identifier
// ("nodejs20.x", "python3.12", "ruby3.3") onto a Runtime.
func ParseRuntime(s string) (Runtime, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return "", fmt.Errorf("runtime is empty")
	case strings.HasPrefix(v, "node"):
		return RuntimeNode, nil
	case strings.HasPrefix(v, "python"):
		return RuntimePython, nil
	case strings.HasPrefix(v, "ruby"):
		return RuntimeRuby, nil
	default:
		return "", fmt.Errorf("unsupported runtime: %q", s)
	}
}
