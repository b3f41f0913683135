package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Default source locations, relative to the project root.
const (
	DefaultSharedSrc = "src/shared"
	DefaultViewsSrc  = "src/views"
	DefaultStaticSrc = "public/static.json"
)

// AppDefinition is the declarative description of a serverless project.
type AppDefinition struct {
	// App is the application name.
	App string `yaml:"app" json:"app" validate:"required"`

	// Runtime is the project-wide default runtime. Defaults to node.
	Runtime string `yaml:"runtime,omitempty" json:"runtime,omitempty" validate:"omitempty,runtime"`

	// HTTP lists route handlers. Entries are "method /path" or a mapping with a route key.
	HTTP []FunctionEntry `yaml:"http,omitempty" json:"http,omitempty" validate:"dive"`

	// Events lists pub/sub event subscribers.
	Events []FunctionEntry `yaml:"events,omitempty" json:"events,omitempty" validate:"dive"`

	// Queues lists queue consumers.
	Queues []FunctionEntry `yaml:"queues,omitempty" json:"queues,omitempty" validate:"dive"`

	// Scheduled lists scheduled jobs.
	Scheduled []FunctionEntry `yaml:"scheduled,omitempty" json:"scheduled,omitempty" validate:"dive"`

	// Tables lists stream consumers attached to a table; sources live in src/tables.
	Tables []FunctionEntry `yaml:"tables,omitempty" json:"tables,omitempty" validate:"dive"`

	// Streams lists standalone stream consumers; sources live in src/streams.
	Streams []FunctionEntry `yaml:"streams,omitempty" json:"streams,omitempty" validate:"dive"`

	// CustomPaths lists handlers with an explicit source path.
	CustomPaths []FunctionEntry `yaml:"custom,omitempty" json:"custom,omitempty" validate:"dive"`

	// Shared configures shared code hydration.
	Shared *SharedSection `yaml:"shared,omitempty" json:"shared,omitempty"`

	// Views configures views code hydration.
	Views *ViewsSection `yaml:"views,omitempty" json:"views,omitempty"`

	// Static configures the static asset manifest.
	Static *StaticSection `yaml:"static,omitempty" json:"static,omitempty"`
}

// FunctionEntry declares one function.
type FunctionEntry struct {
	// Route is the HTTP route, "get /notes/:id". HTTP entries only.
	Route string `yaml:"route,omitempty" json:"route,omitempty"`

	// Name is the function name for non-HTTP entries.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Method is the HTTP method of a custom path handler.
	Method string `yaml:"method,omitempty" json:"method,omitempty"`

	// Src overrides the source directory, relative to the project root.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`

	// Runtime overrides the project default runtime.
	Runtime string `yaml:"runtime,omitempty" json:"runtime,omitempty" validate:"omitempty,runtime"`

	// Shared set to false adds the function to the shared disable list.
	Shared *bool `yaml:"shared,omitempty" json:"shared,omitempty"`

	// Views set to false adds the function to the views disable list.
	Views *bool `yaml:"views,omitempty" json:"views,omitempty"`
}

// UnmarshalYAML accepts either a bare scalar or a mapping.
func (e *FunctionEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.Name = node.Value
		return nil
	case yaml.MappingNode:
		type plain FunctionEntry
		return node.Decode((*plain)(e))
	default:
		return fmt.Errorf("line %d: function entry must be a string or a mapping", node.Line)
	}
}

// label returns whichever of Route or Name identifies the entry.
func (e FunctionEntry) label() string {
	if e.Route != "" {
		return e.Route
	}
	return e.Name
}

// SharedSection configures shared code hydration.
type SharedSection struct {
	// Src is the shared source tree. Defaults to src/shared.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`

	// Disable lists functions that must not receive shared code.
	Disable []string `yaml:"disable,omitempty" json:"disable,omitempty"`
}

// ViewsSection configures views code hydration.
type ViewsSection struct {
	// Src is the views source tree. Defaults to src/views.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`

	// Only is the views pragma. When present, even empty, only the listed
	// eligible functions receive views.
	Only *[]string `yaml:"only,omitempty" json:"only,omitempty"`

	// Disable lists functions that must not receive views code.
	Disable []string `yaml:"disable,omitempty" json:"disable,omitempty"`
}

// StaticSection configures the static asset manifest.
type StaticSection struct {
	// Src is the project static manifest. Defaults to public/static.json.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`
}
