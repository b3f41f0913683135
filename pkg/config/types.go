package config

import (
	"fmt"
	"time"

	"github.com/lpsinger/hydrate/pkg/manifest"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

// Defaults applied to settings the project file leaves unset.
const (
	DefaultStateDB  = ".hydrate/state.db"
	DefaultDebounce = 500 * time.Millisecond
)

// FileNames are the project file names searched for, in order.
var FileNames = []string{"app.yaml", "app.yml", "hydrate.yaml"}

// File is the project file: the app definition plus engine settings.
type File struct {
	manifest.AppDefinition `yaml:",inline"`

	// Hydrate holds engine settings. The section is optional.
	Hydrate Settings `yaml:"hydrate,omitempty"`
}

// Settings configures how the engine hydrates a project.
type Settings struct {
	// Parallelism bounds the number of functions hydrated concurrently.
	Parallelism int `yaml:"parallelism,omitempty" validate:"omitempty,min=1,max=256"`

	// StateDB is the run ledger path, relative to the project root.
	StateDB string `yaml:"state_db,omitempty" validate:"omitempty,localpath"`

	// Watch configures the source watcher.
	Watch WatchSettings `yaml:"watch,omitempty"`

	// Telemetry configures logging, tracing, metrics, and events.
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// WatchSettings configures watch mode.
type WatchSettings struct {
	// Debounce is the quiet period after a change before re-hydrating.
	Debounce time.Duration `yaml:"debounce,omitempty" validate:"omitempty,min=0"`
}

// Project is a loaded, validated project file.
type Project struct {
	// Root is the absolute project root.
	Root string

	// Path is the absolute path of the project file.
	Path string

	// Raw is the project file exactly as read.
	Raw []byte

	// File is the decoded project file with defaults applied.
	File File
}

// App returns the app definition.
func (p *Project) App() *manifest.AppDefinition {
	return &p.File.AppDefinition
}

// Settings returns the engine settings.
func (p *Project) Settings() Settings {
	return p.File.Hydrate
}

// ValidationError represents a configuration validation error with its
// location in the project file.
type ValidationError struct {
	// File is the file where the error occurred.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "views.only").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	switch {
	case loc != "" && e.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, e.Path, e.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}
