package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

// ErrNotFound is returned when a directory holds no project file.
var ErrNotFound = errors.New("no project file found")

// Loader reads and validates project files. A Loader is safe for
// concurrent use.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schema and validators.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: newValidator(),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Find returns the path of the project file in root.
func Find(root string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNotFound, root, strings.Join(FileNames, ", "))
}

// LoadDir locates the project file in root and loads it.
func (l *Loader) LoadDir(root string) (*Project, error) {
	path, err := Find(root)
	if err != nil {
		return nil, engine.NewManifestError("locating project file", err).
			WithCode(engine.ErrCodeMalformed)
	}
	return l.Load(path)
}

// Load reads, checks, and decodes the project file at path. The project
// root is the file's directory.
func (l *Loader) Load(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, engine.NewManifestError("reading project file", err).
			WithCode(engine.ErrCodeMalformed).
			WithOp(abs)
	}

	if errs := l.schemas.ValidateYAML("app", abs, raw); len(errs) > 0 {
		return nil, invalid(abs, "project file does not match schema", errs)
	}

	file := File{Hydrate: Settings{Telemetry: telemetry.DefaultConfig()}}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, engine.NewManifestError("decoding project file", err).
			WithCode(engine.ErrCodeMalformed).
			WithOp(abs)
	}
	file.Hydrate.applyDefaults()

	if errs := l.validateStruct(abs, &file); len(errs) > 0 {
		return nil, invalid(abs, "invalid project file", errs)
	}
	if err := file.Hydrate.Telemetry.Validate(); err != nil {
		return nil, invalid(abs, "invalid telemetry settings", []ValidationError{{
			File: abs, Path: "hydrate.telemetry", Message: err.Error(),
		}})
	}

	return &Project{
		Root: filepath.Dir(abs),
		Path: abs,
		Raw:  raw,
		File: file,
	}, nil
}

func (s *Settings) applyDefaults() {
	if s.Parallelism == 0 {
		s.Parallelism = engine.DefaultParallelism
	}
	if s.StateDB == "" {
		s.StateDB = DefaultStateDB
	}
	if s.Watch.Debounce == 0 {
		s.Watch.Debounce = DefaultDebounce
	}
	if s.Telemetry == nil {
		s.Telemetry = telemetry.DefaultConfig()
	}
}

func invalid(path, msg string, errs []ValidationError) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return engine.NewManifestError(msg, errors.Join(joined...)).
		WithCode(engine.ErrCodeMalformed).
		WithOp(path).
		WithDetail("errors", errs)
}

// Errors returns the validation errors carried by err, if any.
func Errors(err error) []ValidationError {
	var e *engine.Error
	if !errors.As(err, &e) {
		return nil
	}
	errs, _ := e.Details["errors"].([]ValidationError)
	return errs
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("runtime", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseRuntime(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("localpath", func(fl validator.FieldLevel) bool {
		return filepath.IsLocal(fl.Field().String())
	})
	return v
}

func (l *Loader) validateStruct(path string, file *File) []ValidationError {
	err := l.validator.Struct(file)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{File: path, Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			File:    path,
			Path:    fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// fieldPath turns "File.AppDefinition.http[0].runtime" into "http[0].runtime".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "File.")
	return strings.TrimPrefix(ns, "AppDefinition.")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "runtime":
		return fmt.Sprintf("unsupported runtime %q", fe.Value())
	case "localpath":
		return fmt.Sprintf("%q must be a relative path inside the project", fe.Value())
	case "min", "max":
		return fmt.Sprintf("must be %s %s, got %v", map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
