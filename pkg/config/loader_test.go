package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lpsinger/hydrate/pkg/engine"
)

const fullProject = `app: notes
runtime: node
http:
  - get /
  - route: get /memories
    runtime: python3.12
  - route: delete /notes/:id
    shared: false
events:
  - ping
views:
  only:
    - get /
shared:
  disable:
    - event:ping
hydrate:
  parallelism: 4
  state_db: var/ledger.db
  watch:
    debounce: 250ms
  telemetry:
    logging:
      level: debug
`

func writeProject(t *testing.T, name, doc string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_FullProject(t *testing.T) {
	dir := writeProject(t, "app.yaml", fullProject)

	p, err := NewLoader().LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if p.Root != dir {
		t.Errorf("Expected root %s, got %s", dir, p.Root)
	}
	if string(p.Raw) != fullProject {
		t.Error("Expected raw bytes to be kept verbatim")
	}

	app := p.App()
	if app.App != "notes" || len(app.HTTP) != 3 || len(app.Events) != 1 {
		t.Errorf("Unexpected app definition %+v", app)
	}
	if app.HTTP[0].Name != "get /" {
		t.Errorf("Expected scalar entry to decode into Name, got %+v", app.HTTP[0])
	}
	if app.Views == nil || app.Views.Only == nil || len(*app.Views.Only) != 1 {
		t.Errorf("Expected views pragma, got %+v", app.Views)
	}

	s := p.Settings()
	if s.Parallelism != 4 || s.StateDB != "var/ledger.db" || s.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Unexpected settings %+v", s)
	}
	if s.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected telemetry override, got level %q", s.Telemetry.Logging.Level)
	}
	if s.Telemetry.Logging.Format != "console" || s.Telemetry.ServiceName != "hydrate" {
		t.Error("Expected telemetry defaults to survive a partial override")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeProject(t, "app.yml", "app: bare\n")

	p, err := NewLoader().LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	want := Settings{
		Parallelism: engine.DefaultParallelism,
		StateDB:     DefaultStateDB,
		Watch:       WatchSettings{Debounce: DefaultDebounce},
	}
	got := p.Settings()
	if got.Telemetry == nil {
		t.Fatal("Expected default telemetry config")
	}
	got.Telemetry = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDir_NotFound(t *testing.T) {
	_, err := NewLoader().LoadDir(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if !engine.IsManifestError(err) {
		t.Error("Expected a manifest error")
	}
}

func TestFind_Precedence(t *testing.T) {
	dir := writeProject(t, "hydrate.yaml", "app: b\n")
	if err := os.WriteFile(filepath.Join(dir, "app.yaml"), []byte("app: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := Find(dir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if filepath.Base(path) != "app.yaml" {
		t.Errorf("Expected app.yaml to win, got %s", path)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "missing app", doc: "http:\n  - get /\n", want: "app"},
		{name: "empty app", doc: "app: \"\"\n", want: "app"},
		{name: "unknown key", doc: "app: x\nbogus: 1\n", want: "bogus"},
		{name: "entry is a number", doc: "app: x\nhttp:\n  - 42\n", want: "http"},
		{name: "pragma is a string", doc: "app: x\nviews:\n  only: get /\n", want: "views"},
		{name: "negative parallelism", doc: "app: x\nhydrate:\n  parallelism: -1\n", want: "hydrate"},
		{name: "unsupported runtime", doc: "app: x\nhttp:\n  - route: get /\n    runtime: cobol\n", want: "http[0].runtime"},
		{name: "unsupported default runtime", doc: "app: x\nruntime: fortran\n", want: "runtime"},
		{name: "state db escapes root", doc: "app: x\nhydrate:\n  state_db: ../elsewhere.db\n", want: "state_db"},
		{name: "bad telemetry", doc: "app: x\nhydrate:\n  telemetry:\n    logging:\n      level: shouty\n", want: "hydrate.telemetry"},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, "app.yaml", tt.doc)
			_, err := loader.LoadDir(dir)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !engine.IsManifestError(err) {
				t.Errorf("Expected manifest error, got %v", err)
			}

			errs := Errors(err)
			if len(errs) == 0 {
				t.Fatalf("Expected validation errors, got %v", err)
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e.Path+" "+e.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error mentioning %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()
	if diff := cmp.Diff([]string{"app"}, sr.ListSchemas()); diff != "" {
		t.Errorf("ListSchemas() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := sr.GetSchema("app"); !ok {
		t.Error("Expected built-in app schema")
	}

	if err := sr.RegisterSchema("broken", "#X: {", "#X"); err == nil {
		t.Error("Expected compile error")
	}
	if err := sr.RegisterSchema("nodef", "#X: string", "#Y"); err == nil {
		t.Error("Expected missing definition error")
	}
	if err := sr.RegisterSchema("strict", "#Name: string & =~\"^[a-z]+$\"", "#Name"); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if errs := sr.ValidateYAML("strict", "name.yaml", []byte("abc\n")); len(errs) != 0 {
		t.Errorf("Expected valid document, got %v", errs)
	}
	if errs := sr.ValidateYAML("strict", "name.yaml", []byte("ABC\n")); len(errs) == 0 {
		t.Error("Expected pattern violation")
	}
	if errs := sr.ValidateYAML("missing", "x.yaml", []byte("a: 1\n")); len(errs) != 1 {
		t.Errorf("Expected schema-not-found error, got %v", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		err  ValidationError
		want string
	}{
		{ValidationError{File: "app.yaml", Line: 3, Column: 5, Path: "views.only", Message: "bad"}, "app.yaml:3:5: views.only: bad"},
		{ValidationError{File: "app.yaml", Message: "bad"}, "app.yaml: bad"},
		{ValidationError{Path: "app", Message: "is required"}, "app: is required"},
		{ValidationError{Message: "bad"}, "bad"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
