package hydrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

// fakeInstall writes a deterministic package into the runtime deps dir.
func fakeInstall(fail map[string]bool) engine.Installer {
	return engine.InstallerFunc(func(ctx context.Context, fn engine.FunctionDescriptor, functionPath string) error {
		if fail[fn.ID.Name] {
			return engine.NewInstallError("npm exited with status 1", errors.New("ETARGET")).WithFunction(fn.ID)
		}
		deps := filepath.Join(functionPath, fn.Runtime.Layout().DepsDir, "dep")
		if err := os.MkdirAll(deps, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(deps, "index"), []byte(string(fn.Runtime)+"\n"), 0o644)
	})
}

type artifacts struct {
	Shared, Static, Views bool
}

func artifactsOf(root string, fn engine.FunctionDescriptor) artifacts {
	l := fn.Runtime.Layout()
	shared := filepath.Join(fn.Path(root), l.SharedMount)
	return artifacts{
		Shared: exists(filepath.Join(shared, ProvenanceMarker)) && exists(filepath.Join(shared, SharedMarker)),
		Static: exists(filepath.Join(shared, StaticManifest)),
		Views:  exists(filepath.Join(fn.Path(root), l.ViewsMount, ViewsMarker)),
	}
}

// runPipeline hydrates app end to end and returns the project root, the
// classified functions and the report.
func runPipeline(t *testing.T, app *manifest.AppDefinition, fail map[string]bool) (string, []engine.FunctionDescriptor, *engine.RunReport) {
	t.Helper()
	res := resolution(t, app)
	fns := classified(t, res)
	root := newProject(t, fns...)

	eng, err := engine.New(engine.Config{
		Root:      root,
		Installer: fakeInstall(fail),
		Shared:    NewSharedHydrator(root, res),
		Views:     NewViewsHydrator(root, res),
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	report, err := eng.Run(context.Background(), fns, engine.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return root, fns, report
}

func fiveRoutes(views *manifest.ViewsSection) *manifest.AppDefinition {
	return &manifest.AppDefinition{
		App: "mockapp",
		HTTP: []manifest.FunctionEntry{
			{Route: "get /"},
			{Route: "get /memories", Runtime: "python"},
			{Route: "post /up-tents"},
			{Route: "put /on_your_boots"},
			{Route: "delete /badness_in_life", Runtime: "ruby"},
		},
		Views: views,
	}
}

func TestPipeline_FiveRoutes(t *testing.T) {
	root, fns, report := runPipeline(t, fiveRoutes(nil), nil)

	if report.Status != engine.RunStatusSucceeded {
		t.Fatalf("Status = %s, want succeeded", report.Status)
	}
	got := make(map[string]artifacts)
	for _, fn := range fns {
		got[fn.ID.Name] = artifactsOf(root, fn)
	}
	want := map[string]artifacts{
		"get-index":              {Shared: true, Static: true, Views: true},
		"get-memories":           {Shared: true, Static: true, Views: true},
		"post-up-tents":          {Shared: true, Static: true},
		"put-on_your_boots":      {Shared: true, Static: true},
		"delete-badness_in_life": {Shared: true, Static: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}

	// Runtime layouts: python and ruby vendor, node node_modules.
	if !exists(filepath.Join(root, "src/http/get-memories/vendor/views/views.md")) {
		t.Error("Expected python views under vendor/views")
	}
	if !exists(filepath.Join(root, "src/http/delete-badness_in_life/vendor/shared/.arc")) {
		t.Error("Expected ruby shared under vendor/shared")
	}
	if !exists(filepath.Join(root, "src/http/get-index/node_modules/@architect/shared/static.json")) {
		t.Error("Expected node static manifest under node_modules/@architect/shared")
	}

	fr := report.Function(engine.FunctionID{Trigger: engine.TriggerHTTP, Name: "post-up-tents"})
	if fr.Status(engine.StepViews) != engine.StepStatusSkipped {
		t.Errorf("post views status = %s, want skipped", fr.Status(engine.StepViews))
	}
}

func TestPipeline_PragmaSelectsOneRoute(t *testing.T) {
	only := []string{"get /memories"}
	root, fns, _ := runPipeline(t, fiveRoutes(&manifest.ViewsSection{Only: &only}), nil)

	for _, fn := range fns {
		a := artifactsOf(root, fn)
		wantViews := fn.ID.Name == "get-memories"
		if a.Views != wantViews {
			t.Errorf("%s: views = %v, want %v", fn.ID, a.Views, wantViews)
		}
		if !a.Shared || !a.Static {
			t.Errorf("%s: expected shared and static, got %+v", fn.ID, a)
		}
	}
}

func TestPipeline_CatchallDisabled(t *testing.T) {
	app := fiveRoutes(&manifest.ViewsSection{Disable: []string{"any /time_is_good/*"}})
	app.HTTP = append(app.HTTP, manifest.FunctionEntry{Route: "any /time_is_good/*", Runtime: "python"})
	app.Shared = &manifest.SharedSection{Disable: []string{"any /time_is_good/*"}}

	root, fns, report := runPipeline(t, app, nil)

	catchall := engine.FunctionID{Trigger: engine.TriggerHTTP, Name: "any-time_is_good-catchall"}
	for _, fn := range fns {
		a := artifactsOf(root, fn)
		if fn.ID == catchall {
			if a != (artifacts{}) {
				t.Errorf("catchall: expected no artifacts, got %+v", a)
			}
			continue
		}
		if !a.Shared || !a.Static {
			t.Errorf("%s: expected shared and static, got %+v", fn.ID, a)
		}
	}

	fr := report.Function(catchall)
	for _, step := range []engine.Step{engine.StepShared, engine.StepViews, engine.StepStatic} {
		if fr.Status(step) != engine.StepStatusSkipped {
			t.Errorf("catchall %s status = %s, want skipped", step, fr.Status(step))
		}
	}
	if report.Status != engine.RunStatusSucceeded {
		t.Errorf("Status = %s, want succeeded", report.Status)
	}
}

func TestPipeline_OneInstallFailureAmongTen(t *testing.T) {
	app := &manifest.AppDefinition{App: "ten"}
	for i := 0; i < 10; i++ {
		app.HTTP = append(app.HTTP, manifest.FunctionEntry{Route: fmt.Sprintf("get /r%d", i)})
	}

	root, fns, report := runPipeline(t, app, map[string]bool{"get-r3": true})

	if report.Status != engine.RunStatusPartial {
		t.Errorf("Status = %s, want partial", report.Status)
	}
	if report.Summary.Succeeded != 9 || report.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 9 succeeded and 1 failed", report.Summary)
	}
	for _, fn := range fns {
		a := artifactsOf(root, fn)
		if fn.ID.Name == "get-r3" {
			if a != (artifacts{}) {
				t.Errorf("get-r3: expected no artifacts, got %+v", a)
			}
			fr := report.Function(fn.ID)
			if !engine.IsInstallError(fr.Err()) {
				t.Errorf("get-r3: Err() = %v, want install error", fr.Err())
			}
			continue
		}
		if a != (artifacts{Shared: true, Static: true, Views: true}) {
			t.Errorf("%s: expected full hydration, got %+v", fn.ID, a)
		}
	}
}

func TestPipeline_RerunIsByteIdentical(t *testing.T) {
	res := resolution(t, fiveRoutes(nil))
	fns := classified(t, res)
	root := newProject(t, fns...)

	eng, err := engine.New(engine.Config{
		Root:      root,
		Installer: fakeInstall(nil),
		Shared:    NewSharedHydrator(root, res),
		Views:     NewViewsHydrator(root, res),
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	if _, err := eng.Run(context.Background(), fns, engine.RunOptions{}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := snapshot(t, filepath.Join(root, "src", "http"))

	if _, err := eng.Run(context.Background(), fns, engine.RunOptions{}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second := snapshot(t, filepath.Join(root, "src", "http"))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-run changed the tree (-first +second):\n%s", diff)
	}
}
