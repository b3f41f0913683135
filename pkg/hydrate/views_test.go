package hydrate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

func routesApp(views *manifest.ViewsSection) *manifest.AppDefinition {
	return &manifest.AppDefinition{
		App: "mockapp",
		HTTP: []manifest.FunctionEntry{
			{Route: "get /"},
			{Route: "get /memories", Runtime: "python"},
			{Route: "post /up-tents"},
			{Route: "put /on_your_boots"},
			{Route: "delete /badness_in_life", Runtime: "ruby"},
		},
		Events:      []manifest.FunctionEntry{{Name: "ping"}},
		CustomPaths: []manifest.FunctionEntry{{Name: "in-the-clouds", Src: "src/head/in-the-clouds", Method: "any"}},
		Views:       views,
	}
}

// hydrateViews runs the views hydrator over every function and returns the
// names of functions that received a views artifact.
func hydrateViews(t *testing.T, app *manifest.AppDefinition) map[string]bool {
	t.Helper()
	res := resolution(t, app)
	fns := classified(t, res)
	root := newProject(t, fns...)
	h := NewViewsHydrator(root, res)

	got := make(map[string]bool)
	for _, fn := range fns {
		out, err := h.Hydrate(context.Background(), fn, fn.Path(root))
		if err != nil {
			t.Fatalf("Hydrate(%s) error = %v", fn.ID, err)
		}
		dir := filepath.Join(fn.Path(root), fn.Runtime.Layout().ViewsMount)
		if out.Applied != exists(filepath.Join(dir, ViewsMarker)) {
			t.Errorf("%s: Applied = %v but marker presence disagrees", fn.ID, out.Applied)
		}
		if out.Applied {
			got[fn.ID.Name] = true
			if !exists(filepath.Join(dir, "layout.js")) {
				t.Errorf("%s: expected views tree copied", fn.ID)
			}
		} else if out.Reason == "" {
			t.Errorf("%s: expected skip reason", fn.ID)
		}
	}
	return got
}

func assertViews(t *testing.T, got map[string]bool, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("Expected views for %v, got %v", want, got)
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("Expected views for %s", name)
		}
	}
}

func TestViewsHydrator_DefaultAll(t *testing.T) {
	got := hydrateViews(t, routesApp(nil))
	assertViews(t, got, "get-index", "get-memories", "in-the-clouds")
}

func TestViewsHydrator_Pragma(t *testing.T) {
	only := []string{"get /memories", "post /up-tents"}
	got := hydrateViews(t, routesApp(&manifest.ViewsSection{Only: &only}))
	// post-up-tents is listed but never eligible.
	assertViews(t, got, "get-memories")
}

func TestViewsHydrator_EmptyPragma(t *testing.T) {
	only := []string{}
	got := hydrateViews(t, routesApp(&manifest.ViewsSection{Only: &only}))
	assertViews(t, got)
}

func TestViewsHydrator_DisableWins(t *testing.T) {
	only := []string{"get /", "get /memories"}
	got := hydrateViews(t, routesApp(&manifest.ViewsSection{Only: &only, Disable: []string{"get-index"}}))
	assertViews(t, got, "get-memories")
}

func TestViewsHydrator_MarkerAndPrune(t *testing.T) {
	res := resolution(t, routesApp(nil))
	fns := classified(t, res)
	root := newProject(t, fns...)
	h := NewViewsHydrator(root, res)

	fn := fns[1]
	if fn.ID.Name != "get-memories" || fn.Runtime != engine.RuntimePython {
		t.Fatalf("Unexpected fixture %s (%s)", fn.ID, fn.Runtime)
	}
	if _, err := h.Hydrate(context.Background(), fn, fn.Path(root)); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}

	dir := filepath.Join(fn.Path(root), "vendor", "views")
	marker := readFile(t, filepath.Join(dir, ViewsMarker))
	if !strings.HasPrefix(marker, "# views\n") || !strings.Contains(marker, "`layout.js`") {
		t.Errorf("Unexpected views.md:\n%s", marker)
	}
	if exists(filepath.Join(dir, ProvenanceMarker)) {
		t.Error("views artifact must not carry the shared provenance marker")
	}

	if err := h.Prune(fn, fn.Path(root)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if exists(dir) {
		t.Error("Expected views artifact pruned")
	}
}

func TestViewsHydrator_StaleArtifactPrunedWhenOutOfScope(t *testing.T) {
	res := resolution(t, routesApp(nil))
	fns := classified(t, res)
	root := newProject(t, fns...)

	post := fns[2]
	stale := filepath.Join(post.Path(root), "node_modules", "@architect", "views")
	writeFile(t, stale, ViewsMarker, "old")

	out, err := NewViewsHydrator(root, res).Hydrate(context.Background(), post, post.Path(root))
	if err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if out.Applied || exists(stale) {
		t.Error("Expected stale views artifact removed for post handler")
	}
}
