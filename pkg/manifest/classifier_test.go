package manifest

import (
	"testing"

	"github.com/lpsinger/hydrate/pkg/engine"
)

func TestClassify(t *testing.T) {
	res, err := Resolve(parseApp(t, mockApp))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	group, err := Classify(res.Functions, res.DefaultRuntime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if group.Len() != len(res.Functions) {
		t.Fatalf("Expected %d classified functions, got %d", len(res.Functions), group.Len())
	}
	if got := len(group[engine.RuntimePython]); got != 2 {
		t.Errorf("Expected 2 python functions, got %d", got)
	}
	if got := len(group[engine.RuntimeRuby]); got != 1 {
		t.Errorf("Expected 1 ruby function, got %d", got)
	}
	if got := len(group[engine.RuntimeNode]); got != 8 {
		t.Errorf("Expected 8 node functions, got %d", got)
	}

	python := group[engine.RuntimePython]
	if python[0].ID.Name != "get-memories" || python[1].ID.Name != "pong" {
		t.Errorf("Expected declaration order within group, got %s, %s", python[0].ID, python[1].ID)
	}

	runtimes := group.Runtimes()
	if len(runtimes) != 3 || runtimes[0] != engine.RuntimeNode {
		t.Errorf("Unexpected runtime order: %v", runtimes)
	}

	// The input must not be mutated.
	if res.Functions[0].Runtime != "" {
		t.Error("Classify must not modify its input")
	}
}

func TestClassify_ProjectDefault(t *testing.T) {
	res, err := Resolve(parseApp(t, "app: a\nruntime: ruby3.3\nevents:\n  - e\n  - name: f\n    runtime: node\n"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	fns, err := res.Classified()
	if err != nil {
		t.Fatalf("Classified() error = %v", err)
	}
	if fns[0].Runtime != engine.RuntimeRuby {
		t.Errorf("Expected project default ruby, got %s", fns[0].Runtime)
	}
	if fns[1].Runtime != engine.RuntimeNode {
		t.Errorf("Expected declared runtime to win, got %s", fns[1].Runtime)
	}
}

func TestClassify_Errors(t *testing.T) {
	fns := []engine.FunctionDescriptor{{ID: engine.FunctionID{Trigger: engine.TriggerEvent, Name: "e"}, Runtime: "cobol"}}
	if _, err := Classify(fns, engine.RuntimeNode); !engine.IsManifestError(err) {
		t.Errorf("Expected manifest error for unknown runtime, got %v", err)
	}
	if _, err := Classify(nil, "deno"); !engine.IsManifestError(err) {
		t.Errorf("Expected manifest error for unknown default, got %v", err)
	}
}
