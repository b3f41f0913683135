package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lpsinger/hydrate/pkg/engine"
)

const testApp = `app: cli
http:
  - get /
  - post /items
hydrate:
  telemetry:
    logging:
      level: error
`

func newProjectDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app.yaml":                     testApp,
		"src/shared/util.js":           "module.exports = {}\n",
		"src/views/page.html":          "<p></p>\n",
		"src/http/get-index/index.js":  "// get\n",
		"src/http/post-items/index.js": "// post\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "never")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	root := newProjectDir(t)
	out, err := execute(t, "validate", "-C", root)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 functions") || !strings.Contains(out, "http:post-items") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestValidate_Invalid(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.yaml"), []byte("app: x\nbogus: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "validate", "-C", root)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "bogus") {
		t.Errorf("expected the offending key in output, got:\n%s", out)
	}
}

func TestRun_JSONReport(t *testing.T) {
	root := newProjectDir(t)
	out, err := execute(t, "run", "-C", root, "--shared-only", "--json")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	var report engine.RunReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a run report: %v\n%s", err, out)
	}
	if report.Status != engine.RunStatusSucceeded || report.Summary.Total != 2 {
		t.Errorf("unexpected report %s %+v", report.Status, report.Summary)
	}
	if got := report.Functions[0].Status(engine.StepInstall); got != engine.StepStatusSkipped {
		t.Errorf("expected install to be skipped, got %s", got)
	}

	shared := filepath.Join(root, "src", "http", "get-index", "node_modules", "@architect", "shared", "util.js")
	if _, err := os.Stat(shared); err != nil {
		t.Errorf("expected shared code to be copied: %v", err)
	}
}

func TestRun_HistoryAndRetry(t *testing.T) {
	root := newProjectDir(t)

	out, err := execute(t, "run", "-C", root, "--shared-only")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "http:get-index") || !strings.Contains(out, "2 succeeded") {
		t.Errorf("unexpected run output:\n%s", out)
	}

	out, err = execute(t, "history", "-C", root)
	if err != nil {
		t.Fatalf("history error = %v\n%s", err, out)
	}
	if !strings.Contains(out, string(engine.RunStatusSucceeded)) {
		t.Errorf("expected recorded run in history:\n%s", out)
	}

	out, err = execute(t, "run", "-C", root, "--retry-failed")
	if err != nil {
		t.Fatalf("retry error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "nothing to retry") {
		t.Errorf("expected nothing to retry, got:\n%s", out)
	}
}

func TestRun_FlagConflicts(t *testing.T) {
	root := newProjectDir(t)
	if _, err := execute(t, "run", "-C", root, "--retry-failed", "--only", "get /"); err == nil {
		t.Error("expected --retry-failed with --only to fail")
	}
	if _, err := execute(t, "run", "-C", root, "--only", "nonsense"); err == nil {
		t.Error("expected invalid --only to fail")
	}
}

func TestRun_OnlyAcceptsBareNames(t *testing.T) {
	root := newProjectDir(t)
	out, err := execute(t, "run", "-C", root, "--shared-only", "--json", "--only", "post-items")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	var report engine.RunReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a run report: %v\n%s", err, out)
	}
	if len(report.Functions) != 1 || report.Functions[0].Function.ID.String() != "http:post-items" {
		t.Errorf("expected only http:post-items, got %d functions", len(report.Functions))
	}

	if _, err := execute(t, "run", "-C", root, "--only", "get /missing"); err == nil {
		t.Error("expected undeclared --only to fail")
	}
}
