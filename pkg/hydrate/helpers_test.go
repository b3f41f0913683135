package hydrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// writeFile creates path under root with content and a fixed mtime.
func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Chtimes(full, fixedTime, fixedTime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}

// newProject lays out a small project with shared, views and static sources
// and one directory per function.
func newProject(t *testing.T, fns ...engine.FunctionDescriptor) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/shared/index.js", "module.exports = {}\n")
	writeFile(t, root, "src/shared/lib/db.js", "exports.db = true\n")
	if err := os.Symlink("index.js", filepath.Join(root, "src/shared/main.js")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	writeFile(t, root, "src/views/layout.js", "module.exports = () => '<html>'\n")
	writeFile(t, root, "public/static.json", `{"b.css":"b-123.css","a.js":"a-456.js","<raw>":"&"}`)
	for _, fn := range fns {
		if err := os.MkdirAll(fn.Path(root), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
	}
	return root
}

func resolution(t *testing.T, app *manifest.AppDefinition) *manifest.Resolution {
	t.Helper()
	res, err := manifest.Resolve(app)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return res
}

func classified(t *testing.T, res *manifest.Resolution) []engine.FunctionDescriptor {
	t.Helper()
	fns, err := res.Classified()
	if err != nil {
		t.Fatalf("Classified() error = %v", err)
	}
	return fns
}

// snapshot records every path under dir: file content, "dir/" for
// directories and "-> target" for links.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		switch {
		case d.IsDir():
			out[rel] = "dir/"
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = "-> " + link
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot(%s) error = %v", dir, err)
	}
	return out
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}
