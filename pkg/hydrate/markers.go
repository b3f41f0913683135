package hydrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Marker file names written into hydrated trees.
const (
	ProvenanceMarker = ".arc"
	SharedMarker     = "shared.md"
	ViewsMarker      = "views.md"
	StaticManifest   = "static.json"
)

// renderProvenance produces the .arc marker when the raw project manifest
// is unavailable. The output depends only on its inputs.
func renderProvenance(app string, fn engine.FunctionDescriptor, src string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "@app\n%s\n\n", app)
	fmt.Fprintf(&b, "@hydrate\nfunction %s\nruntime %s\nshared %s\n", fn.ID, fn.Runtime, src)
	return b.Bytes()
}

// renderContent produces the shared.md or views.md content marker: one line
// per copied path, in lexical order.
func renderContent(kind, src string, fn engine.FunctionDescriptor, entries []Entry) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", kind)
	fmt.Fprintf(&b, "Hydrated from `%s` into `%s` (%s).\n\n", src, fn.ID, fn.Runtime)
	if len(entries) == 0 {
		b.WriteString("No files.\n")
		return b.Bytes()
	}
	for _, e := range entries {
		switch {
		case e.Mode.IsDir():
			fmt.Fprintf(&b, "- `%s/`\n", e.Path)
		case e.Link != "":
			fmt.Fprintf(&b, "- `%s` -> `%s`\n", e.Path, e.Link)
		default:
			fmt.Fprintf(&b, "- `%s` %04o %d sha256:%s\n", e.Path, e.Mode.Perm(), e.Size, e.SHA256)
		}
	}
	return b.Bytes()
}

// writeMarker writes data to name inside dir, replacing any copied file or
// link of the same name.
func writeMarker(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
