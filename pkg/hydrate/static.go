package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// StaticEmitter derives static.json from the project static asset manifest.
type StaticEmitter struct {
	// Source is the absolute path of the project static manifest.
	Source string
}

// Render returns the canonical static manifest: keys sorted, two-space
// indent and a trailing newline. A missing source renders as {}.
func (s *StaticEmitter) Render() ([]byte, error) {
	raw, err := os.ReadFile(s.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte("{}\n"), nil
	}
	if err != nil {
		return nil, engine.NewDerivationError("reading static manifest", err).
			WithOp("read").
			WithDetail("path", s.Source)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, engine.NewDerivationError("static manifest is not valid JSON", err).
			WithCode(engine.ErrCodeInvalidSource).
			WithDetail("path", s.Source)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, engine.NewDerivationError("static manifest has trailing data", err).
			WithCode(engine.ErrCodeInvalidSource).
			WithDetail("path", s.Source)
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, engine.NewDerivationError("encoding static manifest", err)
	}
	return out.Bytes(), nil
}

// Emit writes static.json into dir.
func (s *StaticEmitter) Emit(dir string) error {
	data, err := s.Render()
	if err != nil {
		return err
	}
	if err := writeMarker(dir, StaticManifest, data); err != nil {
		return engine.NewDerivationError("writing static manifest", err).WithOp("write")
	}
	return nil
}
