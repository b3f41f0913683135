package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Resolution is the flat, validated view of an AppDefinition.
type Resolution struct {
	// App is the application name.
	App string

	// DefaultRuntime applies to functions that declare none.
	DefaultRuntime engine.Runtime

	// Functions are the declared functions in resolution order. Runtime is
	// set only where the entry declared one; see Classify.
	Functions []engine.FunctionDescriptor

	// Shared is the shared hydration policy.
	Shared SharedPolicy

	// Views is the views hydration policy.
	Views ViewsPolicy

	// Static locates the static asset manifest.
	Static StaticSource
}

// Function returns the descriptor with the given identity.
func (r *Resolution) Function(id engine.FunctionID) (engine.FunctionDescriptor, bool) {
	for _, fn := range r.Functions {
		if fn.ID == id {
			return fn, true
		}
	}
	return engine.FunctionDescriptor{}, false
}

// section is one declaration list of the app definition.
type section struct {
	trigger engine.TriggerType
	dir     string
	entries []FunctionEntry
}

// sections lists the app's declarations in resolution order. Tables and
// streams are both table stream consumers but keep separate source roots.
func sections(app *AppDefinition) []section {
	return []section{
		{engine.TriggerHTTP, "src/http", app.HTTP},
		{engine.TriggerEvent, "src/events", app.Events},
		{engine.TriggerQueue, "src/queues", app.Queues},
		{engine.TriggerScheduled, "src/scheduled", app.Scheduled},
		{engine.TriggerTableStream, "src/tables", app.Tables},
		{engine.TriggerTableStream, "src/streams", app.Streams},
		{engine.TriggerCustomPath, "", app.CustomPaths},
	}
}

// Resolve flattens app into function descriptors and hydration policies.
// Trigger types are resolved in engine.TriggerTypes order and entries keep
// their declaration order within each type.
func Resolve(app *AppDefinition) (*Resolution, error) {
	if app == nil {
		return nil, engine.NewManifestError("app definition is empty", nil).WithCode(engine.ErrCodeMalformed)
	}

	res := &Resolution{
		App:            app.App,
		DefaultRuntime: engine.DefaultRuntime,
		Shared:         SharedPolicy{Src: DefaultSharedSrc, Disabled: make(map[engine.FunctionID]bool)},
		Views:          ViewsPolicy{Src: DefaultViewsSrc, Disabled: make(map[engine.FunctionID]bool)},
		Static:         StaticSource{Src: DefaultStaticSrc},
	}
	if app.Runtime != "" {
		rt, err := engine.ParseRuntime(app.Runtime)
		if err != nil {
			return nil, engine.NewManifestError("invalid project runtime", err).WithCode(engine.ErrCodeUnknownRuntime)
		}
		res.DefaultRuntime = rt
	}

	seen := make(map[engine.FunctionID]bool)
	for _, sec := range sections(app) {
		for i, entry := range sec.entries {
			fn, err := resolveEntry(sec, entry)
			if err != nil {
				return nil, err.WithDetail("index", i)
			}
			if seen[fn.ID] {
				return nil, engine.NewManifestError("duplicate function", nil).
					WithFunction(fn.ID).
					WithCode(engine.ErrCodeDuplicate)
			}
			seen[fn.ID] = true
			res.Functions = append(res.Functions, fn)

			if entry.Shared != nil && !*entry.Shared {
				res.Shared.Disabled[fn.ID] = true
			}
			if entry.Views != nil && !*entry.Views {
				res.Views.Disabled[fn.ID] = true
			}
		}
	}

	if err := res.applySections(app); err != nil {
		return nil, err
	}
	if err := res.checkOverlaps(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolution) applySections(app *AppDefinition) *engine.Error {
	if s := app.Shared; s != nil {
		if s.Src != "" {
			src, err := cleanSrc(s.Src)
			if err != nil {
				return engine.NewManifestError("invalid shared source", err).WithCode(engine.ErrCodeMalformed)
			}
			r.Shared.Src = src
		}
		if err := r.collect("shared.disable", s.Disable, r.Shared.Disabled); err != nil {
			return err
		}
	}

	if v := app.Views; v != nil {
		if v.Src != "" {
			src, err := cleanSrc(v.Src)
			if err != nil {
				return engine.NewManifestError("invalid views source", err).WithCode(engine.ErrCodeMalformed)
			}
			r.Views.Src = src
		}
		if v.Only != nil {
			r.Views.PragmaDeclared = true
			r.Views.Pragma = make(map[engine.FunctionID]bool, len(*v.Only))
			if err := r.collect("views.only", *v.Only, r.Views.Pragma); err != nil {
				return err
			}
		}
		if err := r.collect("views.disable", v.Disable, r.Views.Disabled); err != nil {
			return err
		}
	}

	if st := app.Static; st != nil && st.Src != "" {
		src, err := cleanSrc(st.Src)
		if err != nil {
			return engine.NewManifestError("invalid static manifest source", err).WithCode(engine.ErrCodeMalformed)
		}
		r.Static.Src = src
	}
	return nil
}

// collect resolves each reference into dst. Every reference must name a
// declared function.
func (r *Resolution) collect(field string, refs []string, dst map[engine.FunctionID]bool) *engine.Error {
	for _, ref := range refs {
		id, err := r.Lookup(ref)
		if err != nil {
			return engine.NewManifestError(field+" references an undeclared function", err).
				WithCode(engine.ErrCodeUnknownFunction).
				WithDetail("ref", ref)
		}
		dst[id] = true
	}
	return nil
}

// Lookup resolves a function reference: "trigger:name", "method /path" or
// a bare name that is unique across trigger types.
func (r *Resolution) Lookup(ref string) (engine.FunctionID, error) {
	if id, err := engine.ParseFunctionID(ref); err == nil {
		if _, ok := r.Function(id); ok {
			return id, nil
		}
		return engine.FunctionID{}, fmt.Errorf("%q is not declared", ref)
	}

	name := strings.TrimSpace(ref)
	var matches []engine.FunctionID
	for _, fn := range r.Functions {
		if fn.ID.Name == name {
			matches = append(matches, fn.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return engine.FunctionID{}, fmt.Errorf("%q is not declared", ref)
	default:
		return engine.FunctionID{}, fmt.Errorf("%q is ambiguous; qualify it as trigger:name", ref)
	}
}

func resolveEntry(sec section, e FunctionEntry) (engine.FunctionDescriptor, *engine.Error) {
	trigger := sec.trigger
	malformed := func(msg string, err error) *engine.Error {
		return engine.NewManifestError(msg, err).
			WithCode(engine.ErrCodeMalformed).
			WithDetail("trigger", string(trigger)).
			WithDetail("entry", e.label())
	}

	fn := engine.FunctionDescriptor{ID: engine.FunctionID{Trigger: trigger}}

	switch trigger {
	case engine.TriggerHTTP:
		method, route, ok := strings.Cut(strings.TrimSpace(e.label()), " ")
		if !ok {
			return fn, malformed("http route must be \"method /path\"", nil)
		}
		m, err := engine.ParseMethod(method)
		if err != nil {
			return fn, malformed("invalid http method", err)
		}
		name, err := engine.RouteName(m, strings.TrimSpace(route))
		if err != nil {
			return fn, malformed("invalid http route", err)
		}
		fn.ID.Name = name
		fn.Method = m

	case engine.TriggerCustomPath:
		if !engine.ValidName(e.Name) {
			return fn, malformed("invalid function name", nil)
		}
		if e.Src == "" {
			return fn, malformed("custom path handler must declare src", nil)
		}
		fn.ID.Name = e.Name
		if e.Method != "" {
			m, err := engine.ParseMethod(e.Method)
			if err != nil {
				return fn, malformed("invalid http method", err)
			}
			fn.Method = m
		}

	default:
		if !engine.ValidName(e.Name) {
			return fn, malformed("invalid function name", nil)
		}
		if e.Method != "" {
			return fn, malformed("method is only valid for http and custom path handlers", nil)
		}
		fn.ID.Name = e.Name
	}

	if e.Src != "" {
		src, err := cleanSrc(e.Src)
		if err != nil {
			return fn, malformed("invalid src", err)
		}
		fn.Src = src
	} else {
		fn.Src = path.Join(sec.dir, fn.ID.Name)
	}

	if e.Runtime != "" {
		rt, err := engine.ParseRuntime(e.Runtime)
		if err != nil {
			return fn, engine.NewManifestError("invalid runtime", err).
				WithFunction(fn.ID).
				WithCode(engine.ErrCodeUnknownRuntime)
		}
		fn.Runtime = rt
	}
	return fn, nil
}

// checkOverlaps rejects function directories that coincide with or nest
// inside one another, and source trees that overlap a function directory.
// Each function owns its directory exclusively.
func (r *Resolution) checkOverlaps() *engine.Error {
	for i, a := range r.Functions {
		for _, b := range r.Functions[i+1:] {
			if overlaps(a.Src, b.Src) {
				return engine.NewManifestError("function directories overlap", nil).
					WithFunction(b.ID).
					WithCode(engine.ErrCodeDuplicate).
					WithDetail("src", b.Src).
					WithDetail("conflicts_with", a.ID.String())
			}
		}
	}

	sources := []struct{ field, src string }{
		{"shared.src", r.Shared.Src},
		{"views.src", r.Views.Src},
		{"static.src", r.Static.Src},
	}
	for _, s := range sources {
		for _, fn := range r.Functions {
			if overlaps(s.src, fn.Src) {
				return engine.NewManifestError(s.field+" overlaps a function directory", nil).
					WithFunction(fn.ID).
					WithCode(engine.ErrCodeDuplicate).
					WithDetail("src", s.src)
			}
		}
	}
	return nil
}

// overlaps reports whether two clean slash paths are equal or nested.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

// cleanSrc normalizes a project-relative path and rejects paths that
// escape the project root.
func cleanSrc(src string) (string, error) {
	p := filepath.FromSlash(strings.TrimSpace(src))
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("path %q must be relative and inside the project", src)
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == "." {
		return "", fmt.Errorf("path %q must not be the project root", src)
	}
	return clean, nil
}
