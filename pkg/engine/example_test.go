package engine_test

import (
	"context"
	"fmt"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Example_routeNames shows how HTTP routes map onto function names.
func Example_routeNames() {
	for _, route := range []string{"/", "/notes/:id", "/time_is_good/*"} {
		name, err := engine.RouteName(engine.MethodGet, route)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(name)
	}

	// Output:
	// get-index
	// get-notes-000id
	// get-time_is_good-catchall
}

// Example_layouts prints where each runtime receives shared code.
func Example_layouts() {
	for _, r := range engine.Runtimes {
		fmt.Printf("%s: %s\n", r, r.Layout().SharedMount)
	}

	// Output:
	// node: node_modules/@architect/shared
	// python: vendor/shared
	// ruby: vendor/shared
}

// Example_run runs the pipeline with an installer that does nothing.
func Example_run() {
	eng, err := engine.New(engine.Config{
		Root: "/srv/app",
		Installer: engine.InstallerFunc(func(ctx context.Context, fn engine.FunctionDescriptor, path string) error {
			return nil
		}),
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	fns := []engine.FunctionDescriptor{
		{ID: engine.FunctionID{Trigger: engine.TriggerHTTP, Name: "get-index"}, Runtime: engine.RuntimeNode, Method: engine.MethodGet, Src: "src/http/get-index"},
	}
	report, err := eng.Run(context.Background(), fns, engine.RunOptions{})
	if err != nil {
		fmt.Println(err)
		return
	}

	fr := report.Function(fns[0].ID)
	fmt.Println(report.Status, fr.Status(engine.StepInstall), fr.Status(engine.StepShared))

	// Output:
	// succeeded succeeded skipped
}
