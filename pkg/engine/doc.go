// Package engine provides the core types and the orchestrator for per-function
// hydration of a serverless project.
//
// # Overview
//
// Each function declared by the project becomes a self-contained deployable
// unit. For every function the engine runs a short pipeline:
//
//  1. Install - populate the runtime dependency directory (Installer)
//  2. Shared - copy the project shared tree into the function (Hydrator)
//  3. Views - copy the views tree into read-style HTTP handlers (Hydrator)
//  4. Static - derive static.json next to the shared provenance marker
//
// Install must finish before hydration begins. Shared and views target
// disjoint mounts and run concurrently. The static manifest is produced
// inside the shared step, so it exists exactly when the shared artifact does.
//
// # Core Domain Types
//
//   - FunctionID: (trigger type, name) identity of a function
//   - FunctionDescriptor: a classified function with runtime, method and source
//   - Runtime: node, python or ruby, each with a fixed Layout
//   - RuntimeGroup: functions partitioned by runtime
//   - RunReport: per-function step results and summary of one run
//
// # Atomicity
//
// Either every artifact a function should carry exists after a run, or none
// of its hydrated artifacts do. When the shared or views step fails, the
// engine prunes both and marks the surviving one as rolled back. An install
// failure prunes both and skips hydration for that function only.
//
// # Error Classification
//
// Errors carry a Kind:
//
//   - Manifest: malformed or duplicate declarations; aborts the whole run
//   - Install: the dependency collaborator failed for one function
//   - Hydration: copying or committing a tree failed for one function
//   - Derivation: the static manifest could not be produced
//
// Use errors.Is with the sentinels, or the helper predicates:
//
//	if engine.IsRetryable(err) {
//	    // re-run just that function
//	}
//
// # Example Usage
//
//	eng, err := engine.New(engine.Config{
//	    Root:      "/srv/app",
//	    Installer: installer,
//	    Shared:    sharedHydrator,
//	    Views:     viewsHydrator,
//	})
//	if err != nil {
//	    return err
//	}
//	report, err := eng.Run(ctx, functions, engine.RunOptions{})
package engine
