// Package project ties loading, resolution, classification and the engine
// together for one project directory.
//
// A typical caller loads the project, optionally with the run ledger and
// telemetry, and hydrates it:
//
//	p, err := project.Load(ctx, root, project.WithLedger())
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//	report, err := p.Hydrate(ctx, engine.RunOptions{})
//
// RetryFailed re-runs only the functions whose last recorded outcome failed.
package project
