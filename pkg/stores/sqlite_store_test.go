package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func httpFn(name string) engine.FunctionDescriptor {
	return engine.FunctionDescriptor{
		ID:      engine.FunctionID{Trigger: engine.TriggerHTTP, Name: name},
		Runtime: engine.RuntimeNode,
		Method:  engine.MethodGet,
		Src:     "src/http/" + name,
	}
}

func ok() *engine.StepResult {
	return &engine.StepResult{Status: engine.StepStatusSucceeded, Duration: time.Millisecond}
}

func failed() *engine.StepResult {
	return &engine.StepResult{
		Status: engine.StepStatusFailed,
		Error:  engine.NewHydrationError("copy failed", nil).WithCode(engine.ErrCodeCopy),
	}
}

func cancelled() *engine.StepResult {
	return &engine.StepResult{Status: engine.StepStatusCancelled, Reason: "run cancelled"}
}

// newReport builds a report where each function maps to its shared step result.
func newReport(id, root string, offset time.Duration, results map[string]*engine.StepResult) *engine.RunReport {
	report := &engine.RunReport{
		ID:          id,
		Root:        root,
		Status:      engine.RunStatusSucceeded,
		StartedAt:   epoch.Add(offset),
		CompletedAt: epoch.Add(offset + time.Second),
		Duration:    time.Second,
	}
	for _, name := range []string{"get-a", "get-b", "get-c"} {
		res, found := results[name]
		if !found {
			continue
		}
		report.Functions = append(report.Functions, &engine.FunctionReport{
			Function: httpFn(name),
			Steps: map[engine.Step]*engine.StepResult{
				engine.StepInstall: {Status: engine.StepStatusSucceeded},
				engine.StepShared:  res,
			},
		})
		report.Summary.Total++
		switch res.Status {
		case engine.StepStatusFailed:
			report.Summary.Failed++
		case engine.StepStatusCancelled:
			report.Summary.Cancelled++
		default:
			report.Summary.Succeeded++
		}
	}
	return report
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"runs", "function_results", "step_results", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := newReport("run-1", "/app", 0, map[string]*engine.StepResult{
		"get-a": ok(),
		"get-b": failed(),
	})
	report.Status = engine.RunStatusPartial
	report.Functions[0].Steps[engine.StepViews] = &engine.StepResult{Status: engine.StepStatusSkipped, Reason: "views disabled"}

	if err := store.RecordRun(ctx, report); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if diff := cmp.Diff(report, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	results, err := store.ListFunctionResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list function results: %v", err)
	}
	want := []*FunctionResult{
		{RunID: "run-1", Function: "http:get-a", Runtime: engine.RuntimeNode, Status: FunctionStatusSucceeded},
		{RunID: "run-1", Function: "http:get-b", Runtime: engine.RuntimeNode, Status: FunctionStatusFailed, Error: report.Functions[1].Err().Error()},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("function results mismatch (-want +got):\n%s", diff)
	}

	var steps int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM step_results WHERE run_id = ?`, "run-1").Scan(&steps); err != nil {
		t.Fatal(err)
	}
	if steps != 5 {
		t.Errorf("expected 5 step rows, got %d", steps)
	}
}

func TestRecordRun_Replaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, newReport("run-1", "/app", 0, map[string]*engine.StepResult{"get-a": failed()})); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordRun(ctx, newReport("run-1", "/app", 0, map[string]*engine.StepResult{"get-a": ok()})); err != nil {
		t.Fatalf("failed to re-record run: %v", err)
	}

	results, err := store.ListFunctionResults(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Status != FunctionStatusSucceeded {
		t.Errorf("expected the replacement outcome, got %+v", results)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"old", "mid", "new"} {
		r := newReport(id, "/app", time.Duration(i)*time.Minute, map[string]*engine.StepResult{"get-a": ok()})
		if err := store.RecordRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordRun(ctx, newReport("other", "/elsewhere", time.Hour, map[string]*engine.StepResult{"get-a": ok()})); err != nil {
		t.Fatal(err)
	}

	ids := func(runs []*Run) []string {
		out := []string{}
		for _, r := range runs {
			out = append(out, r.ID)
		}
		return out
	}

	runs, err := store.ListRuns(ctx, "/app", 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if diff := cmp.Diff([]string{"new", "mid", "old"}, ids(runs)); diff != "" {
		t.Errorf("ListRuns() mismatch (-want +got):\n%s", diff)
	}
	if !runs[0].StartedAt.Equal(epoch.Add(2*time.Minute)) || runs[0].Summary.Total != 1 {
		t.Errorf("unexpected run row %+v", runs[0])
	}

	page, err := store.ListRuns(ctx, "/app", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mid"}, ids(page)); diff != "" {
		t.Errorf("paged ListRuns() mismatch (-want +got):\n%s", diff)
	}

	all, err := store.ListRuns(ctx, "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].ID != "other" {
		t.Errorf("expected all roots newest first, got %v", ids(all))
	}
}

func TestLastFailed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	runs := []*engine.RunReport{
		newReport("r1", "/app", 0, map[string]*engine.StepResult{"get-a": failed(), "get-b": failed(), "get-c": ok()}),
		newReport("r2", "/app", time.Minute, map[string]*engine.StepResult{"get-a": ok(), "get-c": cancelled()}),
		newReport("r3", "/other", 2*time.Minute, map[string]*engine.StepResult{"get-a": failed()}),
	}
	for _, r := range runs {
		if err := store.RecordRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.LastFailed(ctx, "/app")
	if err != nil {
		t.Fatalf("failed to query last failed: %v", err)
	}
	want := []engine.FunctionID{
		{Trigger: engine.TriggerHTTP, Name: "get-b"},
		{Trigger: engine.TriggerHTTP, Name: "get-c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LastFailed() mismatch (-want +got):\n%s", diff)
	}

	none, err := store.LastFailed(ctx, "/nothing")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no failures for unknown root, got %v", none)
	}
}

func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"r1", "r2", "r3", "r4"} {
		r := newReport(id, "/app", time.Duration(i)*time.Minute, map[string]*engine.StepResult{"get-a": ok()})
		if err := store.RecordRun(ctx, r); err != nil {
			t.Fatal(err)
		}
		if err := store.AppendEvent(ctx, &engine.Event{ID: id + "-e", RunID: id, Type: engine.EventTypeRunStarted, Level: "info", Timestamp: epoch}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.PruneRuns(ctx, "/app", 2)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned runs, got %d", n)
	}

	runs, err := store.ListRuns(ctx, "/app", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r4" || runs[1].ID != "r3" {
		t.Errorf("expected newest two runs to survive, got %+v", runs)
	}

	events, err := store.GetEvents(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected events of pruned run to be deleted, got %d", len(events))
	}
	results, err := store.ListFunctionResults(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected results of pruned run to cascade, got %d", len(results))
	}

	if _, err := store.PruneRuns(ctx, "/app", -1); err == nil {
		t.Error("expected error for negative keep")
	}
}

func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	in := []*engine.Event{
		{ID: "e1", RunID: "run-1", Type: engine.EventTypeRunStarted, Level: "info", Message: "started", Timestamp: epoch},
		{ID: "e2", RunID: "run-1", Type: engine.EventTypeStepCompleted, Function: "http:get-a", Step: engine.StepShared,
			Status: engine.StepStatusFailed, Level: "info", Message: "shared failed", Timestamp: epoch.Add(time.Second)},
		{ID: "e3", RunID: "run-2", Type: engine.EventTypeRunStarted, Level: "info", Timestamp: epoch},
	}
	for _, e := range in {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Seq >= got[1].Seq {
		t.Errorf("expected increasing sequence numbers, got %d then %d", got[0].Seq, got[1].Seq)
	}
	if diff := cmp.Diff(*in[1], got[1].Event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".hydrate", "state.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.RecordRun(ctx, newReport("run-1", "/app", 0, map[string]*engine.StepResult{"get-a": failed()})); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	ids, err := store.LastFailed(ctx, "/app")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0].Name != "get-a" {
		t.Errorf("expected persisted failure, got %v", ids)
	}
}
