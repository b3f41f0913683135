package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// progressPrinter prints one line per finished function.
func progressPrinter(w io.Writer) telemetry.EventSubscriber {
	var mu sync.Mutex
	return func(e engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e.Type {
		case engine.EventTypeFunctionCompleted:
			fmt.Fprintf(w, "  ok    %s\n", e.Function)
		case engine.EventTypeFunctionFailed:
			fmt.Fprintf(w, "  FAIL  %s: %s\n", e.Function, e.Message)
		case engine.EventTypeWarning:
			fmt.Fprintf(w, "  warn  %s: %s\n", e.Function, e.Message)
		}
	}
}

// printReport prints a per-function step table and a summary line.
func printReport(w io.Writer, report *engine.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tRUNTIME\tINSTALL\tSHARED\tVIEWS\tSTATIC")
	for _, fr := range report.Functions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			fr.Function.ID,
			fr.Function.Runtime,
			fr.Status(engine.StepInstall),
			fr.Status(engine.StepShared),
			fr.Status(engine.StepViews),
			fr.Status(engine.StepStatic),
		)
	}
	_ = tw.Flush()

	for _, fr := range report.Functions {
		if err := fr.Err(); err != nil {
			fmt.Fprintf(w, "\n%s: %v\n", fr.Function.ID, err)
		}
	}

	fmt.Fprintf(w, "\nrun %s %s in %s: %d succeeded, %d failed, %d cancelled\n",
		report.ID,
		report.Status,
		report.Duration.Round(time.Millisecond),
		report.Summary.Succeeded,
		report.Summary.Failed,
		report.Summary.Cancelled,
	)
}

// runError turns an unsuccessful report into a command error.
func runError(report *engine.RunReport) error {
	switch report.Status {
	case engine.RunStatusSucceeded:
		return nil
	case engine.RunStatusCancelled:
		return fmt.Errorf("run %s cancelled", report.ID)
	default:
		return fmt.Errorf("%d of %d functions failed", report.Summary.Failed, report.Summary.Total)
	}
}
