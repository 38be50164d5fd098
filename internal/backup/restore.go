package backup

import (
	"context"
	"fmt"
)

// RestoreReport counts the outcome of a restore.
type RestoreReport struct {
	Total     int
	Succeeded int
	Failed    int
}

// Restore replays every job in the snapshot at source, in order, one create
// call per job. An empty source means the canonical temp file. A missing
// source fails before any remote call. Rejected jobs are reported and
// skipped; a transport failure stops the run.
//
// Nothing is deduplicated: restoring the same snapshot twice issues the
// same create calls twice.
func (r *Runner) Restore(ctx context.Context, source string) (*RestoreReport, error) {
	if source == "" {
		source = r.Stage.TempPath()
	}

	snap, err := r.Stage.ReadSnapshot(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	report := &RestoreReport{Total: len(snap)}
	fmt.Fprintf(r.out(), "There are %d jobs to restore\n", len(snap))

	for i, j := range snap {
		res, err := r.Sink.CreateJob(ctx, j)
		if err != nil {
			return report, fmt.Errorf("failed to restore job %d (%q): %w", i, j.Name(), err)
		}
		fmt.Fprintf(r.out(), "%s %d %s\n", j.Name(), res.StatusCode, res.Reason)
		if res.OK() {
			report.Succeeded++
		} else {
			report.Failed++
			r.logger().Warn("job rejected", "job", j.Name(), "status", res.StatusCode, "reason", res.Reason)
		}
	}

	r.logger().Info("restore complete", "source", source, "total", report.Total, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}
