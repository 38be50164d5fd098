package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"dkronbackup/internal/dkron"
	"dkronbackup/internal/job"
	"dkronbackup/internal/storage"
)

// DefaultPrefix names snapshot files and archive objects.
const DefaultPrefix = "dkron-backup"

// Source reads every job from the scheduler.
type Source interface {
	ListJobs(ctx context.Context) (job.Snapshot, error)
}

// Sink writes a single job to the scheduler.
type Sink interface {
	CreateJob(ctx context.Context, j job.Job) (*dkron.CreateResult, error)
}

// Stager is the local staging area snapshots pass through.
type Stager interface {
	EnsureLayout() error
	WriteTemp(snap job.Snapshot) (string, error)
	CheckTarget(ts time.Time, prefix string) (string, error)
	Promote(ts time.Time, prefix string) (string, error)
	ReadSnapshot(path string) (job.Snapshot, error)
	TempPath() string
}

// Archiver pushes a staged file to object storage. It reports failure
// instead of returning it.
type Archiver interface {
	Upload(ctx context.Context, localPath, objectKey string) bool
}

// Result contains information about a completed backup.
type Result struct {
	Path      string
	Jobs      int
	Archived  bool
	CreatedAt time.Time
}

// Runner drives backup and restore. Source and Sink are usually the same
// dkron.Client. Archiver is optional.
type Runner struct {
	Source   Source
	Sink     Sink
	Stage    Stager
	Archiver Archiver
	Prefix   string

	// Out receives operator-facing report lines.
	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

func (r *Runner) prefix() string {
	if r.Prefix == "" {
		return DefaultPrefix
	}
	return r.Prefix
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Backup fetches the job list, stages it, optionally archives it and
// promotes it into the permanent backup set. Only the fetch and the
// promotion can fail the run. A taken permanent name is detected before
// anything is staged or uploaded, and nothing is written locally if the
// fetch fails.
func (r *Runner) Backup(ctx context.Context) (*Result, error) {
	now := r.now()
	log := r.logger()

	snap, err := r.Source.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	log.Info("fetched jobs", "count", len(snap))
	log.Debug("fetched job names", "names", snap.Names())

	if _, err := r.Stage.CheckTarget(now, r.prefix()); err != nil {
		return nil, fmt.Errorf("failed to promote snapshot: %w", err)
	}

	if err := r.Stage.EnsureLayout(); err != nil {
		return nil, err
	}

	tempPath, err := r.Stage.WriteTemp(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to stage snapshot: %w", err)
	}
	log.Debug("staged snapshot", "path", tempPath)

	result := &Result{Jobs: len(snap), CreatedAt: now}

	if r.Archiver != nil {
		key := storage.FormatBackupName(r.prefix(), now)
		result.Archived = r.Archiver.Upload(ctx, tempPath, key)
		if result.Archived {
			fmt.Fprintln(r.out(), "Upload to S3 successful")
		} else {
			fmt.Fprintln(r.out(), "Upload to S3 failed")
		}
	}

	path, err := r.Stage.Promote(now, r.prefix())
	if err != nil {
		return nil, fmt.Errorf("failed to promote snapshot: %w", err)
	}
	result.Path = path
	log.Info("backup complete", "path", path, "jobs", result.Jobs, "archived", result.Archived)

	return result, nil
}
