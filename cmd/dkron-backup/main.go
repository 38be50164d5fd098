package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"dkronbackup/internal/backup"
	"dkronbackup/internal/config"
	"dkronbackup/internal/dkron"
	"dkronbackup/internal/logging"
	"dkronbackup/internal/storage/local"
	s3backend "dkronbackup/internal/storage/s3"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "backup":
		return runBackupCLI(ctx, args[1:], stdout, stderr)
	case "restore":
		return runRestoreCLI(ctx, args[1:], stdout, stderr)
	case "list":
		return runListCLI(args[1:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: dkron-backup <command> [arguments]

Commands:
  backup [URL] [--bucket NAME]         Snapshot all jobs to local storage (and S3)
  restore [URL] [SOURCE] [--latest]    Replay a snapshot into Dkron, one job at a time
  list                                 List local backups, newest first
  help                                 Show this help message

Restore reads the staged temp snapshot when no SOURCE is given. Jobs are
never deduplicated: restoring twice creates every job twice.

Environment:
  DKRON_URL                    Dkron base URL (default: %s)
  DKRON_S3_BUCKET              Archive bucket; archival is skipped when empty
  DKRON_BACKUP_ROOT            Staging root (default: $HOME/.dkron-backup)
  DKRON_BACKUP_PREFIX          Backup file prefix (default: %s)
  DKRON_BACKUP_ON_STALE_TEMP   overwrite | fail (default: overwrite)
  DKRON_BACKUP_CONFIG          Optional YAML config file
  DKRON_S3_REGION, DKRON_S3_ENDPOINT, DKRON_S3_PREFIX, DKRON_S3_STORAGE_CLASS,
  DKRON_S3_ACCESS_KEY_ID, DKRON_S3_SECRET_ACCESS_KEY, DKRON_S3_FORCE_PATH_STYLE
  DKRON_BACKUP_LOG_LEVEL       debug | info | warn | error (default: info)
  DKRON_BACKUP_LOG_FORMAT      text | json (default: text)

Examples:
  dkron-backup backup
  dkron-backup backup http://dkron:8080 --bucket dkron-archive
  dkron-backup restore http://dkron:8080 ~/.dkron-backup/backups/dkron-backup_260206_12_00.json
  dkron-backup restore --latest
`, config.DefaultURL, config.DefaultPrefix)
}

// parseArgs parses fs allowing flags before, between and after positional
// arguments, and returns the positionals in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func usageExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	return exitUsage
}

// loadConfig loads the configuration, applies the command-line overrides
// and validates the result.
func loadConfig(stderr io.Writer, override func(*config.Config)) (*config.Config, *slog.Logger, bool) {
	cfg, err := config.Load()
	if err == nil {
		if override != nil {
			override(cfg)
		}
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return nil, nil, false
	}
	return cfg, logging.New(stderr, cfg.LogLevel, cfg.LogFormat), true
}

func newStore(cfg *config.Config) *local.Store {
	return local.New(cfg.Root, local.TempPolicy(cfg.OnStaleTemp))
}

func newArchiver(ctx context.Context, cfg *config.Config, logger *slog.Logger) backup.Archiver {
	if !cfg.ArchiveEnabled() {
		return nil
	}
	u, err := s3backend.New(ctx, s3backend.Config{
		Bucket:          cfg.Bucket,
		KeyPrefix:       cfg.S3KeyPrefix,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		StorageClass:    cfg.S3StorageClass,
		ForcePathStyle:  cfg.S3ForcePathStyle,
	}, logger)
	if err != nil {
		return unavailableArchiver{err: err, logger: logger}
	}
	return u
}

// unavailableArchiver stands in for an S3 client that could not be built,
// so the failure is reported like any other upload failure.
type unavailableArchiver struct {
	err    error
	logger *slog.Logger
}

func (a unavailableArchiver) Upload(ctx context.Context, localPath, objectKey string) bool {
	a.logger.Error("archive upload failed", "file", localPath, "error", a.err)
	return false
}

func runBackupCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("backup", stderr)
	bucket := fs.String("bucket", "", "S3 bucket to archive the snapshot to (default $DKRON_S3_BUCKET)")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return usageExit(err)
	}
	if len(positional) > 1 {
		fmt.Fprintln(stderr, "Error: backup takes at most one argument: URL")
		return exitUsage
	}

	cfg, logger, ok := loadConfig(stderr, func(cfg *config.Config) {
		if len(positional) == 1 {
			cfg.URL = positional[0]
		}
		if *bucket != "" {
			cfg.Bucket = *bucket
		}
	})
	if !ok {
		return exitError
	}

	client, err := dkron.NewClient(cfg.URL)
	if err != nil {
		logger.Error("invalid scheduler URL", "error", err)
		return exitError
	}

	runner := &backup.Runner{
		Source:   client,
		Sink:     client,
		Stage:    newStore(cfg),
		Archiver: newArchiver(ctx, cfg, logger),
		Prefix:   cfg.Prefix,
		Out:      stdout,
		Logger:   logger,
	}

	result, err := runner.Backup(ctx)
	if err != nil {
		logger.Error("backup failed", "url", cfg.URL, "error", err)
		return exitError
	}
	fmt.Fprintf(stdout, "Backed up %d jobs to %s\n", result.Jobs, result.Path)
	return exitOK
}

func runRestoreCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("restore", stderr)
	latest := fs.Bool("latest", false, "Restore the most recent backup in the staging root")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return usageExit(err)
	}
	if len(positional) > 2 {
		fmt.Fprintln(stderr, "Error: restore takes at most two arguments: URL and SOURCE")
		return exitUsage
	}
	if *latest && len(positional) == 2 {
		fmt.Fprintln(stderr, "Error: --latest cannot be combined with SOURCE")
		return exitUsage
	}

	cfg, logger, ok := loadConfig(stderr, func(cfg *config.Config) {
		if len(positional) >= 1 {
			cfg.URL = positional[0]
		}
	})
	if !ok {
		return exitError
	}

	store := newStore(cfg)
	var source string
	if len(positional) == 2 {
		source = positional[1]
	}
	if *latest {
		meta, err := store.Latest(cfg.Prefix)
		if err != nil {
			logger.Error("no backup to restore", "error", err)
			return exitError
		}
		source = meta.Key
		logger.Info("selected latest backup", "path", source, "created", meta.CreatedAt.Format(time.RFC3339))
	}

	client, err := dkron.NewClient(cfg.URL)
	if err != nil {
		logger.Error("invalid scheduler URL", "error", err)
		return exitError
	}

	runner := &backup.Runner{
		Source: client,
		Sink:   client,
		Stage:  store,
		Prefix: cfg.Prefix,
		Out:    stdout,
		Logger: logger,
	}

	if _, err := runner.Restore(ctx, source); err != nil {
		logger.Error("restore failed", "url", cfg.URL, "error", err)
		return exitError
	}
	return exitOK
}

func runListCLI(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	positional, err := parseArgs(fs, args)
	if err != nil {
		return usageExit(err)
	}
	if len(positional) > 0 {
		fmt.Fprintln(stderr, "Error: list takes no arguments")
		return exitUsage
	}

	cfg, logger, ok := loadConfig(stderr, nil)
	if !ok {
		return exitError
	}

	store := newStore(cfg)
	backups, err := store.List(cfg.Prefix)
	if err != nil {
		logger.Error("failed to list backups", "error", err)
		return exitError
	}

	if len(backups) == 0 {
		fmt.Fprintf(stdout, "No backups found in %s\n", store.BackupsDir())
		return exitOK
	}

	// Print as a formatted table
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FILENAME\tSIZE\tCREATED\tAGE\n")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.FileName, humanize.Bytes(uint64(b.Size)), b.CreatedAt.Format(time.RFC3339), humanize.Time(b.CreatedAt))
	}
	w.Flush()
	return exitOK
}
