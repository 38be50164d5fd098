package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dkronbackup/internal/errs"
	"dkronbackup/internal/job"
	"dkronbackup/internal/storage"
)

const (
	backupsDir = "backups"
	tmpDir     = "tmp"

	// TempFileName is the canonical in-flight snapshot inside tmp/.
	TempFileName = "dkron-backup-latest.json"
)

// ErrTempExists is returned by WriteTemp under TempFail when a stale temp
// file is present.
var ErrTempExists = errors.New("temp snapshot already exists")

// TempPolicy decides what WriteTemp does with a stale temp file.
type TempPolicy string

const (
	TempOverwrite TempPolicy = "overwrite"
	TempFail      TempPolicy = "fail"
)

// Store stages snapshots under a fixed layout:
//
//	<root>/tmp/dkron-backup-latest.json
//	<root>/backups/<prefix>_<YYMMDD_HH_MM>.json
type Store struct {
	root   string
	policy TempPolicy
}

// New creates a staging store rooted at root. An empty policy means TempOverwrite.
func New(root string, policy TempPolicy) *Store {
	if policy == "" {
		policy = TempOverwrite
	}
	return &Store{root: root, policy: policy}
}

func (s *Store) BackupsDir() string { return filepath.Join(s.root, backupsDir) }
func (s *Store) TempPath() string   { return filepath.Join(s.root, tmpDir, TempFileName) }

// EnsureLayout creates root, backups/ and tmp/ if missing.
func (s *Store) EnsureLayout() error {
	for _, dir := range []string{s.root, s.BackupsDir(), filepath.Join(s.root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: failed to create directory %s: %w", errs.ErrFilesystem, dir, err)
		}
	}
	return nil
}

// WriteTemp encodes snap to the canonical temp file and returns its path.
func (s *Store) WriteTemp(snap job.Snapshot) (string, error) {
	path := s.TempPath()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if s.policy == TempFail {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %w: %s", errs.ErrFilesystem, ErrTempExists, path)
		}
		return "", fmt.Errorf("%w: failed to create file %s: %w", errs.ErrFilesystem, path, err)
	}

	if err := snap.Encode(file); err != nil {
		file.Close()
		// Clean up partial file
		os.Remove(path)
		if errors.Is(err, errs.ErrSerialization) {
			return "", err
		}
		return "", fmt.Errorf("%w: failed to write %s: %w", errs.ErrFilesystem, path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: failed to sync %s: %w", errs.ErrFilesystem, path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: failed to close %s: %w", errs.ErrFilesystem, path, err)
	}
	return path, nil
}

// CheckTarget returns the permanent path a snapshot taken at ts would be
// promoted to, or errs.ErrFilesystem if that file already exists.
func (s *Store) CheckTarget(ts time.Time, prefix string) (string, error) {
	dst := filepath.Join(s.BackupsDir(), storage.FormatBackupName(prefix, ts))
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("%w: backup %s already exists", errs.ErrFilesystem, dst)
	}
	return dst, nil
}

// Promote renames the temp file to backups/<prefix>_<ts>.json and returns
// the new path. It never copies: a host without atomic rename fails with
// errs.ErrUnsupported. An existing permanent file is never replaced.
func (s *Store) Promote(ts time.Time, prefix string) (string, error) {
	src := s.TempPath()
	dst, err := s.CheckTarget(ts, prefix)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", classifyRename(src, dst, err)
	}
	return dst, nil
}

// ReadSnapshot decodes the snapshot stored at path.
func (s *Store) ReadSnapshot(path string) (job.Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %s: %w", errs.ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("%w: failed to open snapshot %s: %w", errs.ErrFilesystem, path, err)
	}
	defer file.Close()

	snap, err := job.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// List returns the promoted snapshots named <prefix>_<YYMMDD_HH_MM>.json,
// newest first. CreatedAt comes from the name, not the file's mtime.
func (s *Store) List(prefix string) ([]storage.BackupMetadata, error) {
	dir := s.BackupsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to list directory %s: %w", errs.ErrFilesystem, dir, err)
	}

	var backups []storage.BackupMetadata
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		created, ok := storage.ParseBackupName(prefix, entry.Name(), time.Local)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, storage.BackupMetadata{
			Key:       filepath.Join(dir, entry.Name()),
			FileName:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].FileName > backups[j].FileName
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Latest returns the newest promoted snapshot for prefix.
func (s *Store) Latest(prefix string) (storage.BackupMetadata, error) {
	backups, err := s.List(prefix)
	if err != nil {
		return storage.BackupMetadata{}, err
	}
	if len(backups) == 0 {
		return storage.BackupMetadata{}, fmt.Errorf("%w: no backups in %s", errs.ErrNotFound, s.BackupsDir())
	}
	return backups[0], nil
}
