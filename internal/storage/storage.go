package storage

import (
	"strings"
	"time"
)

// TimestampLayout is the Go layout for the YYMMDD_HH_MM stamp shared by a
// backup's promoted file and its archived object.
const TimestampLayout = "060102_15_04"

// Extension is the suffix of every snapshot file.
const Extension = ".json"

// BackupMetadata describes a single snapshot file held in local or object storage.
type BackupMetadata struct {
	// Key is the unique identifier within the store (path or object key).
	Key string
	// FileName is the snapshot filename (e.g. "dkron-backup_260206_12_00.json").
	FileName string
	// Size is the snapshot size in bytes.
	Size int64
	// CreatedAt is when the snapshot was written.
	CreatedAt time.Time
}

// FormatBackupName creates a consistent snapshot filename from a prefix and timestamp.
// Format: <prefix>_<YYMMDD_HH_MM>.json
func FormatBackupName(prefix string, t time.Time) string {
	return prefix + "_" + t.Format(TimestampLayout) + Extension
}

// ParseBackupName extracts the timestamp from a name produced by
// FormatBackupName. The timestamp is interpreted in loc.
func ParseBackupName(prefix, name string, loc *time.Location) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, Extension)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, stamp, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
