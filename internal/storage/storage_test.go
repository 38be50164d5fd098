package storage

import (
	"testing"
	"time"
)

func TestFormatBackupName(t *testing.T) {
	ts := time.Date(2026, 2, 6, 9, 5, 59, 0, time.UTC)
	got := FormatBackupName("dkron-backup", ts)
	want := "dkron-backup_260206_09_05.json"
	if got != want {
		t.Errorf("FormatBackupName() = %q, want %q", got, want)
	}
}

func TestParseBackupName(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		want   time.Time
		wantOK bool
	}{
		{"valid", "dkron-backup_260206_09_05.json", time.Date(2026, 2, 6, 9, 5, 0, 0, time.UTC), true},
		{"other prefix", "other_260206_09_05.json", time.Time{}, false},
		{"wrong extension", "dkron-backup_260206_09_05.zip", time.Time{}, false},
		{"bad stamp", "dkron-backup_latest.json", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseBackupName("dkron-backup", tt.file, time.UTC)
			if ok != tt.wantOK {
				t.Fatalf("ParseBackupName(%q) ok = %v, want %v", tt.file, ok, tt.wantOK)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseBackupName(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 59, 0, 0, time.Local)
	got, ok := ParseBackupName("p", FormatBackupName("p", ts), time.Local)
	if !ok || !got.Equal(ts) {
		t.Errorf("round trip = %v (ok=%v), want %v", got, ok, ts)
	}
}
