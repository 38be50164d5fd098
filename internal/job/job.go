// Package job models scheduler jobs as opaque JSON objects. Jobs are kept
// as their encoded bytes so a snapshot round-trips without normalization:
// key order, number literals and unknown fields survive untouched.
package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"dkronbackup/internal/errs"
)

var (
	errNotObject   = errors.New("job is not a JSON object")
	errInvalidJSON = errors.New("invalid job JSON")
)

// Job is one scheduled job as defined by the remote service.
type Job struct {
	raw json.RawMessage
}

// New wraps an encoded JSON object as a Job. The bytes are copied.
func New(raw []byte) (Job, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Job{}, errNotObject
	}
	if !json.Valid(trimmed) {
		return Job{}, errInvalidJSON
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return Job{}, err
	}
	return Job{raw: buf.Bytes()}, nil
}

// Name returns the job's "name" field for display, or "" if absent.
func (j Job) Name() string {
	var fields struct {
		Name any `json:"name"`
	}
	if err := json.Unmarshal(j.raw, &fields); err != nil || fields.Name == nil {
		return ""
	}
	if s, ok := fields.Name.(string); ok {
		return s
	}
	return fmt.Sprint(fields.Name)
}

// Bytes returns the compact encoded job.
func (j Job) Bytes() []byte {
	return bytes.Clone(j.raw)
}

func (j Job) MarshalJSON() ([]byte, error) {
	if len(j.raw) == 0 {
		return nil, errors.New("empty job")
	}
	return j.raw, nil
}

func (j *Job) UnmarshalJSON(data []byte) error {
	parsed, err := New(data)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// Snapshot is the ordered list of jobs returned by one list call.
type Snapshot []Job

// Names returns the display name of every job, in order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s))
	for i, j := range s {
		names[i] = j.Name()
	}
	return names
}

// Decode reads a snapshot: a JSON array of JSON objects. Any other shape
// is an errs.ErrSerialization.
func Decode(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot: %w", errs.ErrSerialization, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: snapshot is not a JSON array", errs.ErrSerialization)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrSerialization, err)
	}

	snap := make(Snapshot, 0, len(items))
	for i, item := range items {
		j, err := New(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", errs.ErrSerialization, i, err)
		}
		snap = append(snap, j)
	}
	return snap, nil
}

// Encode writes the snapshot as a JSON array, one job per line.
func (s Snapshot) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, j := range s {
		raw, err := j.MarshalJSON()
		if err != nil {
			return fmt.Errorf("%w: element %d: %w", errs.ErrSerialization, i, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.Write(raw)
	}
	if len(s) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}
