// Package errs holds the error classes shared by the backup and restore
// workflows. Callers wrap a cause with one of the sentinels and classify
// with errors.Is.
package errs

import "errors"

var (
	// ErrTransport is a network-level failure talking to the scheduler.
	ErrTransport = errors.New("transport error")
	// ErrProtocol is a response from the scheduler with an unexpected shape.
	ErrProtocol = errors.New("protocol error")
	// ErrFilesystem is a directory or file creation, write or rename failure.
	ErrFilesystem = errors.New("filesystem error")
	// ErrSerialization is malformed JSON on read or unencodable data on write.
	ErrSerialization = errors.New("serialization error")
	// ErrUnsupported means atomic rename is not available on this host.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrNotFound means a snapshot source does not exist.
	ErrNotFound = errors.New("not found")
)
