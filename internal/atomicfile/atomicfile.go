// Package atomicfile implements write-via-temp-then-rename file updates.
// The rename is the atomicity boundary: readers observe either the prior
// content or the full new content, never a partial write.
package atomicfile

import (
	"fmt"
	"os"
)

// WriteError reports a failed atomic write. The target file is guaranteed
// unchanged when one is returned.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("atomic write %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Write writes data to path via a sibling temp file, fsyncs it, then renames
// it over path. On any failure before the rename the temp file is removed and
// the original file is untouched. No retries; retry policy belongs to the
// caller.
func Write(path string, data []byte) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Path: path, Op: "create temp", Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &WriteError{Path: path, Op: "write temp", Err: err}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &WriteError{Path: path, Op: "sync temp", Err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Op: "close temp", Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Op: "rename", Err: err}
	}

	return nil
}
