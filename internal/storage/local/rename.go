package local

import (
	"errors"
	"fmt"
	"syscall"

	"dkronbackup/internal/errs"
)

// classifyRename maps an os.Rename failure onto the error classes. There is
// no copy fallback for any of them.
func classifyRename(src, dst string, err error) error {
	switch {
	case isUnsupported(err):
		return fmt.Errorf("%w: atomic rename of %s not supported on this host: %w", errs.ErrUnsupported, src, err)
	case errors.Is(err, syscall.EXDEV):
		return fmt.Errorf("%w: cannot rename %s to %s across devices: %w", errs.ErrFilesystem, src, dst, err)
	default:
		return fmt.Errorf("%w: failed to rename %s to %s: %w", errs.ErrFilesystem, src, dst, err)
	}
}

func isUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EOPNOTSUPP) ||
		errors.Is(err, syscall.ENOSYS)
}
