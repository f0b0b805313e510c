package routing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/google/renameio/v2"
)

var rename = os.Rename

// moveFile renames src to dst. When they live on different filesystems the
// bytes are copied into a pending file next to dst, atomically put in place,
// and src is removed.
func moveFile(src, dst string) error {
	err := rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyAcross(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}
