//go:build unix

package fat

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncData calls fdatasync where available, flushing file contents without
// the metadata sync a plain f.Sync() (fsync) also forces. Metadata (mtime,
// size) changes on a preallocated disk image rarely matter as much as the
// data itself reaching the platter, so this is the cheaper of the two on
// the unix family of platforms x/sys/unix covers.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
