package fat

import (
	"log/slog"

	"github.com/penPenf28/dancerinfarronos/bcache"
)

// NBUF is the default number of metadata sectors (FAT entries, directory
// blocks) kept resident in the buffer cache, mirroring the fixed-size
// buffer pool of the teaching kernel this engine is descended from.
const NBUF = 32

// MountOptions configures a Mount beyond the block device, sector size and
// access mode. The zero value is a usable default.
type MountOptions struct {
	// Logger receives trace/debug/info/warn/error records from every
	// layer (buffer cache, FAT allocator, entry cache). Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
	// MirrorWrites, when true, mirrors every FAT write to the second FAT
	// copy (when the volume has one). Off by default: the filesystem this
	// engine descends from never mirrored FAT writes despite the BPB
	// allowing for a second copy, and flipping that on silently would be
	// a behavior change callers did not ask for.
	MirrorWrites bool
	// BufferCount overrides the number of sectors held in the metadata
	// buffer cache. Defaults to NBUF.
	BufferCount int
	// CodePage is stored on the FS when nonzero, but no code path reads
	// it: 8.3 short names are generated and compared the same way
	// whatever its value.
	CodePage int
	// EntryCacheSize overrides the number of pooled Dirent slots the entry
	// cache keeps resident, mirroring NINODE in the teaching kernel this
	// layer is descended from. Defaults to DefaultEntryCacheSize.
	EntryCacheSize int
}

// MountWithOptions mounts the FAT file system on the given block device and
// sector size using opts. It immediately invalidates previously open
// files and directories pointing to the same FS.
func (fsys *FS) MountWithOptions(bd BlockDevice, blockSize int, mode Mode, opts MountOptions) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	n := opts.BufferCount
	if n <= 0 {
		n = NBUF
	}
	fsys.log = log
	fsys.mirrorWrite = opts.MirrorWrites
	fsys.bc = bcache.New(n, blockSize, log)
	if opts.CodePage != 0 {
		fsys.ffCodePage = opts.CodePage
	}
	err := fsys.Mount(bd, blockSize, mode)
	if err != nil {
		return err
	}
	n = opts.EntryCacheSize
	if n <= 0 {
		n = DefaultEntryCacheSize
	}
	fsys.entries = NewEntryCache(fsys, n, log)
	return nil
}
