package fat

import (
	"errors"
	"io"
	"math"
	"time"
)

// Mode represents the file access mode used in Open.
type Mode uint8

// File access modes for calling Open.
const (
	ModeRead  Mode = Mode(faRead)
	ModeWrite Mode = Mode(faWrite)
	ModeRW    Mode = ModeRead | ModeWrite

	ModeCreateNew    Mode = Mode(faCreateNew)
	ModeCreateAlways Mode = Mode(faCreateAlways)
	ModeOpenExisting Mode = Mode(faOpenExisting)
	ModeOpenAppend   Mode = Mode(faOpenAppend)

	allowedModes = ModeRead | ModeWrite | ModeCreateNew | ModeCreateAlways | ModeOpenExisting | ModeOpenAppend
)

var (
	errInvalidMode   = errors.New("invalid fat access mode")
	errForbiddenMode = errors.New("forbidden fat access mode")
)

// Dir represents an open FAT directory.
type Dir struct {
	dir
	inlineInfo FileInfo
}

// Mount mounts the FAT file system on the given block device and sector size.
// It immediately invalidates previously open files and directories pointing to the same FS.
// Mode should be ModeRead, ModeWrite, or both.
func (fsys *FS) Mount(bd BlockDevice, blockSize int, mode Mode) error {
	if mode&^(ModeRead|ModeWrite) != 0 {
		return errInvalidMode
	} else if blockSize > math.MaxUint16 {
		return errors.New("sector size too large")
	}
	fr := fsys.mount_volume(bd, uint16(blockSize), uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// OpenFile opens the named file for reading or writing, depending on the mode.
// The path must be absolute (starting with a slash) and must not contain
// any elements that are "." or "..".
func (fsys *FS) OpenFile(fp *File, path string, mode Mode) error {
	prohibited := (mode & ModeRW) &^ fsys.perm
	if mode&^allowedModes != 0 {
		return errInvalidMode
	} else if prohibited != 0 {
		return errForbiddenMode
	}
	fr := fsys.f_open(fp, path, uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// Read reads up to len(buf) bytes from the File. It implements the [io.Reader] interface.
func (fp *File) Read(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	br, fr := fp.f_read(buf)
	if fr != frOK {
		return br, fr
	} else if br == 0 && fr == frOK {
		return br, io.EOF
	}
	return br, nil
}

// Write writes len(buf) bytes to the File. It implements the [io.Writer] interface.
func (fp *File) Write(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	bw, fr := fp.f_write(buf)
	if fr != frOK {
		return bw, fr
	}
	return bw, nil
}

// Close closes the file and syncs any unwritten data to the underlying device.
func (fp *File) Close() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}

	fr = fp.f_close()
	if fr != frOK {
		return fr
	}
	return nil
}

// Sync commits the current contents of the file to the filesystem immediately.
func (fp *File) Sync() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}

	fr = fp.obj.fs.sync()
	if fr != frOK {
		return fr
	}
	return nil
}

// Mode returns the lowest 2 bits of the file's permission (read, write or both).
func (fp *File) Mode() Mode {
	return Mode(fp.flag & 3)
}

// OpenDir opens the named directory for reading.
func (fsys *FS) OpenDir(dp *Dir, path string) error {
	fr := fsys.f_opendir(&dp.dir, path)
	if fr != frOK {
		return fr
	}
	return nil
}

// ForEachFile calls the callback function for each file in the directory.
func (dp *Dir) ForEachFile(callback func(*FileInfo) error) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	} else if dp.obj.fs.perm&ModeRead == 0 {
		return errForbiddenMode
	}

	fr = dp.sdi(0) // Rewind directory.
	if fr != frOK {
		return fr
	}
	for {
		fr := dp.f_readdir(&dp.inlineInfo)
		if fr != frOK {
			return fr
		} else if dp.inlineInfo.fname[0] == 0 {
			return nil // End of directory.
		}
		err := callback(&dp.inlineInfo)
		if err != nil {
			return err
		}
	}
}

// AlternateName returns the alternate name of the file.
func (finfo *FileInfo) AlternateName() string {
	return str(finfo.altname[:])
}

// Name returns the name of the file.
func (finfo *FileInfo) Name() string {
	return str(finfo.fname[:])
}

// Size returns the size of the file in bytes.
func (finfo *FileInfo) Size() int64 {
	return finfo.fsize
}

// ModTime returns the modification time of the file.
func (finfo *FileInfo) ModTime() time.Time {
	// https://www.win.tue.nl/~aeb/linux/fs/fat/fat-1.html
	hour := int(finfo.ftime >> 11)
	min := int((finfo.ftime >> 5) & 0x3f)
	doubleSeconds := int(finfo.ftime & 0x1f)
	yearSince1980 := int(finfo.fdate >> 9)
	month := int((finfo.fdate >> 5) & 0xf)
	day := int(finfo.fdate & 0x1f)
	return time.Date(yearSince1980+1980, time.Month(month), day, hour, min, 2*doubleSeconds, 0, time.UTC)
}

// IsDir returns true if the file is a directory.
func (finfo *FileInfo) IsDir() bool {
	return finfo.fattrib&amDIR != 0
}

// Entries returns fsys's entry cache, initializing it with
// DefaultEntryCacheSize slots on first use so Open/Create/Remove/Rename
// work against a bare Mount and not only against MountWithOptions.
func (fsys *FS) Entries() *EntryCache {
	if fsys.entries == nil {
		fsys.entries = NewEntryCache(fsys, DefaultEntryCacheSize, fsys.log)
	}
	return fsys.entries
}

// Open resolves path through the entry cache and returns its Dirent,
// refcounted like every other lookup. The caller must Close it.
func (fsys *FS) Open(path string) (*Dirent, error) {
	return fsys.Entries().LookupPath(path)
}

// Create resolves path's parent directory and allocates a new entry named
// by its final path component. Creating a plain file that already exists
// is idempotent and returns the existing entry; creating a directory that
// already exists (of either kind) is not and reports frExist, matching
// the teaching kernel's create().
func (fsys *FS) Create(path string, attr byte) (*Dirent, error) {
	ec := fsys.Entries()
	parent, name, err := ec.LookupParent(path)
	if err != nil {
		return nil, err
	}
	defer ec.Put(parent)
	return ec.Alloc(parent, name, attr)
}

// Unlink removes the entry at path, or tombstones it for deferred removal
// if other Dirents still reference it.
func (fsys *FS) Unlink(path string) error {
	ec := fsys.Entries()
	e, err := ec.LookupPath(path)
	if err != nil {
		return err
	}
	defer ec.Put(e)
	return ec.ERemove(e)
}

// Move renames the entry at oldpath to newpath, which may land it under a
// different parent directory. The moved entry's cluster chain, size and
// attributes are preserved; only its directory location changes.
func (fsys *FS) Move(oldpath, newpath string) error {
	ec := fsys.Entries()
	e, err := ec.LookupPath(oldpath)
	if err != nil {
		return err
	}
	defer ec.Put(e)
	newParent, newName, err := ec.LookupParent(newpath)
	if err != nil {
		return err
	}
	defer ec.Put(newParent)
	return ec.ERename(e, newParent, newName)
}

// Remove deletes the named file, or the named directory if it is empty.
func (fsys *FS) Remove(name string) error {
	return fsys.Unlink(name)
}

// Rename moves the file or directory at oldname to newname. Both names
// must resolve within the same mounted volume; there is no cross-device
// rename since this engine has no multi-device mount table.
func (fsys *FS) Rename(oldname, newname string) error {
	return fsys.Move(oldname, newname)
}

// Stat resolves name through the entry cache and returns its FileInfo
// without the caller needing to hold the entry open.
func (fsys *FS) Stat(name string) (FileInfo, error) {
	e, err := fsys.Open(name)
	if err != nil {
		return FileInfo{}, err
	}
	defer fsys.Entries().Put(e)
	return e.Stat(), nil
}

// Read reads len(buf) bytes from e starting at off, the dirent-cache
// counterpart to File.Read that never re-walks the directory tree to find
// its cursor: RelocClus advances from e's last cluster position instead.
func (e *Dirent) Read(buf []byte, off int64) (int, error) {
	return e.fs.Entries().ERead(e, buf, off)
}

// Write writes buf to e at off, growing e's size and cluster chain as
// needed.
func (e *Dirent) Write(buf []byte, off int64) (int, error) {
	return e.fs.Entries().EWrite(e, buf, off)
}

// Truncate changes e's size to size, freeing or extending its cluster
// chain to match.
func (e *Dirent) Truncate(size int64) error {
	return e.fs.Entries().ETrunc(e, size)
}

// Sync flushes e's cached metadata to its parent directory if dirty.
func (e *Dirent) Sync() error {
	return e.fs.Entries().EUpdate(e)
}

// Close releases e's reference, flushing it to disk if this was the last
// one outstanding.
func (e *Dirent) Close() error {
	e.fs.Entries().Put(e)
	return nil
}

// Stat returns e's cached metadata as a FileInfo, without touching disk.
func (e *Dirent) Stat() FileInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var fno FileInfo
	fno.fsize = e.fileSize
	fno.fattrib = e.attribute
	copy(fno.fname[:], e.name)
	return fno
}
