package fat

import (
	"container/list"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
)

// DefaultEntryCacheSize is the number of Dirent slots an EntryCache holds
// resident when a caller doesn't override it, mirroring NINODE in the
// teaching kernel this layer is descended from.
const DefaultEntryCacheSize = 64

// ErrEntryCacheExhausted is returned (and, for callers that cannot return
// an error from the call site, the panic value used) when every pooled
// Dirent slot is referenced and none can be recycled.
var ErrEntryCacheExhausted = errors.New("fat: entry cache: no free dirent slots")

// validState is the tri-state lifecycle of a pooled Dirent: unused and up
// for grabs, live and backed by an on-disk entry, or tombstoned (removed
// on disk but still referenced, so the chain-free and slot-reuse are
// deferred to the last Put).
type validState int8

const (
	direntFree    validState = 0
	direntValid   validState = 1
	direntDeleted validState = -1
)

// Dirent is a pooled, refcounted handle to a single directory entry: the
// entry cache's counterpart to this engine's dir/objid pair, except it
// outlives any one caller and is shared by every path walk that resolves
// to the same (parent, name). It carries the cursor state (curClus,
// clusCnt) that lets RelocClus step forward through a file without
// re-walking its cluster chain from the start on every call, and the
// tri-state valid field that implements deferred removal: a file unlinked
// while still open stays resolvable (and its storage stays allocated)
// until the last reference is released.
type Dirent struct {
	mu sync.Mutex

	fs     *FS
	parent *Dirent
	name   string

	attribute byte
	firstClus uint32
	curClus   uint32
	clusCnt   uint32 // clusters walked from firstClus to reach curClus
	fileSize  int64

	off    uint32 // byte offset of the short-name record within the parent
	lfnOff uint32 // byte offset of the first entry (long-name or short-name) in the same run

	refcnt int
	valid  validState
	dirty  bool

	element *list.Element // this Dirent's node in EntryCache.lru
}

// Name returns the path component this entry is keyed by within its
// parent directory.
func (e *Dirent) Name() string { return e.name }

// IsDir reports whether e is a directory.
func (e *Dirent) IsDir() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attribute&amDIR != 0
}

// Size returns e's cached file size.
func (e *Dirent) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileSize
}

// EntryCache is a fixed-size, LRU-recycled pool of Dirents, keyed by
// (parent, name) rather than by absolute path: exactly the granularity
// dirlookup/eget operate at, since a pooled entry only ever needs to be
// found relative to the directory that contains it. Every path resolution
// walks one component at a time through DirLookup, so a rename or unlink
// deep in a tree never needs to invalidate anything keyed by a now-stale
// full path.
type EntryCache struct {
	fs  *FS
	log *slog.Logger

	mu   sync.Mutex
	lru  *list.List // of *Dirent, most recently used at Front
	root *Dirent
}

// NewEntryCache returns an EntryCache of size pooled Dirent slots, backed
// by fsys. log may be nil, in which case fsys's own logger is used.
func NewEntryCache(fsys *FS, size int, log *slog.Logger) *EntryCache {
	if log == nil {
		log = fsys.log
	}
	if size <= 0 {
		size = DefaultEntryCacheSize
	}
	ec := &EntryCache{
		fs:  fsys,
		log: log,
		lru: list.New(),
	}
	root := &Dirent{
		fs:        fsys,
		parent:    nil,
		name:      "/",
		attribute: amDIR,
		firstClus: uint32(fsys.dirbase),
		curClus:   uint32(fsys.dirbase),
		refcnt:    1, // pinned: never recycled, never freed.
		valid:     direntValid,
	}
	root.element = ec.lru.PushFront(root)
	ec.root = root
	for i := 1; i < size; i++ {
		d := &Dirent{fs: fsys, valid: direntFree}
		d.element = ec.lru.PushBack(d)
	}
	return ec
}

// Root returns the volume's root directory entry, with its reference
// count bumped. The caller must Put it.
func (ec *EntryCache) Root() *Dirent {
	ec.Dup(ec.root)
	return ec.root
}

// Dup increments e's reference count, mirroring an additional caller
// (e.g. a duplicated handle) that now shares ownership of the same
// resolved entry. Dup'ing a Dirent whose refcount was 0 also Dups its
// parent, the same 0->1 propagation eget performs on a cache hit: a
// directory can't be evicted out from under a live child.
func (ec *EntryCache) Dup(e *Dirent) *Dirent {
	e.mu.Lock()
	wasZero := e.refcnt == 0
	e.refcnt++
	parent := e.parent
	e.mu.Unlock()
	if wasZero && parent != nil {
		ec.Dup(parent)
	}
	return e
}

// eget returns the pooled Dirent for (parent, name), recycling the least
// recently used unreferenced slot on a miss. A recycled slot's fields are
// left for the caller (DirLookup or Alloc) to populate and it is not yet
// marked direntValid. Whenever the returned entry's refcount goes from 0
// to 1 it also takes a reference on parent, which the entry's last Put
// releases.
func (ec *EntryCache) eget(parent *Dirent, name string) *Dirent {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	var free *list.Element
	for el := ec.lru.Front(); el != nil; el = el.Next() {
		d := el.Value.(*Dirent)
		d.mu.Lock()
		if d.valid == direntValid && d.parent == parent && d.name == name {
			wasZero := d.refcnt == 0
			d.refcnt++
			d.mu.Unlock()
			ec.lru.MoveToFront(el)
			if wasZero && parent != nil {
				ec.Dup(parent)
			}
			return d
		}
		if d.refcnt == 0 {
			free = el // the last one seen is the least recently used
		}
		d.mu.Unlock()
	}
	if free == nil {
		panic(ErrEntryCacheExhausted)
	}
	d := free.Value.(*Dirent)
	d.mu.Lock()
	d.parent = parent
	d.name = name
	d.attribute = 0
	d.firstClus, d.curClus, d.clusCnt = 0, 0, 0
	d.fileSize = 0
	d.off, d.lfnOff = 0, 0
	d.refcnt = 1
	d.valid = direntFree
	d.dirty = false
	d.mu.Unlock()
	ec.lru.MoveToFront(free)
	if parent != nil {
		ec.Dup(parent)
	}
	return d
}

// euLocked flushes e's cached metadata to its parent's on-disk directory
// entry. The caller must already hold e.mu.
func (ec *EntryCache) euLocked(e *Dirent) fileResult {
	if e.valid != direntValid || e.parent == nil {
		e.dirty = false
		return frOK
	}
	fsys := ec.fs
	var dj dir
	dj.obj.fs = fsys
	dj.obj.sclust = e.parent.firstClus
	if fr := dj.sdi(e.off); fr != frOK {
		return fr
	}
	if fr := fsys.move_window(dj.sect); fr != frOK {
		return fr
	}
	binary.LittleEndian.PutUint16(dj.dir[dirFstClusLOOff:], uint16(e.firstClus))
	binary.LittleEndian.PutUint16(dj.dir[dirFstClusHIOff:], uint16(e.firstClus>>16))
	binary.LittleEndian.PutUint32(dj.dir[dirFileSizeOff:], uint32(e.fileSize))
	binary.LittleEndian.PutUint32(dj.dir[dirModTimeOff:], fsys.time())
	fsys.wflag = 1
	e.dirty = false
	return frOK
}

// EUpdate flushes e's cached metadata (size, first cluster, mtime) to its
// parent directory if dirty, the exported eupdate.
func (ec *EntryCache) EUpdate(e *Dirent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	if fr := ec.euLocked(e); fr != frOK {
		return fr
	}
	return nil
}

// Put releases a reference obtained from eget/Dup/Root. On the last
// release it flushes dirty metadata (eupdate), frees the cluster chain of
// an entry tombstoned by ERemove (the deferred removal mskDDEM implies),
// returns the slot to the free list, and recursively releases the
// entry's parent, the same propagation eput in the teaching kernel
// performs up the directory tree.
func (ec *EntryCache) Put(e *Dirent) {
	if e == nil {
		return
	}
	if e == ec.root {
		e.mu.Lock()
		e.refcnt--
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.refcnt--
	if e.refcnt < 0 {
		e.mu.Unlock()
		panic("fat: entry cache: put of unreferenced dirent")
	}
	if e.refcnt != 0 {
		e.mu.Unlock()
		return
	}
	if e.dirty {
		ec.euLocked(e)
	}
	tomb := e.valid == direntDeleted
	clus := e.firstClus
	parent := e.parent
	e.valid = direntFree
	e.mu.Unlock()

	if tomb && clus != 0 {
		var obj objid
		obj.fs = ec.fs
		obj.remove_chain(clus, 0)
	}
	if parent != nil {
		ec.Put(parent)
	}
}

// DirLookup resolves a single path component name under parent, the
// dirlookup operation. "." returns a duplicate reference to parent
// itself; ".." returns a duplicate reference to parent's own parent (or
// to parent itself, if parent is the root — the root is its own parent,
// same as the on-disk "..200" convention the root's synthetic entry
// would otherwise need). Any other name is resolved by scanning parent's
// on-disk directory table; a hit populates (or refreshes) a pooled
// Dirent via eget and returns it with its reference count already
// incremented.
func (ec *EntryCache) DirLookup(parent *Dirent, name string) (*Dirent, error) {
	parent.mu.Lock()
	isDir := parent.attribute&amDIR != 0
	parentClus := parent.firstClus
	parentLive := parent.valid == direntValid
	grandparent := parent.parent
	parent.mu.Unlock()

	if !parentLive {
		return nil, frInvalidObject
	}
	if !isDir {
		return nil, frNoPath
	}
	if name == "." || name == "" {
		return ec.Dup(parent), nil
	}
	if name == ".." {
		if grandparent == nil {
			return ec.Dup(parent), nil
		}
		return ec.Dup(grandparent), nil
	}

	fsys := ec.fs
	var dj dir
	dj.obj.fs = fsys
	dj.obj.sclust = parentClus
	if _, fr := dj.create_name(name + "\x00"); fr != frOK {
		return nil, fr
	}
	if fr := dj.find(); fr != frOK {
		return nil, fr
	}

	clus := fsys.ld_clust(dj.dir)
	size := int64(binary.LittleEndian.Uint32(dj.dir[dirFileSizeOff:]))
	attr := dj.dir[dirAttrOff]
	lfnOff := dj.blk_ofs
	if lfnOff == maxu32 {
		lfnOff = dj.dptr
	}

	d := ec.eget(parent, name)
	d.mu.Lock()
	d.attribute = attr
	d.firstClus = clus
	d.curClus = clus
	d.clusCnt = 0
	d.fileSize = size
	d.off = dj.dptr
	d.lfnOff = lfnOff
	d.valid = direntValid
	d.dirty = false
	d.mu.Unlock()
	return d, nil
}

// Alloc registers a new directory entry named name under parent (ealloc).
// Allocating a plain file that already exists as a plain file is
// idempotent and returns the existing Dirent; allocating a directory, or
// allocating over an existing entry of the other kind, fails with
// frExist, matching the teaching kernel's create() (which never treats a
// pre-existing directory as a successful mkdir, even of the same name).
func (ec *EntryCache) Alloc(parent *Dirent, name string, attr byte) (*Dirent, error) {
	if d, err := ec.DirLookup(parent, name); err == nil {
		if attr&amDIR != 0 || d.attribute&amDIR != 0 {
			ec.Put(d)
			return nil, frExist
		}
		return d, nil
	} else if err != frNoFile {
		return nil, err
	}

	fsys := ec.fs
	var dj dir
	dj.obj.fs = fsys
	dj.obj.sclust = parent.firstClus
	if _, fr := dj.create_name(name + "\x00"); fr != frOK {
		return nil, fr
	}
	dotdot := parent.firstClus
	if parent == ec.root {
		dotdot = 0 // ".." of a child of the root stores cluster 0, as in f_mkdir.
	}
	newClus, off, fr := fsys.createDirEntry(&dj, attr, dotdot)
	if fr != frOK {
		return nil, fr
	}

	d := ec.eget(parent, name)
	d.mu.Lock()
	d.attribute = attr
	d.firstClus = newClus
	d.curClus = newClus
	d.clusCnt = 0
	d.fileSize = 0
	d.off = off
	d.lfnOff = off
	d.valid = direntValid
	d.dirty = false
	d.mu.Unlock()
	return d, nil
}

// ERead reads up to len(buf) bytes of e's data at offset off into buf,
// clamped to e's current size, advancing the cluster cursor with
// RelocClus one cluster at a time instead of walking the chain from
// firstClus on every call.
func (ec *EntryCache) ERead(e *Dirent, buf []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid != direntValid {
		return 0, frInvalidObject
	}
	if off < 0 || off >= e.fileSize {
		return 0, nil
	}
	if off+int64(len(buf)) > e.fileSize {
		buf = buf[:e.fileSize-off]
	}
	fsys := ec.fs
	bytesPerClus := int64(fsys.csize) * int64(fsys.ssize)
	total := 0
	for total < len(buf) {
		curOff := off + int64(total)
		if fr := fsys.RelocClus(e, curOff, false); fr != frOK {
			if total > 0 {
				break
			}
			return 0, fr
		}
		inClus := curOff % bytesPerClus
		sect := fsys.clst2sect(e.curClus) + lba(inClus/int64(fsys.ssize))
		sectOff := int(inClus % int64(fsys.ssize))
		n := int(fsys.ssize) - sectOff
		if remain := len(buf) - total; n > remain {
			n = remain
		}
		if sectOff == 0 && n == int(fsys.ssize) {
			if dr := fsys.disk_read(buf[total:total+n], sect, 1); dr != drOK {
				return total, frDiskErr
			}
		} else {
			tmp := make([]byte, fsys.ssize)
			if dr := fsys.disk_read(tmp, sect, 1); dr != drOK {
				return total, frDiskErr
			}
			copy(buf[total:total+n], tmp[sectOff:sectOff+n])
		}
		total += n
	}
	return total, nil
}

// EWrite writes buf to e at offset off, extending e's cluster chain
// (RelocClus with alloc=true) and file size as needed, then marking e
// dirty so the next EUpdate/Put flushes the new size and first cluster.
func (ec *EntryCache) EWrite(e *Dirent, buf []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid != direntValid {
		return 0, frInvalidObject
	}
	if off < 0 {
		return 0, frInvalidParameter
	}
	fsys := ec.fs
	bytesPerClus := int64(fsys.csize) * int64(fsys.ssize)
	total := 0
	for total < len(buf) {
		curOff := off + int64(total)
		if fr := fsys.RelocClus(e, curOff, true); fr != frOK {
			if total > 0 {
				break
			}
			return 0, fr
		}
		inClus := curOff % bytesPerClus
		sect := fsys.clst2sect(e.curClus) + lba(inClus/int64(fsys.ssize))
		sectOff := int(inClus % int64(fsys.ssize))
		n := int(fsys.ssize) - sectOff
		if remain := len(buf) - total; n > remain {
			n = remain
		}
		if sectOff == 0 && n == int(fsys.ssize) {
			if dr := fsys.disk_write(buf[total:total+n], sect, 1); dr != drOK {
				return total, frDiskErr
			}
		} else {
			tmp := make([]byte, fsys.ssize)
			if dr := fsys.disk_read(tmp, sect, 1); dr != drOK {
				return total, frDiskErr
			}
			copy(tmp[sectOff:sectOff+n], buf[total:total+n])
			if dr := fsys.disk_write(tmp, sect, 1); dr != drOK {
				return total, frDiskErr
			}
		}
		total += n
	}
	if off+int64(total) > e.fileSize {
		e.fileSize = off + int64(total)
	}
	e.dirty = true
	return total, nil
}

// ETrunc changes e's size to size, freeing every cluster beyond the new
// end (or the whole chain, for size 0) and marking e dirty.
func (ec *EntryCache) ETrunc(e *Dirent, size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid != direntValid {
		return frInvalidObject
	}
	if size < 0 {
		return frInvalidParameter
	}
	fsys := ec.fs
	if size == 0 {
		if e.firstClus != 0 {
			var obj objid
			obj.fs = fsys
			if fr := obj.remove_chain(e.firstClus, 0); fr != frOK {
				return fr
			}
		}
		e.firstClus, e.curClus, e.clusCnt = 0, 0, 0
	} else {
		if fr := fsys.RelocClus(e, size-1, true); fr != frOK {
			return fr
		}
		var obj objid
		obj.fs = fsys
		nxt := obj.clusterstat(e.curClus)
		if nxt != 0 && nxt != 1 && nxt != maxu32 && !fsys.IsEOF(nxt) {
			if fr := obj.remove_chain(nxt, e.curClus); fr != frOK {
				return fr
			}
		}
	}
	e.fileSize = size
	e.dirty = true
	return nil
}

// ERemove tombstones e's on-disk directory entry run (every long-name
// record plus the short-name record, same mskDDEM convention f_unlink
// used), marking e direntDeleted. The cluster chain is not freed here:
// Put does that once e's last reference is released, so a caller that
// still holds e open after removing it keeps reading/writing a live,
// if unreachable, file exactly like an unlinked-but-open fd.
func (ec *EntryCache) ERemove(e *Dirent) error {
	e.mu.Lock()
	if e.valid != direntValid {
		e.mu.Unlock()
		return frInvalidObject
	}
	if e.attribute&amDIR != 0 {
		e.mu.Unlock()
		empty, fr := ec.fs.dirIsEmpty(e.firstClus)
		if fr != frOK {
			return fr
		}
		if !empty {
			return frDenied
		}
		e.mu.Lock()
	}
	parent := e.parent
	start, end := e.lfnOff, e.off
	e.mu.Unlock()

	fsys := ec.fs
	var dj dir
	dj.obj.fs = fsys
	if parent != nil {
		dj.obj.sclust = parent.firstClus
	}
	if fr := dj.sdi(start); fr != frOK {
		return fr
	}
	for {
		if fr := fsys.move_window(dj.sect); fr != frOK {
			return fr
		}
		dj.dir[dirNameOff] = mskDDEM
		fsys.wflag = 1
		if dj.dptr >= end {
			break
		}
		if fr := dj.next(false); fr != frOK {
			return fr
		}
	}

	e.mu.Lock()
	e.valid = direntDeleted
	e.mu.Unlock()
	return nil
}

// ERename moves e from its current parent/name to (newParent, newName),
// preserving its cluster chain, size and attributes: the old short- and
// long-name run is tombstoned exactly like ERemove's, but (unlike
// ERemove) the chain is never freed, since the data is simply relocated
// to a new directory entry rather than deleted.
func (ec *EntryCache) ERename(e *Dirent, newParent *Dirent, newName string) error {
	e.mu.Lock()
	if e.valid != direntValid {
		e.mu.Unlock()
		return frInvalidObject
	}
	oldParent := e.parent
	start, end := e.lfnOff, e.off
	attr, clus, size := e.attribute, e.firstClus, e.fileSize
	e.mu.Unlock()

	if d, err := ec.DirLookup(newParent, newName); err == nil {
		ec.Put(d)
		return frExist
	} else if err != frNoFile {
		return err
	}

	fsys := ec.fs
	var dj dir
	dj.obj.fs = fsys
	if oldParent != nil {
		dj.obj.sclust = oldParent.firstClus
	}
	if fr := dj.sdi(start); fr != frOK {
		return fr
	}
	for {
		if fr := fsys.move_window(dj.sect); fr != frOK {
			return fr
		}
		dj.dir[dirNameOff] = mskDDEM
		fsys.wflag = 1
		if dj.dptr >= end {
			break
		}
		if fr := dj.next(false); fr != frOK {
			return fr
		}
	}

	var ndj dir
	ndj.obj.fs = fsys
	ndj.obj.sclust = newParent.firstClus
	if _, fr := ndj.create_name(newName + "\x00"); fr != frOK {
		return fr
	}
	if fr := ndj.register(); fr != frOK {
		return fr
	}
	if fr := fsys.move_window(ndj.sect); fr != frOK {
		return fr
	}
	ndj.dir[dirAttrOff] = attr
	binary.LittleEndian.PutUint16(ndj.dir[dirFstClusLOOff:], uint16(clus))
	binary.LittleEndian.PutUint16(ndj.dir[dirFstClusHIOff:], uint16(clus>>16))
	binary.LittleEndian.PutUint32(ndj.dir[dirFileSizeOff:], uint32(size))
	fsys.wflag = 1
	newOff := ndj.dptr

	e.mu.Lock()
	e.parent = newParent
	e.name = newName
	e.off = newOff
	e.lfnOff = newOff
	e.mu.Unlock()

	if oldParent != newParent {
		ec.Dup(newParent)
		ec.Put(oldParent)
	}
	return nil
}
