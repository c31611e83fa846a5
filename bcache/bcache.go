// Package bcache implements a fixed-size, LRU-evicted cache of disk sectors
// sitting in front of a BlockDevice. It mirrors the buffer-cache layer of a
// small teaching kernel: a pool-wide lock guards a doubly-linked LRU list,
// and each buffer carries its own lock held across the disk I/O that fills
// or flushes it.
package bcache

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoBuffers is the value Get panics with when every buffer in the pool
// is referenced or pinned and none can be evicted to satisfy it.
var ErrNoBuffers = errors.New("bcache: no free buffers")

// Device is the minimal block device a Cache reads through and writes back
// to. A single sector is SectorSize bytes.
type Device interface {
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	WriteBlocks(data []byte, startBlock int64) (int, error)
}

// Buffer is one cached sector. Its Mutex stands in for the sleep-lock a
// caller holds across the disk I/O that validates or flushes the sector;
// unlike a spinlock it is safe to block while holding it.
type Buffer struct {
	mu sync.Mutex

	dev      Device
	blockno  uint32
	sectSize int

	valid   bool
	dirty   bool
	refcnt  int
	pinned  int
	element *list.Element // this buffer's node in the cache's LRU list

	Data []byte
}

// Lock acquires the buffer's sleep-lock. Callers must Unlock when done,
// typically via Release.
func (b *Buffer) Lock() { b.mu.Lock() }

// Unlock releases the buffer's sleep-lock without altering refcounts.
func (b *Buffer) Unlock() { b.mu.Unlock() }

// Read ensures the buffer holds valid sector data, reading through the
// device on a cache miss, and returns it. Caller must hold the buffer lock.
func (b *Buffer) Read() ([]byte, error) {
	if !b.valid {
		if _, err := b.dev.ReadBlocks(b.Data, int64(b.blockno)); err != nil {
			return nil, fmt.Errorf("bcache: read block %d: %w", b.blockno, err)
		}
		b.valid = true
	}
	return b.Data, nil
}

// Write marks the buffer dirty and flushes it to the device immediately,
// matching the teaching kernel's bwrite (writes are not write-back deferred
// past the caller releasing the buffer). Caller must hold the buffer lock.
func (b *Buffer) Write() error {
	b.dirty = true
	if _, err := b.dev.WriteBlocks(b.Data, int64(b.blockno)); err != nil {
		return fmt.Errorf("bcache: write block %d: %w", b.blockno, err)
	}
	b.dirty = false
	return nil
}

// BlockNo returns the sector number this buffer currently caches.
func (b *Buffer) BlockNo() uint32 { return b.blockno }

// Cache is a fixed-size pool of Buffers shared by all callers of a mounted
// filesystem. Buffers are kept on an LRU list; a cache hit moves the buffer
// to the front, and a miss evicts starting from the back (least recently
// used first among buffers with a zero refcount).
type Cache struct {
	mu  sync.Mutex
	lru *list.List // front = most recently used
	buf []*Buffer
	log *slog.Logger
}

// New builds a Cache of n buffers, each sectSize bytes.
func New(n, sectSize int, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		lru: list.New(),
		buf: make([]*Buffer, n),
		log: log,
	}
	for i := range c.buf {
		b := &Buffer{Data: make([]byte, sectSize), sectSize: sectSize}
		b.element = c.lru.PushBack(b)
		c.buf[i] = b
	}
	return c
}

// Get returns the locked buffer for (dev, blockno), allocating it from the
// pool on a miss. It panics with ErrNoBuffers if every buffer is referenced
// or pinned —
// the same hard failure a fixed-size kernel buffer cache exhibits, since
// there is no way to safely return "try again" to most callers in this
// codec's call graph.
func (c *Cache) Get(dev Device, blockno uint32) *Buffer {
	c.mu.Lock()
	for e := c.lru.Front(); e != nil; e = e.Next() {
		b := e.Value.(*Buffer)
		// Matching on dev/blockno alone (not also b.valid) is what keeps
		// at most one Buffer assigned to a given sector at a time: a
		// buffer claimed by a concurrent miss but not yet Read() is still
		// !valid, and a second Get for the same sector must find that
		// in-flight buffer rather than evict a second one for it, then
		// block on its lock until the first caller's read completes.
		if b.dev == dev && b.blockno == blockno {
			b.refcnt++
			c.lru.MoveToFront(e)
			c.mu.Unlock()
			c.log.Debug("bcache: hit", slog.Uint64("block", uint64(blockno)))
			b.Lock()
			return b
		}
	}
	// Miss: recycle the least-recently-used unreferenced, unpinned buffer.
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		b := e.Value.(*Buffer)
		if b.refcnt == 0 && b.pinned == 0 {
			b.dev = dev
			b.blockno = blockno
			b.valid = false
			b.dirty = false
			b.refcnt = 1
			c.lru.MoveToFront(e)
			c.mu.Unlock()
			c.log.Debug("bcache: miss, evicted", slog.Uint64("block", uint64(blockno)))
			b.Lock()
			return b
		}
	}
	c.mu.Unlock()
	c.log.Warn("bcache: exhausted", slog.Uint64("block", uint64(blockno)))
	panic(ErrNoBuffers)
}

// Release unlocks buf and, if its reference count drops to zero, moves it
// to the front (most recently used end) of the LRU list, so the buffers
// released longest ago are the first eviction candidates.
func (c *Cache) Release(buf *Buffer) {
	buf.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	buf.refcnt--
	if buf.refcnt < 0 {
		panic("bcache: release of unreferenced buffer")
	}
	if buf.refcnt == 0 {
		c.lru.MoveToFront(buf.element)
	}
}

// Pin keeps buf resident (exempt from eviction) without requiring its lock
// be held, for buffers a caller wants to keep warm across many operations
// (e.g. the root directory's first sector).
func (c *Cache) Pin(buf *Buffer) {
	c.mu.Lock()
	buf.pinned++
	c.mu.Unlock()
}

// Unpin reverses a prior Pin.
func (c *Cache) Unpin(buf *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf.pinned == 0 {
		panic("bcache: unpin of unpinned buffer")
	}
	buf.pinned--
}
