package fat

import "log/slog"

// ReadFATEntry returns the raw FAT entry for a cluster: 0 if free, a value
// in [2, n_fatent) if it points at the next cluster in the chain, and
// anything >= FAT32_EOC if it marks end-of-chain. It is a thin exported
// wrapper over objid.clusterstat for callers that want FAT introspection
// without opening a file.
func (fsys *FS) ReadFATEntry(clst uint32) (uint32, error) {
	var obj objid
	obj.fs = fsys
	val := obj.clusterstat(clst)
	if val == 1 {
		return 0, frIntErr
	} else if val == maxu32 {
		return 0, frDiskErr
	}
	return val, nil
}

// WriteFATEntry sets the FAT entry for cluster to value directly, bypassing
// chain bookkeeping (free-cluster counts, last_clst hinting). Intended for
// repair tools, not regular allocation.
func (fsys *FS) WriteFATEntry(cluster, value uint32) error {
	fr := fsys.put_clusterstat(cluster, value)
	if fr != frOK {
		return fr
	}
	return nil
}

// IsEOF reports whether a FAT entry value marks end-of-chain. FAT32 marks
// EOC with any value in [FAT32_EOC, FAT32_EOC+7], not just the canonical
// 0x0FFFFFFF the BPB writes; this uses the teacher's own value>=fsys.n_fatent
// test (any value past the last valid cluster number) rather than a single
// sentinel comparison.
func (fsys *FS) IsEOF(val uint32) bool {
	return val >= fsys.n_fatent
}

// AllocCluster allocates a single free cluster, extending the chain that
// currently ends at prev (0 to start a brand new chain). It returns the new
// cluster number, or an error if the volume is full or a disk error occurs.
func (fsys *FS) AllocCluster(prev uint32) (uint32, error) {
	var obj objid
	obj.fs = fsys
	ncl := obj.create_chain(prev)
	switch ncl {
	case 0:
		return 0, frDenied // No free cluster; closest sentinel in this engine's vocabulary.
	case 1:
		return 0, frIntErr
	case maxu32:
		return 0, frDiskErr
	}
	return ncl, nil
}

// FreeChain releases every cluster in the chain starting at clst. pclst, if
// nonzero, is the cluster immediately before clst in some other chain; it
// is marked end-of-chain rather than freed, truncating that chain at
// clst's former position instead of deleting it entirely.
func (fsys *FS) FreeChain(clst, pclst uint32) error {
	var obj objid
	obj.fs = fsys
	fr := obj.remove_chain(clst, pclst)
	if fr != frOK {
		return fr
	}
	return nil
}

// ZeroCluster writes zero-filled sectors over an entire cluster. Used by
// callers (e.g. directory creation) that need newly allocated storage to
// read back as zero rather than whatever the medium previously held.
// Zeroing goes through the buffer cache like any other metadata write, so
// a zeroed directory cluster sees the same caching/eviction behavior as
// the directory blocks already resident in it.
func (fsys *FS) ZeroCluster(clst uint32) error {
	fsys.trace("fs:ZeroCluster", slog.Uint64("clst", uint64(clst)))
	sect := fsys.clst2sect(clst)
	zero := make([]byte, fsys.ssize)
	for i := 0; i < int(fsys.csize); i++ {
		dr := fsys.disk_write(zero, sect+lba(i), 1)
		if dr != drOK {
			return frDiskErr
		}
	}
	return nil
}

// RelocClus positions e's cluster cursor (curClus, clusCnt) so that
// curClus is the cluster covering byte offset off into e's data. It walks
// forward cluster-by-cluster from wherever the cursor currently sits,
// restarting from firstClus only when off lies behind it, so advancing
// sequentially through a large file never re-walks the chain from the
// start on every step. When alloc is true and off runs past the existing
// chain's end, a new cluster is allocated and appended at the current
// end-of-chain marker. ERead and EWrite call this before touching every
// sector they read or write. The caller must hold e's lock.
func (fsys *FS) RelocClus(e *Dirent, off int64, alloc bool) fileResult {
	bytesPerClus := int64(fsys.csize) * int64(fsys.ssize)
	if bytesPerClus <= 0 {
		return frIntErr
	}
	wantIdx := uint32(off / bytesPerClus)

	if e.firstClus == 0 {
		if !alloc {
			return frNoFile
		}
		nc, err := fsys.AllocCluster(0)
		if err != nil {
			return err.(fileResult)
		}
		e.firstClus = nc
		e.curClus = nc
		e.clusCnt = 0
	}

	if wantIdx < e.clusCnt {
		e.curClus = e.firstClus
		e.clusCnt = 0
	}

	var obj objid
	obj.fs = fsys
	for e.clusCnt < wantIdx {
		nxt := obj.clusterstat(e.curClus)
		switch {
		case nxt == 1:
			return frIntErr
		case nxt == maxu32:
			return frDiskErr
		case fsys.IsEOF(nxt):
			if !alloc {
				return frNoFile
			}
			appended, err := fsys.AllocCluster(e.curClus)
			if err != nil {
				return err.(fileResult)
			}
			nxt = appended
		}
		e.curClus = nxt
		e.clusCnt++
	}
	return frOK
}
