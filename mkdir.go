package fat

import "encoding/binary"

// f_mkdir creates a new, empty directory at path: it registers the entry
// in the parent directory, allocates the new directory's first cluster,
// zeroes it, and seeds it with the synthetic "." and ".." records every
// directory other than the root starts with.
func (fsys *FS) f_mkdir(path string) fileResult {
	path += "\x00"
	if fsys.perm&faWrite == 0 {
		return frDenied
	}
	var dj dir
	dj.obj.fs = fsys
	fr := dj.follow_path(path)
	if fr == frOK {
		return frExist
	}
	if fr != frNoFile {
		return fr
	}
	if dj.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName
	}
	_, _, fr = fsys.createDirEntry(&dj, amDIR, dj.obj.sclust)
	return fr
}

// createDirEntry registers dj.fn (already populated by a prior
// create_name/follow_path call) as a new directory entry under the
// directory whose cluster is parentClus. When attr carries amDIR it also
// allocates and zeroes a first cluster and seeds it with the "."/".."
// pair, so f_mkdir and the entry cache's Alloc share one on-disk creation
// path instead of diverging. Returns the new entry's first cluster (0 for
// a plain file) and the byte offset of its short-name record within the
// parent directory, the two fields a freshly created Dirent needs without
// re-walking the directory it was just written into.
func (fsys *FS) createDirEntry(dj *dir, attr byte, parentClus uint32) (newClus, off uint32, fr fileResult) {
	if attr&amDIR != 0 {
		var obj objid
		obj.fs = fsys
		dcl := obj.create_chain(0)
		switch dcl {
		case 0:
			return 0, 0, frDenied
		case 1:
			return 0, 0, frIntErr
		case maxu32:
			return 0, 0, frDiskErr
		}
		newClus = dcl
		if err := fsys.ZeroCluster(newClus); err != nil {
			return 0, 0, frDiskErr
		}
		dots := SynthesizeDotEntries(newClus, parentClus)
		sect := fsys.clst2sect(newClus)
		if fr = fsys.move_window(sect); fr != frOK {
			return 0, 0, fr
		}
		copy(fsys.win[:64], dots[:])
		fsys.wflag = 1
	}

	fr = dj.register()
	if fr != frOK {
		if newClus != 0 {
			var obj objid
			obj.fs = fsys
			obj.remove_chain(newClus, 0)
		}
		return 0, 0, fr
	}
	fr = fsys.move_window(dj.sect)
	if fr != frOK {
		return 0, 0, fr
	}
	tm := fsys.time()
	binary.LittleEndian.PutUint32(dj.dir[dirCrtTimeOff:], tm)
	binary.LittleEndian.PutUint32(dj.dir[dirModTimeOff:], tm)
	dj.dir[dirAttrOff] = attr
	binary.LittleEndian.PutUint16(dj.dir[dirFstClusLOOff:], uint16(newClus))
	binary.LittleEndian.PutUint16(dj.dir[dirFstClusHIOff:], uint16(newClus>>16))
	binary.LittleEndian.PutUint32(dj.dir[dirFileSizeOff:], 0)
	fsys.wflag = 1
	return newClus, dj.dptr, frOK
}

// Mkdir creates a new, empty directory named name, going through the
// entry cache so the new Dirent is immediately poolable by anyone walking
// the same path afterward.
func (fsys *FS) Mkdir(name string) error {
	e, err := fsys.Create(name, amDIR)
	if err != nil {
		return err
	}
	fsys.Entries().Put(e)
	return nil
}
