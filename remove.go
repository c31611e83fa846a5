package fat

// dirIsEmpty reports whether the directory starting at clst contains only
// "." / ".." and tombstoned entries.
func (fsys *FS) dirIsEmpty(clst uint32) (bool, fileResult) {
	var dj dir
	dj.obj.fs = fsys
	dj.obj.sclust = clst
	fr := dj.sdi(0)
	if fr != frOK {
		return false, fr
	}
	for {
		fr = fsys.move_window(dj.sect)
		if fr != frOK {
			return false, fr
		}
		c := dj.dir[dirNameOff]
		if c == 0 {
			return true, frOK
		}
		if c != mskDDEM && c != '.' {
			return false, frOK
		}
		fr = dj.next(false)
		if fr == frNoFile {
			return true, frOK
		}
		if fr != frOK {
			return false, fr
		}
	}
}
