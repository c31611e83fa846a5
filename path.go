package fat

import "strings"

// skipElem returns the next slash-separated element of path along with
// the remainder of the path after it, skipping any leading slashes.
// skipElem("/a/bb/c") == ("a", "/bb/c"); skipElem("", ) == ("", "").
func skipElem(path string) (elem, rest string) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i:]
}

// LookupPath resolves path one component at a time, starting at ec's
// root, the namei equivalent: "." and ".." are not special-cased here,
// they flow into DirLookup like any other component and come back
// resolved as the current or parent directory. A non-directory partway
// through the path surfaces as frNoPath from the next DirLookup call
// rather than being silently treated as a leaf. The caller must Put the
// returned Dirent.
func (ec *EntryCache) LookupPath(path string) (*Dirent, error) {
	dir := ec.Root()
	elem, rest := skipElem(path)
	if elem == "" {
		return dir, nil
	}
	for {
		next, err := ec.DirLookup(dir, elem)
		ec.Put(dir)
		if err != nil {
			return nil, err
		}
		dir = next
		elem, rest = skipElem(rest)
		if elem == "" {
			return dir, nil
		}
	}
}

// LookupParent resolves every component of path except the last and
// returns the parent directory together with the final component's name
// (the nameiparent equivalent), the split Create and Move need to
// look up or register a child under a directory they hold open rather
// than one they have to re-resolve themselves.
func (ec *EntryCache) LookupParent(path string) (parent *Dirent, name string, err error) {
	dir := ec.Root()
	elem, rest := skipElem(path)
	if elem == "" {
		ec.Put(dir)
		return nil, "", frInvalidName
	}
	for {
		nextElem, nextRest := skipElem(rest)
		if nextElem == "" {
			return dir, elem, nil
		}
		next, lerr := ec.DirLookup(dir, elem)
		ec.Put(dir)
		if lerr != nil {
			return nil, "", lerr
		}
		dir = next
		elem, rest = nextElem, nextRest
	}
}
