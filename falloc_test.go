package fat

import "testing"

func TestAllocAndFreeChain(t *testing.T) {
	fs, _ := initTestFAT()

	c1, err := fs.AllocCluster(0)
	if err != nil {
		t.Fatal(err)
	}
	if c1 < 2 {
		t.Fatalf("got cluster %d, want >= 2", c1)
	}
	val, err := fs.ReadFATEntry(c1)
	if err != nil {
		t.Fatal(err)
	}
	if !fs.IsEOF(val) {
		t.Fatalf("freshly allocated cluster should be EOC, got %#x", val)
	}

	c2, err := fs.AllocCluster(c1)
	if err != nil {
		t.Fatal(err)
	}
	val, err = fs.ReadFATEntry(c1)
	if err != nil {
		t.Fatal(err)
	}
	if val != c2 {
		t.Fatalf("expected c1 to chain to c2 (%d), got %#x", c2, val)
	}

	if err := fs.FreeChain(c1, 0); err != nil {
		t.Fatal(err)
	}
	val, err = fs.ReadFATEntry(c1)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0 {
		t.Fatalf("freed cluster should read back as 0, got %#x", val)
	}
}

func TestZeroCluster(t *testing.T) {
	fs, _ := initTestFAT()
	c1, err := fs.AllocCluster(0)
	if err != nil {
		t.Fatal(err)
	}
	sect := fs.clst2sect(c1)
	if dr := fs.disk_write(make([]byte, fs.ssize), sect, 1); dr != drOK {
		t.Fatalf("setup write failed: %v", dr)
	}
	var junk [512]byte
	for i := range junk {
		junk[i] = 0xFF
	}
	if dr := fs.disk_write(junk[:fs.ssize], sect+1, 1); dr != drOK {
		t.Fatalf("setup write failed: %v", dr)
	}

	if err := fs.ZeroCluster(c1); err != nil {
		t.Fatal(err)
	}
	var buf [512]byte
	if dr := fs.disk_read(buf[:fs.ssize], sect+1, 1); dr != drOK {
		t.Fatalf("readback failed: %v", dr)
	}
	for _, b := range buf[:fs.ssize] {
		if b != 0 {
			t.Fatalf("expected zeroed cluster, found byte %#x", b)
		}
	}
}

func TestRelocClusWalksForwardAndAllocates(t *testing.T) {
	fs, _ := initTestFAT()
	bytesPerClus := int64(fs.csize) * int64(fs.ssize)

	e := &Dirent{fs: fs}
	if fr := fs.RelocClus(e, 0, true); fr != frOK {
		t.Fatalf("allocating first cluster: %v", fr)
	}
	first := e.curClus
	if first < 2 {
		t.Fatalf("got cluster %d, want >= 2", first)
	}

	// Same cluster index: cursor should not move.
	if fr := fs.RelocClus(e, bytesPerClus-1, true); fr != frOK {
		t.Fatal(fr)
	}
	if e.curClus != first {
		t.Fatalf("expected cursor to stay on first cluster, got %d", e.curClus)
	}

	// Next cluster index: should splice a new cluster onto the chain.
	if fr := fs.RelocClus(e, bytesPerClus, true); fr != frOK {
		t.Fatal(fr)
	}
	if e.curClus == first {
		t.Fatal("expected cursor to advance to a newly allocated cluster")
	}
	val, err := fs.ReadFATEntry(first)
	if err != nil {
		t.Fatal(err)
	}
	if val != e.curClus {
		t.Fatalf("expected first cluster to chain to %d, got %#x", e.curClus, val)
	}

	// Without alloc, walking past the chain's end must fail rather than
	// silently stopping short.
	if fr := fs.RelocClus(e, bytesPerClus*5, false); fr != frNoFile {
		t.Fatalf("got %v, want frNoFile", fr)
	}
}
