package fat

import (
	"sync"
	"testing"
)

func TestEntryCacheLookupSharesDirent(t *testing.T) {
	fs, _ := initTestFAT()
	fs.entries = NewEntryCache(fs, 8, nil)

	e1, err := fs.Open("rootfile")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := fs.Open("rootfile")
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Fatal("expected Open on the same path to return the same pooled Dirent")
	}
	fs.Entries().Put(e1)
	fs.Entries().Put(e2)
}

func TestEntryCacheConcurrentLookupsShareDirent(t *testing.T) {
	fs, _ := initTestFAT()
	fs.entries = NewEntryCache(fs, 8, nil)

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Dirent, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := fs.Open("rootfile")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = e
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if results[i] == nil || results[i] != results[0] {
			t.Fatalf("expected all concurrent lookups to share one pooled Dirent")
		}
	}
	for _, e := range results {
		fs.Entries().Put(e)
	}
}

func TestEntryCacheRemoveTombstonesUntilLastPut(t *testing.T) {
	fs, _ := initTestFAT()
	fs.entries = NewEntryCache(fs, 8, nil)

	e, err := fs.Create("cached.txt", 0)
	if err != nil {
		t.Fatal(err)
	}
	// A second open of the same name shares the same Dirent.
	e2, err := fs.Open("cached.txt")
	if err != nil {
		t.Fatal(err)
	}
	if e != e2 {
		t.Fatal("expected Open to return the Dirent Create just populated")
	}
	fs.Entries().Put(e2)

	if err := fs.Entries().ERemove(e); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Open("cached.txt"); err != frNoFile {
		t.Fatalf("expected frNoFile for a removed entry, got %v", err)
	}
	// e is still referenced: the chain isn't freed until this last Put.
	fs.Entries().Put(e)
}

func TestEntryCacheDotAndDotDot(t *testing.T) {
	fs, _ := initTestFAT()
	fs.entries = NewEntryCache(fs, 8, nil)

	if err := fs.Mkdir("dir"); err != nil {
		t.Fatal(err)
	}
	d, err := fs.Open("dir")
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Entries().Put(d)

	self, err := fs.Entries().DirLookup(d, ".")
	if err != nil {
		t.Fatal(err)
	}
	if self != d {
		t.Fatal("expected \".\" to resolve to the same Dirent")
	}
	fs.Entries().Put(self)

	root, err := fs.Entries().DirLookup(d, "..")
	if err != nil {
		t.Fatal(err)
	}
	if root != fs.entries.root {
		t.Fatal("expected \"..\" from a root child to resolve to the root directory")
	}
	fs.Entries().Put(root)

	rootDotDot, err := fs.Entries().DirLookup(fs.entries.root, "..")
	if err != nil {
		t.Fatal(err)
	}
	if rootDotDot != fs.entries.root {
		t.Fatal("expected \"..\" at the root to resolve to the root itself")
	}
	fs.Entries().Put(rootDotDot)
}

func TestEntryCacheReadWriteRoundTrip(t *testing.T) {
	fs, _ := initTestFAT()
	fs.entries = NewEntryCache(fs, 8, nil)

	e, err := fs.Create("roundtrip.bin", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Entries().Put(e)

	want := make([]byte, int(fs.csize)*int(fs.ssize)+37) // spans more than one cluster
	for i := range want {
		want[i] = byte(i)
	}
	n, err := e.Write(want, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(want) {
		t.Fatalf("wrote %d bytes, want %d", n, len(want))
	}

	got := make([]byte, len(want))
	n, err = e.Read(got, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(want) {
		t.Fatalf("read %d bytes, want %d", n, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}
