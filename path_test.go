package fat

import "testing"

func TestSkipElem(t *testing.T) {
	cases := []struct {
		path, elem, rest string
	}{
		{"/a/bb/c", "a", "/bb/c"},
		{"a/bb/c", "a", "/bb/c"},
		{"", "", ""},
		{"/", "", ""},
		{"solo", "solo", ""},
	}
	for _, c := range cases {
		elem, rest := skipElem(c.path)
		if elem != c.elem || rest != c.rest {
			t.Errorf("skipElem(%q) = (%q, %q), want (%q, %q)", c.path, elem, rest, c.elem, c.rest)
		}
	}
}

func TestLookupPathResolvesRootFile(t *testing.T) {
	fs, _ := initTestFAT()
	ec := NewEntryCache(fs, 8, nil)
	e, err := ec.LookupPath("/rootfile")
	if err != nil {
		t.Fatal(err)
	}
	defer ec.Put(e)
	if e.Name() != "rootfile" {
		t.Fatalf("got name %q want rootfile", e.Name())
	}
}

func TestLookupPathResolvesDotAndDotDot(t *testing.T) {
	fs, _ := initTestFAT()
	ec := NewEntryCache(fs, 8, nil)

	self, err := ec.LookupPath(".")
	if err != nil {
		t.Fatal(err)
	}
	if self != ec.root {
		t.Fatal("expected \".\" to resolve to the root directory")
	}
	ec.Put(self)

	up, err := ec.LookupPath("..")
	if err != nil {
		t.Fatal(err)
	}
	if up != ec.root {
		t.Fatal("expected \"..\" at the root to resolve to the root itself")
	}
	ec.Put(up)

	nested, err := ec.LookupPath("rootdir/../rootfile")
	if err != nil {
		t.Fatal(err)
	}
	defer ec.Put(nested)
	if nested.Name() != "rootfile" {
		t.Fatalf("got name %q want rootfile", nested.Name())
	}
}

func TestLookupPathRejectsMissingFile(t *testing.T) {
	fs, _ := initTestFAT()
	ec := NewEntryCache(fs, 8, nil)
	if _, err := ec.LookupPath("doesnotexist"); err != frNoFile {
		t.Fatalf("got err %v, want frNoFile", err)
	}
}

func TestLookupParentSplitsFinalComponent(t *testing.T) {
	fs, _ := initTestFAT()
	ec := NewEntryCache(fs, 8, nil)

	parent, name, err := ec.LookupParent("/rootfile")
	if err != nil {
		t.Fatal(err)
	}
	defer ec.Put(parent)
	if parent != ec.root || name != "rootfile" {
		t.Fatalf("got parent=%v name=%q, want root/rootfile", parent == ec.root, name)
	}
}
