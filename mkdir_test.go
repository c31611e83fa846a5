package fat

import "testing"

func TestMkdirCreatesEmptyDirectory(t *testing.T) {
	fs, _ := initTestFAT()
	if err := fs.Mkdir("newdir"); err != nil {
		t.Fatal(err)
	}

	fno, err := fs.Stat("newdir")
	if err != nil {
		t.Fatal(err)
	}
	if !fno.IsDir() {
		t.Fatal("expected newdir to stat as a directory")
	}

	var dj dir
	dj.obj.fs = fs
	if fr := dj.follow_path("newdir\x00"); fr != frOK {
		t.Fatal(fr.Error())
	}
	empty, fr := fs.dirIsEmpty(fs.ld_clust(dj.dir))
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if !empty {
		t.Fatal("expected freshly created directory to be empty")
	}
}

func TestMkdirDuplicateFails(t *testing.T) {
	fs, _ := initTestFAT()
	if err := fs.Mkdir("dupdir"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Mkdir("dupdir"); err == nil {
		t.Fatal("expected creating the same directory twice to fail")
	}
}

func TestMkdirThenCreateChildFile(t *testing.T) {
	fs, _ := initTestFAT()
	if err := fs.Mkdir("parent"); err != nil {
		t.Fatal(err)
	}
	var fp File
	fr := fs.f_open(&fp, "parent/child.txt\x00", faCreateNew|faWrite)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if _, fr := fp.f_write([]byte("hi")); fr != frOK {
		t.Fatal(fr.Error())
	}
	if fr := fp.f_close(); fr != frOK {
		t.Fatal(fr.Error())
	}
}
