package fat

import "testing"

func TestRemoveFile(t *testing.T) {
	fs, _ := initTestFAT()
	var fp File
	fr := fs.f_open(&fp, "deleteme.txt\x00", faCreateNew|faWrite)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if _, fr := fp.f_write([]byte("bye")); fr != frOK {
		t.Fatal(fr.Error())
	}
	if fr := fp.f_close(); fr != frOK {
		t.Fatal(fr.Error())
	}

	if err := fs.Remove("deleteme.txt"); err != nil {
		t.Fatal(err)
	}

	var fp2 File
	fr = fs.f_open(&fp2, "deleteme.txt\x00", faRead)
	if fr != frNoFile {
		t.Fatalf("expected frNoFile after removal, got %v", fr)
	}
}

func TestRemoveNonEmptyDirDenied(t *testing.T) {
	fs, _ := initTestFAT()
	fr := fs.f_mkdir("nonempty\x00")
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	var fp File
	fr = fs.f_open(&fp, "nonempty/child.txt\x00", faCreateNew|faWrite)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if fr := fp.f_close(); fr != frOK {
		t.Fatal(fr.Error())
	}

	if err := fs.Remove("nonempty"); err == nil {
		t.Fatal("expected Remove to fail on a non-empty directory")
	}
}

func TestRenameFile(t *testing.T) {
	fs, _ := initTestFAT()
	var fp File
	fr := fs.f_open(&fp, "before.txt\x00", faCreateNew|faWrite)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	const contents = "some bytes"
	if _, fr := fp.f_write([]byte(contents)); fr != frOK {
		t.Fatal(fr.Error())
	}
	if fr := fp.f_close(); fr != frOK {
		t.Fatal(fr.Error())
	}

	if err := fs.Rename("before.txt", "after.txt"); err != nil {
		t.Fatal(err)
	}

	var fp2 File
	fr = fs.f_open(&fp2, "before.txt\x00", faRead)
	if fr != frNoFile {
		t.Fatalf("expected old name to be gone, got %v", fr)
	}

	fr = fs.f_open(&fp2, "after.txt\x00", faRead)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	buf := make([]byte, len(contents))
	n, fr := fp2.f_read(buf)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if string(buf[:n]) != contents {
		t.Fatalf("got %q want %q", buf[:n], contents)
	}
}

func TestStat(t *testing.T) {
	fs, _ := initTestFAT()
	var fp File
	fr := fs.f_open(&fp, "statme.txt\x00", faCreateNew|faWrite)
	if fr != frOK {
		t.Fatal(fr.Error())
	}
	if _, fr := fp.f_write([]byte("12345")); fr != frOK {
		t.Fatal(fr.Error())
	}
	if fr := fp.f_close(); fr != frOK {
		t.Fatal(fr.Error())
	}

	fno, err := fs.Stat("statme.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fno.Size() != 5 {
		t.Fatalf("got size %d want 5", fno.Size())
	}
	if fno.IsDir() {
		t.Fatal("statme.txt should not report as a directory")
	}
}
