package fat

import "testing"

func TestChecksumMatchesTeacherAlgorithm(t *testing.T) {
	var sfn [11]byte
	copy(sfn[:], "README  TXT")
	got := Checksum(sfn)
	want := sum_sfn(sfn[:])
	if got != want {
		t.Fatalf("Checksum diverged from sum_sfn: got %#x want %#x", got, want)
	}
}

func TestEncodeDecodeLongNameRoundTrip(t *testing.T) {
	names := []string{
		"a_long_filename_over_13_chars.txt",
		"short.txt",
		"unicode-éè.txt",
	}
	for _, name := range names {
		enc, err := EncodeLongName(name)
		if err != nil {
			t.Fatalf("EncodeLongName(%q): %v", name, err)
		}
		got, err := DecodeLongName(enc)
		if err != nil {
			t.Fatalf("DecodeLongName(%q): %v", name, err)
		}
		if got != name {
			t.Fatalf("round trip mismatch: got %q want %q", got, name)
		}
	}
}

func TestEqualFoldLongName(t *testing.T) {
	if !EqualFoldLongName("café.txt", "CAFÉ.TXT") {
		t.Fatal("expected Unicode case folding to equate café.txt and CAFÉ.TXT")
	}
	if EqualFoldLongName("a.txt", "b.txt") {
		t.Fatal("expected distinct names to compare unequal")
	}
}

func TestSynthesizeDotEntries(t *testing.T) {
	buf := SynthesizeDotEntries(10, 3)
	if buf[0] != '.' || buf[1] != ' ' {
		t.Fatalf("expected \".\" entry, got %q", buf[:11])
	}
	if buf[dirAttrOff] != amDIR {
		t.Fatalf("expected \".\" entry to be a directory")
	}
	dotdot := buf[sizeDirEntry:]
	if dotdot[0] != '.' || dotdot[1] != '.' || dotdot[2] != ' ' {
		t.Fatalf("expected \"..\" entry, got %q", dotdot[:11])
	}
	if dotdot[dirAttrOff] != amDIR {
		t.Fatalf("expected \"..\" entry to be a directory")
	}
}
