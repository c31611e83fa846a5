package fat

import (
	"encoding/binary"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// longNameFold performs locale-aware case folding for long-name
// comparisons, the Unicode-correct counterpart to the teacher's ASCII-only
// upper/lower helpers used along the 8.3 short-name path.
var longNameFold = cases.Fold()

// EqualFoldLongName reports whether a and b are the same long file name
// under Unicode case folding, used wherever a lookup needs to treat
// "café.txt" and "CAFÉ.TXT" as the same entry without assuming the ASCII
// case rules the short-name path relies on.
func EqualFoldLongName(a, b string) bool {
	return longNameFold.String(a) == longNameFold.String(b)
}

// Checksum computes the 8.3 short-name checksum stored in every long-name
// entry belonging to a given short-name entry: a rotate-right-by-one
// accumulator over all 11 name bytes, matching sum_sfn.
func Checksum(sfn [11]byte) byte {
	return sum_sfn(sfn[:])
}

// longNameCodec converts between the UCS-2LE bytes a long-name entry run
// stores on disk and Go's native UTF-8 strings. It wires golang.org/x/text
// into the public, allocation-tolerant encode/decode path; the hot
// directory-scan loop (dir.find/dir.next) keeps using the teacher's own
// pick_lfn/cmp_lfn routines and fsys.lfnbuf directly, since it cannot
// afford an allocation per candidate entry.
var longNameCodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeLongName converts the concatenated UCS-2LE bytes of a long-name
// entry chain (13 code units per entry, NUL-padded on the final entry, as
// produced by longFilenameEntry.ReadData) into a UTF-8 string.
func DecodeLongName(ucs2le []byte) (string, error) {
	// Trim at the first NUL/0xFFFF terminator pair, matching how FAT
	// long-name entries pad their last record.
	n := len(ucs2le) &^ 1
	for i := 0; i+1 < n; i += 2 {
		if ucs2le[i] == 0 && ucs2le[i+1] == 0 {
			n = i
			break
		}
	}
	out, _, err := transform.Bytes(longNameCodec.NewDecoder(), ucs2le[:n])
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeLongName converts a UTF-8 filename into its on-disk UCS-2LE
// representation. The caller is responsible for splitting the result into
// 13-code-unit (26-byte) long-name entry records and padding the final one
// per the FAT long-name convention (a trailing 0x0000 then 0xFFFF fill).
func EncodeLongName(name string) ([]byte, error) {
	out, _, err := transform.Bytes(longNameCodec.NewEncoder(), []byte(name))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SynthesizeDotEntries builds the 64-byte "." / ".." directory-entry pair
// every non-root directory starts with: "." points at the directory's own
// first cluster, ".." at its parent's (0 for a parent that is the root).
func SynthesizeDotEntries(selfClus, parentClus uint32) [64]byte {
	var buf [64]byte
	dot := buf[0:sizeDirEntry]
	dotdot := buf[sizeDirEntry : 2*sizeDirEntry]

	dot[0] = '.'
	for i := 1; i < 11; i++ {
		dot[i] = ' '
	}
	dot[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint16(dot[dirFstClusLOOff:], uint16(selfClus))
	binary.LittleEndian.PutUint16(dot[dirFstClusHIOff:], uint16(selfClus>>16))

	dotdot[0], dotdot[1] = '.', '.'
	for i := 2; i < 11; i++ {
		dotdot[i] = ' '
	}
	dotdot[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint16(dotdot[dirFstClusLOOff:], uint16(parentClus))
	binary.LittleEndian.PutUint16(dotdot[dirFstClusHIOff:], uint16(parentClus>>16))

	return buf
}
