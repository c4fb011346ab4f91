package zipfile

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempArchivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "archive.zip")
}

func TestRoundTripCreateAddSaveOpenExtract(t *testing.T) {
	// spec.md §8 invariant 5: after create → add → save → open → extract,
	// every member round-trips byte-for-byte under its original name.
	path := tempArchivePath(t)
	rng := rand.New(rand.NewSource(3))

	files := map[string][]byte{
		"docs/readme.txt": []byte("hello, zip"),
		"data.bin":         randomBytes(rng, 5000),
		"empty.txt":        {},
	}
	now := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)

	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.AddDirectory("docs", now); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	for name, data := range files {
		if err := a.AddFile(name, bytes.NewReader(data), now, 6); err != nil {
			t.Fatalf("AddFile(%s): %v", name, err)
		}
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if got := len(reopened.List()); got != len(files)+1 {
		t.Fatalf("List has %d entries, want %d", got, len(files)+1)
	}

	for name, want := range files {
		var out bytes.Buffer
		if _, err := reopened.Extract(name, &out); err != nil {
			t.Fatalf("Extract(%s): %v", name, err)
		}
		if !bytes.Equal(out.Bytes(), want) {
			t.Fatalf("Extract(%s) mismatch: got %d bytes, want %d", name, out.Len(), len(want))
		}
	}
}

func TestEmptyFileRoundTrip(t *testing.T) {
	// spec.md §8 S1: an empty-file member round-trips to an empty body.
	path := tempArchivePath(t)
	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.AddFile("empty.txt", bytes.NewReader(nil), time.Now(), 6); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	list := reopened.List()
	if len(list) != 1 {
		t.Fatalf("List has %d entries, want 1", len(list))
	}
	if list[0].UncompressedSize != 0 {
		t.Fatalf("UncompressedSize = %d, want 0", list[0].UncompressedSize)
	}

	var out bytes.Buffer
	if _, err := reopened.Extract("empty.txt", &out); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("Extract produced %d bytes, want 0", out.Len())
	}
}

func TestNTFSTimeRoundTrip(t *testing.T) {
	// spec.md §8 S5: sub-second modification time round-trips exactly via
	// the NTFS extra field; the DOS date/time fields separately encode the
	// same instant rounded down to an even second.
	path := tempArchivePath(t)
	mtime := time.Date(2020, time.June, 15, 13, 45, 22, 500_000_000, time.UTC)

	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.AddFile("stamped.txt", bytes.NewReader([]byte("x")), mtime, 6); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	list := reopened.List()
	if len(list) != 1 {
		t.Fatalf("List has %d entries, want 1", len(list))
	}
	h := list[0]
	if !h.ModTime.Equal(mtime) {
		t.Fatalf("ModTime = %v, want %v", h.ModTime, mtime)
	}

	wantDOSTime := uint16(13<<11 | 45<<5 | 22/2)
	if h.DOSTime != wantDOSTime {
		t.Fatalf("DOSTime = %016b, want %016b", h.DOSTime, wantDOSTime)
	}

	var out bytes.Buffer
	result, err := reopened.Extract("stamped.txt", &out)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !result.ModTime.Equal(mtime) {
		t.Fatalf("Extract ModTime = %v, want %v", result.ModTime, mtime)
	}
}

func TestDeleteCompact(t *testing.T) {
	// spec.md §8 S6: deleting a middle entry and saving reclaims its bytes
	// and leaves the remaining entries extractable at their new offsets.
	path := tempArchivePath(t)
	rng := rand.New(rand.NewSource(4))

	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fileA := randomBytes(rng, 100)
	fileB := randomBytes(rng, 200)
	fileC := randomBytes(rng, 300)
	now := time.Now()
	for name, data := range map[string][]byte{"a.bin": fileA, "b.bin": fileB, "c.bin": fileC} {
		if err := a.AddFile(name, bytes.NewReader(data), now, 0); err != nil {
			t.Fatalf("AddFile(%s): %v", name, err)
		}
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	a, err = Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Delete("b.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if after.Size() >= before.Size() {
		t.Fatalf("size after delete (%d) >= size before (%d)", after.Size(), before.Size())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	list := reopened.List()
	if len(list) != 2 {
		t.Fatalf("List has %d entries, want 2", len(list))
	}
	for _, h := range list {
		if h.Name == "b.bin" {
			t.Fatalf("deleted entry b.bin still present")
		}
	}

	var outA, outC bytes.Buffer
	if _, err := reopened.Extract("a.bin", &outA); err != nil {
		t.Fatalf("Extract(a.bin): %v", err)
	}
	if !bytes.Equal(outA.Bytes(), fileA) {
		t.Fatal("a.bin mismatch after compaction")
	}
	if _, err := reopened.Extract("c.bin", &outC); err != nil {
		t.Fatalf("Extract(c.bin): %v", err)
	}
	if !bytes.Equal(outC.Bytes(), fileC) {
		t.Fatal("c.bin mismatch after compaction")
	}
}

func TestCompactWritesCentralDirectoryInOffsetOrder(t *testing.T) {
	// spec.md §4.5.3: after a delete-triggered compaction, the on-disk
	// central directory is re-sorted by offset rather than reverted to
	// canonical name order. Names are chosen so the two orders disagree.
	path := tempArchivePath(t)
	rng := rand.New(rand.NewSource(5))

	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now()
	for _, name := range []string{"zebra.bin", "apple.bin", "mango.bin"} {
		if err := a.AddFile(name, bytes.NewReader(randomBytes(rng, 50)), now, 0); err != nil {
			t.Fatalf("AddFile(%s): %v", name, err)
		}
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	a, err = Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Delete("apple.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	offsets := readCentralDirOffsetsRaw(t, path)
	if len(offsets) != 2 {
		t.Fatalf("raw central directory has %d entries, want 2", len(offsets))
	}
	// Zebra was added first, so it has the lowest offset but sorts last by
	// name; canonical name order and offset order disagree here: if Save
	// reverted to canonical order this would read [mango, zebra] (mango's
	// offset > zebra's), not ascending.
	for i := 1; i < len(offsets); i++ {
		if offsets[i-1] >= offsets[i] {
			t.Fatalf("raw central directory not in offset order: entry %d offset %d >= entry %d offset %d",
				i-1, offsets[i-1], i, offsets[i])
		}
	}
}

// readCentralDirOffsetsRaw reads path's end-of-central-directory record and
// decodes each central directory entry in on-disk order, returning their
// FileOffset fields without the canonical-order resort Open/load applies.
func readCentralDirOffsetsRaw(t *testing.T, path string) []uint32 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open: %v", err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	window := int64(scanWindow)
	if window > size {
		window = size
	}
	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, size-window); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	idx := -1
	for i := len(buf) - eocdLen; i >= 0; i-- {
		if buf[i] == 0x50 && buf[i+1] == 0x4B && buf[i+2] == 0x05 && buf[i+3] == 0x06 {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.Fatal("end of central directory not found")
	}
	rb := readBuf(buf[idx:])
	rb.skip(4 + 2 + 2 + 2)
	totalEntries := rb.uint16()
	dirSize := rb.uint32()
	dirOffset := rb.uint32()

	dirBuf := make([]byte, dirSize)
	if _, err := f.ReadAt(dirBuf, int64(dirOffset)); err != nil {
		t.Fatalf("ReadAt central directory: %v", err)
	}
	db := readBuf(dirBuf)
	offsets := make([]uint32, 0, totalEntries)
	for i := uint16(0); i < totalEntries; i++ {
		h, err := decodeCentralDirEntry(&db)
		if err != nil {
			t.Fatalf("decodeCentralDirEntry: %v", err)
		}
		offsets = append(offsets, h.FileOffset)
	}
	return offsets
}

func TestShortInputAtNonZeroLevelStoresRawMethod(t *testing.T) {
	// spec.md §4.5.3: the encoder's own <8-byte stored fallback (spec.md
	// §4.4) must still be reflected as compression method 0, even though
	// the caller asked for level 6.
	path := tempArchivePath(t)
	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()

	data := []byte{0x41, 0x42, 0x43}
	if err := a.AddFile("short.bin", bytes.NewReader(data), time.Now(), 6); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	h := a.find("short.bin")
	if h == nil {
		t.Fatal("entry not found after AddFile")
	}
	if h.Method != methodStored {
		t.Fatalf("Method = %d, want %d (stored)", h.Method, methodStored)
	}
	if h.CompressedSize != uint32(len(data)) {
		t.Fatalf("CompressedSize = %d, want %d", h.CompressedSize, len(data))
	}

	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	var out bytes.Buffer
	if _, err := reopened.Extract("short.bin", &out); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("Extract mismatch: got %x, want %x", out.Bytes(), data)
	}
}

func TestDuplicateEntryRejected(t *testing.T) {
	path := tempArchivePath(t)
	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()

	if err := a.AddFile("dup.txt", bytes.NewReader([]byte("one")), time.Now(), 6); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.AddFile("dup.txt", bytes.NewReader([]byte("two")), time.Now(), 6); err != ErrDuplicateEntry {
		t.Fatalf("AddFile duplicate = %v, want ErrDuplicateEntry", err)
	}
}

func TestInvalidPathRejected(t *testing.T) {
	path := tempArchivePath(t)
	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()

	bad := []string{"/abs/path", "C:\\windows", "../escape", "a/../b", ""}
	for _, name := range bad {
		if err := a.AddFile(name, bytes.NewReader([]byte("x")), time.Now(), 6); err != ErrInvalidPath {
			t.Fatalf("AddFile(%q) = %v, want ErrInvalidPath", name, err)
		}
	}
}

func TestExtractMissingEntry(t *testing.T) {
	path := tempArchivePath(t)
	a, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()

	if _, err := a.Extract("nope.txt", &bytes.Buffer{}); err != ErrEntryNotFound {
		t.Fatalf("Extract = %v, want ErrEntryNotFound", err)
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}
