package zipfile

import (
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Archive is the in-memory state of a ZIP container session: the sink file
// handle, the ordered central directory, the write cursor for the next
// appended entry, and whether a deletion is pending compaction on Save —
// the Archive state described in spec.md §3.
type Archive struct {
	path       string
	sink       *os.File
	dir        []*FileHeader
	cursor     int64
	deleteMode bool

	// names buckets entries by the xxhash of their archive path, so
	// AddFile/AddDirectory's duplicate check (spec.md §4.5.3 "rejecting
	// duplicates") doesn't re-scan or re-compare every name in the
	// directory on each add.
	names map[uint64][]*FileHeader
}

// Create opens path for read+write, truncating any existing content, and
// returns an Archive with an empty central directory.
func Create(path string) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Archive{path: path, sink: f, names: make(map[uint64][]*FileHeader)}, nil
}

// Open locates the end-of-central-directory record of an existing archive,
// parses the central directory, and truncates the sink to the directory's
// start position so newly appended entries overwrite the stale directory
// (spec.md §4.5.3's "defer directory rewrite").
func Open(path string) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	a := &Archive{path: path, sink: f, names: make(map[uint64][]*FileHeader)}
	if err := a.load(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// List returns the archive's current entries in canonical order (flat
// files before directory paths, lexicographic by name within each group).
func (a *Archive) List() []FileHeader {
	out := make([]FileHeader, 0, len(a.dir))
	for _, h := range a.dir {
		out = append(out, *h)
	}
	return out
}

// find returns the entry with the given name, or nil, via the xxhash
// bucket rather than a linear scan of the directory.
func (a *Archive) find(name string) *FileHeader {
	key := xxhash.Sum64String(name)
	for _, h := range a.names[key] {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// entryLess implements spec.md §3's FileHeader ordering: primary is_path
// (paths sort after flat files), secondary lexicographic name.
func entryLess(a, b *FileHeader) bool {
	if a.IsPath != b.IsPath {
		return !a.IsPath
	}
	return a.Name < b.Name
}

// insertSorted inserts h into a.dir at its sorted position and into the
// name-dedup bucket, rejecting duplicates by name.
func (a *Archive) insertSorted(h *FileHeader) error {
	if a.find(h.Name) != nil {
		return ErrDuplicateEntry
	}
	i := sort.Search(len(a.dir), func(i int) bool { return entryLess(h, a.dir[i]) })
	a.dir = append(a.dir, nil)
	copy(a.dir[i+1:], a.dir[i:])
	a.dir[i] = h

	key := xxhash.Sum64String(h.Name)
	a.names[key] = append(a.names[key], h)
	return nil
}

// Delete marks name removed from the central directory; its bytes are
// reclaimed by compaction on the next Save (spec.md §4.5.3).
func (a *Archive) Delete(name string) error {
	h := a.find(name)
	if h == nil {
		return ErrEntryNotFound
	}
	for i, d := range a.dir {
		if d == h {
			a.dir = append(a.dir[:i], a.dir[i+1:]...)
			break
		}
	}
	key := xxhash.Sum64String(name)
	bucket := a.names[key]
	for i, d := range bucket {
		if d == h {
			a.names[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	a.deleteMode = true
	return nil
}

// Save writes the (possibly compacted) central directory and
// end-of-central-directory record, per spec.md §4.5.3.
func (a *Archive) Save() error {
	if len(a.dir) == 0 {
		a.sink.Close()
		return os.Remove(a.path)
	}

	entries := a.dir
	if a.deleteMode {
		if err := a.compact(); err != nil {
			return err
		}
		// spec.md §4.5.3: after compaction the central directory is
		// written re-sorted by offset, matching the entries' new physical
		// layout, rather than a.dir's canonical name order.
		entries = make([]*FileHeader, len(a.dir))
		copy(entries, a.dir)
		sort.Slice(entries, func(i, j int) bool { return entries[i].FileOffset < entries[j].FileOffset })
	}

	if err := a.sink.Truncate(a.cursor); err != nil {
		return err
	}
	if _, err := a.sink.Seek(a.cursor, 0); err != nil {
		return err
	}

	dirStart := a.cursor
	for _, h := range entries {
		buf, err := encodeCentralDirEntry(h)
		if err != nil {
			return err
		}
		if _, err := a.sink.Write(buf); err != nil {
			return err
		}
		a.cursor += int64(len(buf))
	}
	dirSize := a.cursor - dirStart

	eocd := encodeEOCD(len(a.dir), dirSize, dirStart)
	if _, err := a.sink.Write(eocd); err != nil {
		return err
	}
	a.cursor += int64(len(eocd))

	if err := a.sink.Truncate(a.cursor); err != nil {
		return err
	}
	return nil
}

// Close releases the sink file handle without rewriting the directory;
// callers that mutated the archive must call Save first.
func (a *Archive) Close() error {
	return a.sink.Close()
}

// compact reclaims the bytes of deleted entries by copying every
// remaining entry's local header+body down to a contiguous run starting at
// offset 0, in file-offset order, via a 64 KiB bounce buffer (spec.md
// §4.5.3). Entries already at their target offset are skipped.
func (a *Archive) compact() error {
	// a.dir stays in canonical entryLess order throughout — only a local
	// copy is ordered by physical offset, so the copy loop below can rely
	// on dst < src while List()/insertSorted's invariant on a.dir itself is
	// left untouched.
	ordered := make([]*FileHeader, len(a.dir))
	copy(ordered, a.dir)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].FileOffset < ordered[j].FileOffset })

	bounce := make([]byte, bounceBufSize)
	var cursor int64
	for _, h := range ordered {
		nameBytes, err := encodeName(h.Name)
		if err != nil {
			return err
		}
		entrySize := int64(localFileHeaderLen) + int64(len(nameBytes)) + int64(h.extraLen()) + int64(h.CompressedSize)
		oldOffset := int64(h.FileOffset)

		if oldOffset != cursor {
			if err := copyRegion(a.sink, oldOffset, cursor, entrySize, bounce); err != nil {
				return err
			}
		}
		h.FileOffset = uint32(cursor)
		cursor += entrySize
	}

	a.cursor = cursor
	a.deleteMode = false
	return nil
}

// copyRegion copies n bytes from src to dst within f using buf as a
// scratch area, chunk by chunk. Since dst < src always during compaction,
// copying low-to-high is safe even though both regions live in the same
// file.
func copyRegion(f *os.File, src, dst, n int64, buf []byte) error {
	for n > 0 {
		chunk := int64(len(buf))
		if chunk > n {
			chunk = n
		}
		if _, err := f.ReadAt(buf[:chunk], src); err != nil {
			return err
		}
		if _, err := f.WriteAt(buf[:chunk], dst); err != nil {
			return err
		}
		src += chunk
		dst += chunk
		n -= chunk
	}
	return nil
}
