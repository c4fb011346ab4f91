package zipfile

import (
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// scanWindow is how far back from the end of the file load scans for the
// end-of-central-directory signature: 22-byte fixed EOCD plus the maximum
// comment length the subset allows.
const scanWindow = 512

// load implements Open's half of spec.md §4.5.3: locate the EOCD record,
// validate it, parse every central directory entry into a FileHeader, and
// truncate the sink to the directory's start position so subsequent
// AddFile/AddDirectory calls append right where the old directory began.
func (a *Archive) load() error {
	size, err := a.sink.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	window := int64(scanWindow)
	if window > size {
		window = size
	}
	buf := make([]byte, window)
	if _, err := a.sink.ReadAt(buf, size-window); err != nil {
		return err
	}

	idx := -1
	for i := len(buf) - eocdLen; i >= 0; i-- {
		if buf[i] == 0x50 && buf[i+1] == 0x4B && buf[i+2] == 0x05 && buf[i+3] == 0x06 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoCentralDirectory
	}

	rb := readBuf(buf[idx:])
	rb.skip(4) // signature, already matched
	diskNum := rb.uint16()
	cdDisk := rb.uint16()
	diskEntries := rb.uint16()
	totalEntries := rb.uint16()
	dirSize := rb.uint32()
	dirOffset := rb.uint32()

	if diskNum != 0 || cdDisk != 0 {
		return ErrMultiDisk
	}
	if diskEntries != totalEntries {
		return ErrMultiDisk
	}
	if totalEntries > 0 && (dirSize == 0 || dirOffset == 0) {
		return ErrEmptyCentralDirectory
	}

	dirBuf := make([]byte, dirSize)
	if totalEntries > 0 {
		if _, err := a.sink.ReadAt(dirBuf, int64(dirOffset)); err != nil {
			return err
		}
	}

	db := readBuf(dirBuf)
	a.dir = make([]*FileHeader, 0, totalEntries)
	for i := uint16(0); i < totalEntries; i++ {
		h, err := decodeCentralDirEntry(&db)
		if err != nil {
			return err
		}
		a.dir = append(a.dir, h)
		key := xxhash.Sum64String(h.Name)
		a.names[key] = append(a.names[key], h)
	}
	// The on-disk central directory may be in physical-offset order (e.g.
	// after a compaction, spec.md §4.5.3) rather than canonical order;
	// restore the canonical order List()/insertSorted rely on.
	sort.Slice(a.dir, func(i, j int) bool { return entryLess(a.dir[i], a.dir[j]) })

	a.cursor = int64(dirOffset)
	if err := a.sink.Truncate(a.cursor); err != nil {
		return err
	}
	return nil
}

// decodeCentralDirEntry parses one 46-byte-fixed central directory record
// plus its variable-length name and extra field, per spec.md §4.5.1's
// central directory entry layout.
func decodeCentralDirEntry(b *readBuf) (*FileHeader, error) {
	if len(*b) < centralDirLen {
		return nil, ErrNoCentralDirectory
	}
	if (*b)[0] != 0x50 || (*b)[1] != 0x4B || (*b)[2] != 0x01 || (*b)[3] != 0x02 {
		return nil, ErrSignatureMismatch
	}
	b.skip(4)

	h := &FileHeader{}
	b.skip(2) // version made by
	h.Version = b.uint16()
	h.BitFlags = b.uint16()
	h.Method = b.uint16()
	h.DOSTime = b.uint16()
	h.DOSDate = b.uint16()
	h.CRC32 = b.uint32()
	h.CompressedSize = b.uint32()
	h.UncompressedSize = b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	b.skip(2) // disk number start
	b.skip(2) // internal attributes
	h.Attributes = b.uint32()
	h.FileOffset = b.uint32()

	nameBytes := b.sub(nameLen)
	extra := b.sub(extraLen)
	b.sub(commentLen)

	name, err := decodeName(nameBytes)
	if err != nil {
		return nil, err
	}
	h.Name = name
	h.IsPath = len(name) > 0 && name[len(name)-1] == '/'

	if mtime, ok := decodeNTFSExtra(extra); ok {
		h.ModTime = mtime
	} else {
		h.ModTime = unpackDOSTime(h.DOSDate, h.DOSTime)
	}
	return h, nil
}

// encodeCentralDirEntry is the write-side counterpart of
// decodeCentralDirEntry.
func encodeCentralDirEntry(h *FileHeader) ([]byte, error) {
	nameBytes, err := encodeName(h.Name)
	if err != nil {
		return nil, err
	}
	var extra []byte
	if !h.IsPath {
		extra = encodeNTFSExtra(h.ModTime)
	}

	var w writeBuf
	w.u32(centralDirSig)
	w.u16(versionNeeded) // version made by
	w.u16(h.Version)
	w.u16(h.BitFlags)
	w.u16(h.Method)
	w.u16(h.DOSTime)
	w.u16(h.DOSDate)
	w.u32(h.CRC32)
	w.u32(h.CompressedSize)
	w.u32(h.UncompressedSize)
	w.u16(uint16(len(nameBytes)))
	w.u16(uint16(len(extra)))
	w.u16(0) // comment length
	w.u16(0) // disk number start
	w.u16(0) // internal file attributes
	w.u32(h.Attributes)
	w.u32(h.FileOffset)
	w.bytes(nameBytes)
	w.bytes(extra)
	return w.buf, nil
}

// encodeLocalHeader builds the 30-byte-fixed local file header plus name
// and extra field, per spec.md §4.5.1's local file header layout.
func encodeLocalHeader(h *FileHeader) ([]byte, error) {
	nameBytes, err := encodeName(h.Name)
	if err != nil {
		return nil, err
	}
	var extra []byte
	if !h.IsPath {
		extra = encodeNTFSExtra(h.ModTime)
	}

	var w writeBuf
	w.u32(localFileHeaderSig)
	w.u16(h.Version)
	w.u16(h.BitFlags)
	w.u16(h.Method)
	w.u16(h.DOSTime)
	w.u16(h.DOSDate)
	w.u32(h.CRC32)
	w.u32(h.CompressedSize)
	w.u32(h.UncompressedSize)
	w.u16(uint16(len(nameBytes)))
	w.u16(uint16(len(extra)))
	w.bytes(nameBytes)
	w.bytes(extra)
	return w.buf, nil
}

// encodeEOCD builds the fixed 22-byte end-of-central-directory record.
func encodeEOCD(count int, dirSize, dirOffset int64) []byte {
	var w writeBuf
	w.u32(endOfCentralDirSig)
	w.u16(0) // this disk number
	w.u16(0) // disk with central directory start
	w.u16(uint16(count))
	w.u16(uint16(count))
	w.u32(uint32(dirSize))
	w.u32(uint32(dirOffset))
	w.u16(0) // comment length
	return w.buf
}
