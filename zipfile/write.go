package zipfile

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-students/goflate/internal/checksum"
	"github.com/go-students/goflate/internal/deflate"
)

// validatePath rejects archive names spec.md §9 flags as unsafe: absolute
// paths, drive letters, and parent-directory traversal.
func validatePath(name string) error {
	if name == "" {
		return ErrInvalidPath
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return ErrInvalidPath
	}
	if len(name) >= 2 && name[1] == ':' {
		return ErrInvalidPath
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// AddFile compresses src's entire content at the given level and appends it
// as a new archive member, per spec.md §4.5.3. src is read and compressed
// in memory before anything is written; the local header is then written
// once, with CRC32 and compressed size already filled in, followed by the
// body. No header field is rewritten afterwards.
func (a *Archive) AddFile(name string, src io.Reader, modTime time.Time, level int) error {
	if err := validatePath(name); err != nil {
		return err
	}
	if a.find(name) != nil {
		return ErrDuplicateEntry
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("zipfile: %w", err)
	}
	if int64(len(data)) > maxUint32 {
		return ErrFileTooLarge
	}

	date, timeField := packDOSTime(modTime)
	h := &FileHeader{
		Name:             name,
		DOSDate:          date,
		DOSTime:          timeField,
		Version:          versionNeeded,
		UncompressedSize: uint32(len(data)),
		ModTime:          modTime,
	}

	var body []byte
	if level == 0 {
		h.Method = methodStored
		body = data
	} else {
		var buf bytes.Buffer
		enc := deflate.NewEncoder(level)
		if err := enc.Compress(&buf, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("zipfile: %w", err)
		}
		// spec.md §4.5.3: mark method 0 whenever the encoder itself chose
		// stored, even though a level >= 1 was requested — and write the
		// entry's true raw bytes rather than the deflate-framed stored
		// block, so a method-0 reader's plain copy matches the CRC32.
		if enc.UsedStoredFallback() {
			h.Method = methodStored
			body = data
		} else {
			h.Method = methodDeflate
			body = buf.Bytes()
		}
	}
	h.CRC32 = checksum.CRC32(data)
	h.CompressedSize = uint32(len(body))
	if int64(len(body)) > maxUint32 {
		return ErrFileTooLarge
	}

	return a.writeEntry(h, body)
}

// AddDirectory records a directory path entry: a local header with no
// body and no extra field, per spec.md §4.5.3.
func (a *Archive) AddDirectory(name string, modTime time.Time) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	if err := validatePath(name); err != nil {
		return err
	}
	if a.find(name) != nil {
		return ErrDuplicateEntry
	}

	date, timeField := packDOSTime(modTime)
	h := &FileHeader{
		Name:    name,
		DOSDate: date,
		DOSTime: timeField,
		Version: versionNeeded,
		Method:  methodStored,
		IsPath:  true,
		ModTime: modTime,
	}
	return a.writeEntry(h, nil)
}

// writeEntry writes h's local header and body at the archive's current
// write cursor, then inserts h into the sorted in-memory directory.
func (a *Archive) writeEntry(h *FileHeader, body []byte) error {
	h.FileOffset = uint32(a.cursor)

	headerBytes, err := encodeLocalHeader(h)
	if err != nil {
		return err
	}
	if _, err := a.sink.Seek(a.cursor, 0); err != nil {
		return err
	}
	if _, err := a.sink.Write(headerBytes); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := a.sink.Write(body); err != nil {
			return err
		}
	}
	a.cursor += int64(len(headerBytes)) + int64(len(body))

	return a.insertSorted(h)
}
