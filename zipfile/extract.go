package zipfile

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-students/goflate/internal/checksum"
	"github.com/go-students/goflate/internal/inflate"
)

// Extract streams the named member's decompressed content to dst,
// validating the local header signature and the CRC32 recorded in the
// central directory (spec.md §4.5.3). It returns the member's recorded
// modification time so a caller restoring to a real filesystem can set it.
func (a *Archive) Extract(name string, dst io.Writer) (ExtractResult, error) {
	h := a.find(name)
	if h == nil {
		return ExtractResult{}, ErrEntryNotFound
	}

	var sig [4]byte
	if _, err := a.sink.ReadAt(sig[:], int64(h.FileOffset)); err != nil {
		return ExtractResult{}, fmt.Errorf("zipfile: %w", err)
	}
	if sig[0] != 0x50 || sig[1] != 0x4B || sig[2] != 0x03 || sig[3] != 0x04 {
		return ExtractResult{}, ErrSignatureMismatch
	}

	nameBytes, err := encodeName(h.Name)
	if err != nil {
		return ExtractResult{}, err
	}
	bodyOffset := int64(h.FileOffset) + int64(localFileHeaderLen) + int64(len(nameBytes)) + int64(h.extraLen())

	body := make([]byte, h.CompressedSize)
	if len(body) > 0 {
		if _, err := a.sink.ReadAt(body, bodyOffset); err != nil {
			return ExtractResult{}, fmt.Errorf("zipfile: %w", err)
		}
	}

	var crcTrack crcTrackingWriter
	crcTrack.dst = dst

	switch h.Method {
	case methodStored:
		if _, err := crcTrack.Write(body); err != nil {
			return ExtractResult{}, fmt.Errorf("zipfile: %w", err)
		}
	case methodDeflate:
		dec := inflate.NewDecompressor(bytes.NewReader(body), &crcTrack)
		if err := dec.Decompress(); err != nil {
			return ExtractResult{}, fmt.Errorf("zipfile: %w", err)
		}
	default:
		return ExtractResult{}, fmt.Errorf("zipfile: unsupported compression method %d", h.Method)
	}

	if crcTrack.crc != h.CRC32 {
		return ExtractResult{}, ErrCrcMismatch
	}

	return ExtractResult{ModTime: h.ModTime, IsPath: h.IsPath}, nil
}

// ExtractResult is Extract's return value: the timestamp a caller should
// restore on the extracted file, and whether the entry was a directory
// path with no body.
type ExtractResult struct {
	ModTime time.Time
	IsPath  bool
}

// crcTrackingWriter forwards to dst while accumulating the CRC32 of
// everything written, the same pattern zlib's adlerTrackingWriter uses on
// decode.
type crcTrackingWriter struct {
	dst io.Writer
	crc uint32
}

func (c *crcTrackingWriter) Write(p []byte) (int, error) {
	c.crc = checksum.UpdateCRC32(c.crc, p)
	return c.dst.Write(p)
}
