// Package zlib implements the RFC 1950 stream wrapper around the DEFLATE
// codec: a 2-byte header identifying the compression method and window
// size, the DEFLATE body, and a 4-byte big-endian Adler32 trailer.
//
// Grounded on the teacher's flate/gzip.go, which wraps a pack.Encoder with
// a CRC32 + length trailer for gzip; the same delegation shape is used
// here with RFC 1950's header and Adler32 trailer instead.
package zlib

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-students/goflate/internal/checksum"
	"github.com/go-students/goflate/internal/deflate"
	"github.com/go-students/goflate/internal/inflate"
)

var (
	ErrHeader        = errors.New("zlib: invalid header")
	ErrAdlerMismatch = errors.New("zlib: adler32 checksum mismatch")
)

const (
	cmfDeflate = 0x78 // CM=8 (deflate), CINFO=7 (32 KiB window)
	cmfStored  = 0x70 // CM=0, CINFO=7; written for level 0, whose body is stored blocks

	levelBitsFastest = 0 << 6
	levelBitsFast    = 1 << 6
	levelBitsDefault = 2 << 6
	levelBitsBest    = 3 << 6
)

// Compress writes a complete zlib stream (header + DEFLATE body + Adler32
// trailer) to w, reading all of src at the given compression level (0-9).
func Compress(w io.Writer, src io.Reader, level int) error {
	var buf io.Reader
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("zlib: %w", err)
	}
	buf = newByteReader(data)

	header := makeHeader(level)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("zlib: %w", err)
	}

	enc := deflate.NewEncoder(level)
	if err := enc.Compress(w, buf); err != nil {
		return fmt.Errorf("zlib: %w", err)
	}

	adler := checksum.Adler32(data)
	trailer := []byte{byte(adler >> 24), byte(adler >> 16), byte(adler >> 8), byte(adler)}
	if _, err := w.Write(trailer); err != nil {
		return fmt.Errorf("zlib: %w", err)
	}
	return nil
}

func makeHeader(level int) []byte {
	cmf := byte(cmfDeflate)
	if level == 0 {
		cmf = cmfStored
	}
	var flg byte
	switch {
	case level == 0 || level == 1:
		flg = levelBitsFastest
	case level >= 2 && level <= 5:
		flg = levelBitsFast
	case level == 6:
		flg = levelBitsDefault
	default:
		flg = levelBitsBest
	}
	rem := (int(cmf)*256 + int(flg)) % 31
	if rem != 0 {
		flg += byte(31 - rem)
	}
	return []byte{cmf, flg}
}

// Decompress reads a complete zlib stream from r, writes the decompressed
// bytes to w, and validates the trailing Adler32 checksum.
func Decompress(w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)

	var hdr [2]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return fmt.Errorf("zlib: %w", err)
	}
	if (int(hdr[0])*256+int(hdr[1]))%31 != 0 {
		return ErrHeader
	}
	if hdr[0] != cmfDeflate && hdr[0] != cmfStored {
		return ErrHeader
	}

	out := adlerTrackingWriter{dst: w, adler: 1, inited: true}

	// The bit reader buffers ahead of the DEFLATE body, so the rest of the
	// stream is read up front and the trailer is taken from its last 4 bytes.
	rest, err := io.ReadAll(br)
	if err != nil {
		return fmt.Errorf("zlib: %w", err)
	}
	if len(rest) < 4 {
		return fmt.Errorf("zlib: %w", io.ErrUnexpectedEOF)
	}
	trailer := rest[len(rest)-4:]

	dec := inflate.NewDecompressor(bytes.NewReader(rest[:len(rest)-4]), &out)
	if err := dec.Decompress(); err != nil {
		return fmt.Errorf("zlib: %w", err)
	}

	want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
	if out.adler != want {
		return ErrAdlerMismatch
	}
	return nil
}

// adlerTrackingWriter forwards to dst while accumulating the RFC 1950
// Adler32 checksum of everything written, mirroring the teacher's
// CRC-accumulating gzip encoder but on the decode side.
type adlerTrackingWriter struct {
	dst    io.Writer
	adler  uint32
	inited bool
}

func (a *adlerTrackingWriter) Write(p []byte) (int, error) {
	if !a.inited {
		a.adler = 1
		a.inited = true
	}
	a.adler = checksum.UpdateAdler32(a.adler, p)
	return a.dst.Write(p)
}

// byteReader is a minimal io.Reader over an in-memory slice, used so the
// encoder can make two passes (checksum, then compress) over the same
// buffered input without re-reading src.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
