// Package inflate implements the DEFLATE decoder of spec.md §4.3: block-type
// dispatch, literal/length/distance decoding, and LZ77 window copy,
// including the self-overlapping copy case.
//
// Grounded on elliotnunn-BeHierarchic/internal/flate/inflate.go (a vendored
// compress/flate decompressor) for the block-loop shape, and on
// kubernetes-kubernetes__huffman_bit_writer.go for the literal/length and
// distance base/extra-bit tables (mirrored in internal/huffman.tables.go).
package inflate

import (
	"errors"
	"io"

	"github.com/go-students/goflate/internal/bitio"
	"github.com/go-students/goflate/internal/huffman"
)

var (
	ErrUnknownBlockType  = errors.New("inflate: unknown block type")
	ErrStoredLenMismatch = errors.New("inflate: stored block length mismatch")
	ErrMalformedTree     = errors.New("inflate: malformed huffman tree")
	ErrDecodeTree        = errors.New("inflate: could not decode huffman tree")
)

const (
	windowSize = 32768
	// flushTrigger is the output-buffer size past which a flush to the
	// sink occurs (spec.md §4.3 "Output flush").
	flushTrigger = 1 << 20
)

// Decompressor holds the state needed to decode one DEFLATE stream: the bit
// reader and a sliding output window retaining the last windowSize bytes
// for back-references.
type Decompressor struct {
	r *bitio.Reader
	w io.Writer

	out []byte // accumulated output since the last flush; retains tail

	fixedLitLen *huffman.DecodeTable
	fixedDist   *huffman.DecodeTable
}

func NewDecompressor(r io.Reader, w io.Writer) *Decompressor {
	return &Decompressor{
		r:   bitio.NewReader(r),
		w:   w,
		out: make([]byte, 0, flushTrigger+windowSize),
	}
}

// Reset rebinds d to fresh source/sink, for reuse across calls.
func (d *Decompressor) Reset(r io.Reader, w io.Writer) {
	d.r.Reset(r)
	d.w = w
	d.out = d.out[:0]
}

func (d *Decompressor) fixedTrees() (*huffman.DecodeTable, *huffman.DecodeTable, error) {
	if d.fixedLitLen == nil {
		lt, err := huffman.BuildDecodeTable(huffman.FixedLitLenLengths())
		if err != nil {
			return nil, nil, err
		}
		dt, err := huffman.BuildDecodeTable(huffman.FixedDistLengths())
		if err != nil {
			return nil, nil, err
		}
		d.fixedLitLen, d.fixedDist = lt, dt
	}
	return d.fixedLitLen, d.fixedDist, nil
}

// Decompress consumes a full DEFLATE stream (one or more blocks, terminated
// by BFINAL=1) from the source, writing decompressed bytes to the sink.
func (d *Decompressor) Decompress() error {
	for {
		final, err := d.r.GetBits(1)
		if err != nil {
			return err
		}
		btype, err := d.r.GetBits(2)
		if err != nil {
			return err
		}

		switch btype {
		case 0:
			if err := d.stored(); err != nil {
				return err
			}
		case 1:
			litLen, dist, err := d.fixedTrees()
			if err != nil {
				return err
			}
			if err := d.symbols(litLen, dist); err != nil {
				return err
			}
		case 2:
			litLen, dist, err := d.dynamicTrees()
			if err != nil {
				return err
			}
			if err := d.symbols(litLen, dist); err != nil {
				return err
			}
		default:
			return ErrUnknownBlockType
		}

		if final == 1 {
			break
		}
	}
	return d.flush(true)
}

func (d *Decompressor) stored() error {
	d.r.AlignToByte()
	length, err := d.r.Get16Bits()
	if err != nil {
		return err
	}
	notLength, err := d.r.Get16Bits()
	if err != nil {
		return err
	}
	if length != ^notLength {
		return ErrStoredLenMismatch
	}
	buf := make([]byte, length)
	if err := d.r.ReadBytes(buf); err != nil {
		return err
	}
	d.out = append(d.out, buf...)
	return d.flush(false)
}

func (d *Decompressor) dynamicTrees() (*huffman.DecodeTable, *huffman.DecodeTable, error) {
	hlitBits, err := d.r.GetBits(5)
	if err != nil {
		return nil, nil, err
	}
	hdistBits, err := d.r.GetBits(5)
	if err != nil {
		return nil, nil, err
	}
	hclenBits, err := d.r.GetBits(4)
	if err != nil {
		return nil, nil, err
	}
	hlit := int(hlitBits) + 257
	hdist := int(hdistBits) + 1
	hclen := int(hclenBits) + 4

	var clLengths [huffman.MaxCodeLenCodes]uint8
	for i := 0; i < hclen; i++ {
		v, err := d.r.GetBits(3)
		if err != nil {
			return nil, nil, err
		}
		clLengths[huffman.CodeLengthOrder[i]] = uint8(v)
	}
	clTable, err := huffman.BuildDecodeTable(clLengths[:])
	if err != nil {
		return nil, nil, ErrMalformedTree
	}

	total := hlit + hdist
	lengths := make([]uint8, total)
	i := 0
	for i < total {
		sym, err := d.decodeSymbol(clTable)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case sym < 16:
			lengths[i] = uint8(sym)
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, ErrMalformedTree
			}
			n, err := d.r.GetBits(2)
			if err != nil {
				return nil, nil, err
			}
			prev := lengths[i-1]
			for c := 0; c < int(n)+3; c++ {
				if i >= total {
					return nil, nil, ErrMalformedTree
				}
				lengths[i] = prev
				i++
			}
		case sym == 17:
			n, err := d.r.GetBits(3)
			if err != nil {
				return nil, nil, err
			}
			for c := 0; c < int(n)+3; c++ {
				if i >= total {
					return nil, nil, ErrMalformedTree
				}
				lengths[i] = 0
				i++
			}
		case sym == 18:
			n, err := d.r.GetBits(7)
			if err != nil {
				return nil, nil, err
			}
			for c := 0; c < int(n)+11; c++ {
				if i >= total {
					return nil, nil, ErrMalformedTree
				}
				lengths[i] = 0
				i++
			}
		default:
			return nil, nil, ErrMalformedTree
		}
	}

	litLenTable, err := huffman.BuildDecodeTable(lengths[:hlit])
	if err != nil {
		return nil, nil, ErrMalformedTree
	}
	distTable, err := huffman.BuildDecodeTable(lengths[hlit:])
	if err != nil {
		return nil, nil, ErrMalformedTree
	}
	return litLenTable, distTable, nil
}

// decodeSymbol peeks 16 bits, decodes one Huffman symbol, and consumes
// exactly the bits it used.
func (d *Decompressor) decodeSymbol(t *huffman.DecodeTable) (int, error) {
	peek := d.r.PeekBits(16)
	sym, length, ok := t.Decode(peek)
	if !ok {
		return 0, ErrDecodeTree
	}
	if _, err := d.r.GetBits(uint(length)); err != nil {
		return 0, err
	}
	return sym, nil
}

func (d *Decompressor) symbols(litLen, dist *huffman.DecodeTable) error {
	for {
		sym, err := d.decodeSymbol(litLen)
		if err != nil {
			return err
		}
		if sym == huffman.EndOfBlock {
			return d.flush(false)
		}
		if sym < huffman.EndOfBlock {
			d.out = append(d.out, byte(sym))
			if len(d.out) >= flushTrigger {
				if err := d.flush(false); err != nil {
					return err
				}
			}
			continue
		}

		idx := sym - huffman.LengthCodeBase
		if idx < 0 || idx >= len(huffman.BaseLength) {
			return ErrDecodeTree
		}
		var extra uint32
		if n := huffman.ExtraLengthBits[idx]; n > 0 {
			if extra, err = d.r.GetBits(uint(n)); err != nil {
				return err
			}
		}
		matchLen := int(huffman.BaseLength[idx]) + int(extra)

		dsym, err := d.decodeSymbol(dist)
		if err != nil {
			return err
		}
		if dsym < 0 || dsym >= len(huffman.BaseDist) {
			return ErrDecodeTree
		}
		var dextra uint32
		if n := huffman.ExtraDistBits[dsym]; n > 0 {
			if dextra, err = d.r.GetBits(uint(n)); err != nil {
				return err
			}
		}
		distance := int(huffman.BaseDist[dsym]) + int(dextra)

		if err := d.copyMatch(matchLen, distance); err != nil {
			return err
		}
		if len(d.out) >= flushTrigger {
			if err := d.flush(false); err != nil {
				return err
			}
		}
	}
}

// copyMatch appends length bytes read from distance bytes before the
// current output end, handling the length > distance self-overlapping
// case byte-by-byte (spec.md §4.3).
func (d *Decompressor) copyMatch(length, distance int) error {
	if distance <= 0 || distance > len(d.out) {
		return ErrDecodeTree
	}
	start := len(d.out) - distance
	if distance >= length {
		d.out = append(d.out, d.out[start:start+length]...)
		return nil
	}
	for i := 0; i < length; i++ {
		d.out = append(d.out, d.out[start+i])
	}
	return nil
}

// flush drains the output buffer to the sink, retaining the tail
// (windowSize bytes, rounded down to a multiple of 8) for future
// back-references, per spec.md §3/§4.3. If final is true, everything is
// drained.
func (d *Decompressor) flush(final bool) error {
	if !final && len(d.out) < flushTrigger {
		return nil
	}
	if final {
		if len(d.out) == 0 {
			return nil
		}
		if _, err := d.w.Write(d.out); err != nil {
			return err
		}
		d.out = d.out[:0]
		return nil
	}

	retain := windowSize
	if retain > len(d.out) {
		retain = len(d.out)
	}
	retain = (retain / 8) * 8
	drainTo := len(d.out) - retain
	if drainTo <= 0 {
		return nil
	}
	if _, err := d.w.Write(d.out[:drainTo]); err != nil {
		return err
	}
	copy(d.out, d.out[drainTo:])
	d.out = d.out[:len(d.out)-drainTo]
	return nil
}
