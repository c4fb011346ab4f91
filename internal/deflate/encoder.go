// Package deflate implements the RFC 1951 DEFLATE compressor: hash-chained
// match finding over a scrolling window, a symbol block buffer, and
// stored/static/dynamic block emission chosen by bit-cost estimate.
//
// Grounded throughout on the teacher's flate package (andybalholm/pack):
// the MatchFinder/block-buffer split of flate/matchfinder.go and the
// fast-vs-lazy strategy split of lazy.go, adapted to spec.md §4.4's own
// level table, hash-chain matcher, and block-size estimator instead of the
// teacher's snappy-derived single-entry hash table.
package deflate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-students/goflate/internal/bitio"
)

// Encoder compresses a byte stream to DEFLATE blocks, selecting a match
// strategy by compression level (spec.md §4.4.2) and a block's wire shape
// by bit-cost estimate (spec.md §4.4.3).
type Encoder struct {
	level  int
	params levelParams

	finder *finder
	block  *block

	// raw mirrors the literal bytes represented by block's symbols, needed
	// to materialize a stored block without re-reading the source.
	raw bytes.Buffer

	// usedStored records whether the most recent Compress call fell back to
	// an all-stored bitstream (spec.md §4.4's <8-byte rule, or §4.4.3's
	// rewind on expansion) rather than the requested match-based strategy.
	usedStored bool
}

// UsedStoredFallback reports whether the most recent Compress call produced
// an all-stored bitstream instead of running the requested match strategy,
// so a caller that cares about the wire-level distinction (e.g. zipfile's
// compression-method field) can observe it even at a level above 0.
func (e *Encoder) UsedStoredFallback() bool { return e.usedStored }

// NewEncoder returns an Encoder at the given compression level, 0
// (uncompressed, stored blocks only) through 9 (maximum compression),
// following spec.md §4.4's level table.
func NewEncoder(level int) *Encoder {
	params := levelFor(level)
	return &Encoder{
		level:  level,
		params: params,
		finder: newFinder(params),
		block:  newBlock(),
	}
}

// Compress reads all of src and writes a complete DEFLATE stream (one or
// more blocks, the last with BFINAL set) to w.
func (e *Encoder) Compress(w io.Writer, src io.Reader) error {
	e.block.reset()
	e.raw.Reset()
	e.usedStored = false

	if e.params.strategy == StrategyStored {
		bw := bitio.NewWriter(w)
		if err := e.compressStored(bw, src); err != nil {
			return err
		}
		return bw.Close()
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("deflate: %w", err)
	}

	// spec.md §8 S1: an empty input is a single final block holding only
	// the end-of-block symbol. A stored block has no EOB symbol at all, so
	// this can't go through the stored-block branch below even though it's
	// also under the 8-byte threshold.
	if len(data) == 0 {
		bw := bitio.NewWriter(w)
		if err := e.block.writeBlock(bw, nil, true); err != nil {
			return err
		}
		return bw.Close()
	}

	// spec.md §4.4: inputs under 8 bytes always use a stored block,
	// regardless of level — too small to amortize even a static Huffman
	// header.
	if len(data) < 8 {
		e.usedStored = true
		bw := bitio.NewWriter(w)
		if err := e.compressStored(bw, bytes.NewReader(data)); err != nil {
			return err
		}
		return bw.Close()
	}

	var matched bytes.Buffer
	mbw := bitio.NewWriter(&matched)
	e.finder.bind(bytes.NewReader(data))
	if err := e.finder.fill(); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	if err := e.compressMatching(mbw); err != nil {
		return err
	}
	if err := mbw.Close(); err != nil {
		return err
	}

	// Rewind on expansion (spec.md §4.4.3): per-block stored/static/dynamic
	// estimation already guards each block individually, but a stream split
	// into many small blocks can still carry more 5-byte stored-block
	// headers than packing the whole input into maximal 65535-byte stored
	// blocks would. Whenever that happens, discard the matched stream and
	// fall back to a single stored stream instead.
	if matched.Len() > singleStoredStreamSize(len(data)) {
		e.usedStored = true
		e.block.reset()
		e.raw.Reset()
		bw := bitio.NewWriter(w)
		if err := e.compressStored(bw, bytes.NewReader(data)); err != nil {
			return err
		}
		return bw.Close()
	}

	_, err = w.Write(matched.Bytes())
	return err
}

// singleStoredStreamSize returns the exact size of n bytes packed into the
// fewest possible stored blocks (65535 bytes each, 5 bytes of header per
// block), the bound spec.md §8 invariant 2 is stated against.
func singleStoredStreamSize(n int) int {
	blocks := (n + 65534) / 65535
	if blocks == 0 {
		blocks = 1
	}
	return n + 5*blocks
}

// compressMatching runs the fast (greedy) or slow (one-position lazy
// lookahead) strategy over the finder's window, following spec.md §4.4.2.
func (e *Encoder) compressMatching(bw *bitio.Writer) error {
	havePending := false
	pendingLen, pendingDist := 0, 0

	for {
		if e.finder.lookahead() < minMatch && !e.finder.eof {
			if err := e.finder.fill(); err != nil {
				return fmt.Errorf("deflate: %w", err)
			}
		}
		if e.finder.lookahead() == 0 {
			break
		}

		var length, distance int
		var ok bool
		if e.params.strategy != StrategySlow || !havePending || pendingLen < e.params.maxLazy {
			length, distance, ok = e.finder.findMatch()
		}
		e.finder.insert()

		if e.params.strategy == StrategyFast {
			if ok && length >= minMatch {
				e.emitMatch(length, distance)
				e.advanceThroughMatch(length)
			} else {
				e.emitLiteral(e.finder.window[e.finder.readPos])
				e.finder.readPos++
			}
			if err := e.maybeFlush(bw); err != nil {
				return err
			}
			continue
		}

		// StrategySlow: defer the match found at this position by one
		// step, taking it only if the next position doesn't find a
		// strictly longer one (spec.md §4.4.2's lazy matching).
		if havePending {
			if ok && length > pendingLen {
				e.emitLiteral(e.finder.window[e.finder.readPos-1])
				pendingLen, pendingDist = length, distance
				e.finder.readPos++
			} else {
				e.finder.readPos-- // back to the pending match's start
				e.emitMatch(pendingLen, pendingDist)
				matchEnd := e.finder.readPos + pendingLen
				e.finder.readPos += 2
				for e.finder.readPos < matchEnd {
					if e.finder.lookahead() >= minMatch {
						e.finder.insert()
					}
					e.finder.readPos++
				}
				havePending = false
			}
			if err := e.maybeFlush(bw); err != nil {
				return err
			}
			continue
		}

		if ok && length >= minMatch {
			pendingLen, pendingDist = length, distance
			havePending = true
			e.finder.readPos++
			continue
		}

		e.emitLiteral(e.finder.window[e.finder.readPos])
		e.finder.readPos++
	}

	if havePending {
		e.finder.readPos--
		e.emitMatch(pendingLen, pendingDist)
		e.finder.readPos++
	}

	return e.finish(bw)
}

// advanceThroughMatch moves readPos past a just-emitted match of the given
// length, inserting the hash of every byte inside it except the first
// (already inserted right after the match search at that position).
func (e *Encoder) advanceThroughMatch(length int) {
	matchEnd := e.finder.readPos + length
	e.finder.readPos++
	for e.finder.readPos < matchEnd {
		if e.finder.lookahead() >= minMatch {
			e.finder.insert()
		}
		e.finder.readPos++
	}
}

// maybeFlush emits the current block once it reaches the symbol buffer
// capacity, so a single giant block never exhausts memory (spec.md §3).
func (e *Encoder) maybeFlush(bw *bitio.Writer) error {
	if !e.block.full() {
		return nil
	}
	if err := e.block.writeBlock(bw, e.raw.Bytes(), false); err != nil {
		return err
	}
	e.block.reset()
	e.raw.Reset()
	return bw.Err()
}

func (e *Encoder) emitLiteral(b byte) {
	e.block.addLiteral(b)
	e.raw.WriteByte(b)
}

func (e *Encoder) emitMatch(length, distance int) {
	e.block.addMatch(length, distance)
	pos := e.finder.absPos()
	start := pos - int64(distance)
	// Reconstruct the matched bytes for the stored-block fallback; distance
	// guarantees start is within the window already materialized.
	base := start - e.finder.basePos
	for i := 0; i < length; i++ {
		e.raw.WriteByte(e.finder.window[int(base)+i])
	}
}

// compressStored handles level 0: every input byte is emitted inside
// stored blocks without ever consulting the match finder.
func (e *Encoder) compressStored(bw *bitio.Writer, src io.Reader) error {
	buf := make([]byte, bufChunk)
	var pending []byte
	for {
		n, err := src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
	}
	if err := writeStoredBlocks(bw, pending, 1); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	return nil
}

// finish emits the final (possibly empty) block with BFINAL set and
// drains the bit writer.
func (e *Encoder) finish(bw *bitio.Writer) error {
	return e.block.writeBlock(bw, e.raw.Bytes(), true)
}
