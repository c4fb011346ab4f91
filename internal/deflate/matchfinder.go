package deflate

import "io"

// Grounded on the teacher's flate/matchfinder.go compressor (itself
// derived from github.com/klauspost/compress/flate, in turn derived from
// the Go standard library): absolute hash-chain positions over a scrolling
// window, lazy matching, and good/nice/chain tuning. Every position inside
// an emitted match is inserted into the hash chain, whatever the match
// length; max_lazy only limits the lazy strategy's search for a longer
// match at the next position. Adapted to spec.md §3's own
// hash function (XLATE-table-based, not the teacher's hash4u multiplicative
// hash) and its 1 MiB scrolling-buffer / 16384-entry symbol-buffer sizes,
// which are spec.md requirements the teacher's 32 KiB window doesn't share.

const (
	minMatch    = 3
	maxMatch    = 258
	maxDistance = 32768
	tooFarDist  = 4096 // length-3 matches beyond this distance cost more bits than literals

	bufChunk     = 1 << 20 // 1 MiB scrolling-buffer granularity (spec.md §3)
	maxSymbols   = 16384   // symbol block buffer capacity (spec.md §3)
	hashTableLen = 1 << 16
	prevTableLen = 1 << 15
)

// Symbol is one entry of the symbol block buffer: either a literal byte
// (Distance == 0) or a (distance, length) back-reference, per spec.md §3.
type Symbol struct {
	Literal  byte
	Distance uint32
	Length   uint32
}

// IsMatch reports whether s is a back-reference rather than a literal.
func (s Symbol) IsMatch() bool { return s.Distance != 0 }

var xlate [256]uint16

func init() {
	// spec.md §3 only specifies the property XLATE must have (spread the
	// high bits of b2 across all 16 output bits); the literal table is
	// synthesized here with Knuth's multiplicative hash constant, a
	// standard bit-spreading technique, rather than a naive shift-xor.
	for b := 0; b < 256; b++ {
		xlate[b] = uint16((uint32(b) * 2654435761) >> 16)
	}
}

func hash3(b0, b1, b2 byte) uint16 {
	return uint16(b0)|uint16(b1)<<8 ^ xlate[b2]
}

// finder implements the hash-chained match search of spec.md §4.4.1 over a
// scrolling 1 MiB window addressed by absolute file position.
type finder struct {
	params levelParams

	window   []byte // capacity 2*bufChunk
	end      int    // valid data is window[0:end]
	basePos  int64  // absolute position corresponding to window[0]
	readPos  int    // next byte to consider, as an index into window

	hash [hashTableLen]int64 // HASH[h] -> absolute position, or -1
	prev [prevTableLen]int64 // PREV[pos&0x7FFF] -> absolute position, or -1

	src io.Reader
	eof bool
}

func newFinder(params levelParams) *finder {
	f := &finder{params: params, window: make([]byte, 2*bufChunk)}
	f.reset()
	return f
}

func (f *finder) reset() {
	f.end = 0
	f.basePos = 0
	f.readPos = 0
	f.eof = false
	for i := range f.hash {
		f.hash[i] = -1
	}
	for i := range f.prev {
		f.prev[i] = -1
	}
}

// bind rebinds the finder to a new source, keeping tables reset.
func (f *finder) bind(src io.Reader) {
	f.reset()
	f.src = src
}

// fill tops up the window from the source, shifting the buffer down by
// bufChunk when approaching capacity, while preserving at least the last
// maxDistance bytes before readPos (spec.md §3's encoder-window invariant).
func (f *finder) fill() error {
	if f.eof {
		return nil
	}
	if f.end+bufChunk > len(f.window) {
		shift := f.readPos - maxDistance
		if shift < 0 {
			shift = 0
		}
		shift -= shift % 8 // keep chain arithmetic on an 8-byte-friendly boundary
		if shift > 0 {
			copy(f.window, f.window[shift:f.end])
			f.end -= shift
			f.readPos -= shift
			f.basePos += int64(shift)
		}
	}
	n, err := io.ReadFull(f.src, f.window[f.end:min(f.end+bufChunk, len(f.window))])
	f.end += n
	if err != nil {
		f.eof = true
	}
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (f *finder) absPos() int64 { return f.basePos + int64(f.readPos) }

// lookahead is the number of bytes available to match against starting at
// readPos.
func (f *finder) lookahead() int { return f.end - f.readPos }

// insert records the 3-byte prefix at readPos in the hash chain.
func (f *finder) insert() {
	if f.lookahead() < minMatch {
		return
	}
	pos := f.readPos
	h := hash3(f.window[pos], f.window[pos+1], f.window[pos+2])
	abs := f.absPos()
	f.prev[abs&(prevTableLen-1)] = f.hash[h]
	f.hash[h] = abs
}

// findMatch searches the hash chain for the longest match at readPos,
// following spec.md §4.4.1: quick-reject by the scan-end byte, chain
// length bounded by maxChain (cut to a quarter past goodLen), early exit at niceLen,
// and the "too far" length-3 discard.
func (f *finder) findMatch() (length int, distance int, ok bool) {
	if f.lookahead() < minMatch {
		return 0, 0, false
	}
	pos := f.readPos
	abs := f.absPos()
	h := hash3(f.window[pos], f.window[pos+1], f.window[pos+2])
	cand := f.hash[h]

	maxLook := maxMatch
	if la := f.lookahead(); la < maxLook {
		maxLook = la
	}
	nice := f.params.niceLen
	if nice > maxLook {
		nice = maxLook
	}
	chain := f.params.maxChain
	minCandidate := abs - maxDistance

	for tries := chain; cand >= minCandidate && cand >= 0 && tries > 0; tries-- {
		cpos := pos - int(abs-cand)
		if cpos >= 0 && length < maxLook && f.window[cpos+length] == f.window[pos+length] {
			n := matchLen(f.window[cpos:cpos+maxLook], f.window[pos:pos+maxLook])
			if n > length {
				d := int(abs - cand)
				if n > minMatch || d <= tooFarDist {
					length, distance, ok = n, d, true
					if n >= nice {
						break
					}
					if length >= f.params.goodLen {
						tries = chain/4 + 1
					}
				}
			}
		}
		cand = f.prev[cand&(prevTableLen-1)]
	}
	return
}

func matchLen(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
