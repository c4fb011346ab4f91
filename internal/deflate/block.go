package deflate

import (
	"github.com/go-students/goflate/internal/bitio"
	"github.com/go-students/goflate/internal/huffman"
)

// codeLenToken is one entry of the RLE-encoded code-length alphabet
// (spec.md §4.2.2): a symbol 0..18, plus the extra-bits value needed by
// symbols 16/17/18.
type codeLenToken struct {
	symbol uint8
	extra  uint8
	nbits  uint8
}

// runLengthEncode concatenates litLens and distLens and run-length encodes
// them with the 19-symbol alphabet of spec.md §4.2.2: literal lengths
// 0..15, 16 = "repeat previous 3-6 times" (+2 bits), 17 = "zeros 3-10
// times" (+3 bits), 18 = "zeros 11-138 times" (+7 bits). Runs shorter than
// 3 fall back to literal emission. freq receives the resulting code-length
// tree's symbol frequencies.
//
// Grounded on kubernetes-kubernetes__huffman_bit_writer.go's
// generateCodegen, adapted from its packed codegen/codegenFreq arrays to
// an explicit token slice (the "tagged sum type" the system design favors
// over a packed shared array, per spec.md §9's design note).
func runLengthEncode(litLens, distLens []uint8) ([]codeLenToken, [huffman.MaxCodeLenCodes]uint32) {
	var freq [huffman.MaxCodeLenCodes]uint32
	all := make([]uint8, 0, len(litLens)+len(distLens))
	all = append(all, litLens...)
	all = append(all, distLens...)

	var tokens []codeLenToken
	i := 0
	for i < len(all) {
		size := all[i]
		run := 1
		for i+run < len(all) && all[i+run] == size {
			run++
		}
		i += run

		if size == 0 {
			for run >= 11 {
				n := run
				if n > 138 {
					n = 138
				}
				tokens = append(tokens, codeLenToken{18, uint8(n - 11), 7})
				freq[18]++
				run -= n
			}
			if run >= 3 {
				tokens = append(tokens, codeLenToken{17, uint8(run - 3), 3})
				freq[17]++
				run = 0
			}
			for ; run > 0; run-- {
				tokens = append(tokens, codeLenToken{0, 0, 0})
				freq[0]++
			}
			continue
		}

		tokens = append(tokens, codeLenToken{size, 0, 0})
		freq[size]++
		run--
		for run >= 3 {
			n := run
			if n > 6 {
				n = 6
			}
			tokens = append(tokens, codeLenToken{16, uint8(n - 3), 2})
			freq[16]++
			run -= n
		}
		for ; run > 0; run-- {
			tokens = append(tokens, codeLenToken{size, 0, 0})
			freq[size]++
		}
	}
	return tokens, freq
}

// block holds the accumulated symbol buffer and derived frequency tables
// for one DEFLATE block, following spec.md §3/§4.4.3.
type block struct {
	symbols []Symbol

	litFreq  [huffman.MaxLitLenCodes]uint32
	distFreq [huffman.MaxDistCodes]uint32

	storedLen int // number of raw bytes this block's symbols represent
}

func newBlock() *block {
	return &block{symbols: make([]Symbol, 0, maxSymbols)}
}

func (b *block) reset() {
	b.symbols = b.symbols[:0]
	for i := range b.litFreq {
		b.litFreq[i] = 0
	}
	for i := range b.distFreq {
		b.distFreq[i] = 0
	}
	b.storedLen = 0
}

func (b *block) full() bool { return len(b.symbols) >= maxSymbols }

func (b *block) addLiteral(lit byte) {
	b.symbols = append(b.symbols, Symbol{Literal: lit})
	b.litFreq[lit]++
	b.storedLen++
}

func (b *block) addMatch(length, distance int) {
	b.symbols = append(b.symbols, Symbol{Distance: uint32(distance), Length: uint32(length)})
	b.litFreq[lengthSymbol(length)]++
	b.distFreq[distSymbol(distance)]++
	b.storedLen += length
}

func lengthSymbol(length int) int {
	for i := len(huffman.BaseLength) - 1; i >= 0; i-- {
		if length >= int(huffman.BaseLength[i]) {
			return huffman.LengthCodeBase + i
		}
	}
	return huffman.LengthCodeBase
}

func distSymbol(distance int) int {
	for i := len(huffman.BaseDist) - 1; i >= 0; i-- {
		if distance >= int(huffman.BaseDist[i]) {
			return i
		}
	}
	return 0
}

// extraBits returns the total number of extra bits spent on length and
// distance codes in this block.
func (b *block) extraBits() int64 {
	var total int64
	for i, f := range b.litFreq[huffman.LengthCodeBase:huffman.MaxLitLenCodes] {
		total += int64(f) * int64(huffman.ExtraLengthBits[i])
	}
	for i, f := range b.distFreq {
		total += int64(f) * int64(huffman.ExtraDistBits[i])
	}
	return total
}

// sizeEstimate holds the three candidate bit-costs of spec.md §4.4.3.
type sizeEstimate struct {
	stored          int64
	static          int64
	dynamic         int64
	dynNumCodegens  int
	dynCodeLenFreq  [huffman.MaxCodeLenCodes]uint32
	dynCodeLenTree  *huffman.Tree
	litTree         *huffman.Tree
	distTree        *huffman.Tree
}

// estimate computes the stored/static/dynamic candidate sizes for the
// current block, per spec.md §4.4.3.
func (b *block) estimate() (*sizeEstimate, error) {
	extra := b.extraBits()

	numLiterals := huffman.MaxLitLenCodes
	for numLiterals > 257 && b.litFreq[numLiterals-1] == 0 {
		numLiterals--
	}
	numDist := huffman.MaxDistCodes
	for numDist > 1 && b.distFreq[numDist-1] == 0 {
		numDist--
	}
	// Always reserve the end-of-block marker's frequency of 1.
	litFreqCopy := make([]uint32, numLiterals)
	copy(litFreqCopy, b.litFreq[:numLiterals])
	litFreqCopy[huffman.EndOfBlock] += 1
	distFreqCopy := make([]uint32, numDist)
	copy(distFreqCopy, b.distFreq[:numDist])

	litTree, err := huffman.Build(litFreqCopy, 15)
	if err != nil {
		return nil, err
	}
	distTree, err := huffman.Build(distFreqCopy, 15)
	if err != nil {
		return nil, err
	}

	_, clFreq := runLengthEncode(litTree.Lengths, distTree.Lengths)
	clTree, err := huffman.Build(clFreq[:], 7)
	if err != nil {
		return nil, err
	}
	numCodegens := huffman.MaxCodeLenCodes
	for numCodegens > 4 && clFreq[huffman.CodeLengthOrder[numCodegens-1]] == 0 {
		numCodegens--
	}

	header := int64(3 + 5 + 5 + 4 + 3*numCodegens)
	header += clTree.BitLength(clFreq[:])
	header += int64(clFreq[16])*2 + int64(clFreq[17])*3 + int64(clFreq[18])*7

	dynamic := header + litTree.BitLength(litFreqCopy) + distTree.BitLength(distFreqCopy) + extra

	staticLitLengths := huffman.FixedLitLenLengths()
	staticDistLengths := huffman.FixedDistLengths()
	static := int64(3) + bitLengthFor(staticLitLengths, litFreqCopy) + bitLengthFor(staticDistLengths, distFreqCopy) + extra

	stored := int64(5+b.storedLen) * 8

	return &sizeEstimate{
		stored:         stored,
		static:         static,
		dynamic:        dynamic,
		dynNumCodegens: numCodegens,
		dynCodeLenFreq: clFreq,
		dynCodeLenTree: clTree,
		litTree:        litTree,
		distTree:       distTree,
	}, nil
}

func bitLengthFor(lengths []uint8, freq []uint32) int64 {
	var total int64
	for sym, f := range freq {
		if f == 0 || sym >= len(lengths) {
			continue
		}
		total += int64(f) * int64(lengths[sym])
	}
	return total
}

// blockKind is the chosen block shape for emission (spec.md §4.4.3's
// tie-break: static wins ties with dynamic; stored wins only if strictly
// smaller than the chosen compressed form).
type blockKind int

const (
	kindDynamic blockKind = iota
	kindStatic
	kindStored
)

func chooseBlockKind(est *sizeEstimate) blockKind {
	kind := kindDynamic
	best := est.dynamic
	if est.static <= best {
		kind = kindStatic
		best = est.static
	}
	if est.stored < best {
		kind = kindStored
	}
	return kind
}

// writeBlock emits one DEFLATE block (header + body) to w, choosing among
// stored/static/dynamic per the estimate, and emitting the symbols with the
// Huffman code tables the estimate already built (spec.md §4.4.4).
func (b *block) writeBlock(w *bitio.Writer, raw []byte, final bool) error {
	est, err := b.estimate()
	if err != nil {
		return err
	}
	kind := chooseBlockKind(est)

	finalBit := uint32(0)
	if final {
		finalBit = 1
	}

	switch kind {
	case kindStored:
		return writeStoredBlocks(w, raw, finalBit)
	case kindStatic:
		w.WriteBits(finalBit|1<<1, 3)
		litLengths := huffman.FixedLitLenLengths()
		distLengths := huffman.FixedDistLengths()
		litCodes, _ := huffman.BuildCodes(litLengths, 15)
		distCodes, _ := huffman.BuildCodes(distLengths, 15)
		return b.writeSymbols(w, litLengths, litCodes, distLengths, distCodes)
	default:
		w.WriteBits(finalBit|2<<1, 3)
		if err := b.writeDynamicHeader(w, est); err != nil {
			return err
		}
		return b.writeSymbols(w, est.litTree.Lengths, est.litTree.Codes, est.distTree.Lengths, est.distTree.Codes)
	}
}

// writeStoredBlocks emits raw as one or more stored blocks, each at most
// 65535 bytes, per spec.md §4.4.4.
func writeStoredBlocks(w *bitio.Writer, raw []byte, finalBit uint32) error {
	if len(raw) == 0 {
		w.WriteBits(finalBit, 3)
		w.AlignToByte()
		w.WriteBits(0, 16)
		w.WriteBits(0xFFFF, 16)
		return w.Err()
	}
	for len(raw) > 0 {
		chunk := raw
		last := true
		if len(chunk) > 65535 {
			chunk = raw[:65535]
			last = false
		}
		fb := uint32(0)
		if last {
			fb = finalBit
		}
		w.WriteBits(fb, 3)
		w.AlignToByte()
		w.WriteBits(uint32(len(chunk)), 16)
		w.WriteBits(uint32(^uint16(len(chunk))), 16)
		w.WriteBytes(chunk)
		raw = raw[len(chunk):]
	}
	return w.Err()
}

// writeDynamicHeader emits the HLIT/HDIST/HCLEN fields, the code-length
// tree's own lengths in codegenOrder, and the RLE body, per spec.md
// §4.4.4. Grounded on
// kubernetes-kubernetes__huffman_bit_writer.go.writeDynamicHeader.
func (b *block) writeDynamicHeader(w *bitio.Writer, est *sizeEstimate) error {
	numLiterals := len(est.litTree.Lengths)
	numDist := len(est.distTree.Lengths)

	w.WriteBits(uint32(numLiterals-257), 5)
	w.WriteBits(uint32(numDist-1), 5)
	w.WriteBits(uint32(est.dynNumCodegens-4), 4)

	clCodes := est.dynCodeLenTree.Codes
	for i := 0; i < est.dynNumCodegens; i++ {
		w.WriteBits(uint32(est.dynCodeLenTree.Lengths[huffman.CodeLengthOrder[i]]), 3)
	}

	tokens, _ := runLengthEncode(est.litTree.Lengths, est.distTree.Lengths)
	for _, t := range tokens {
		code := clCodes[t.symbol]
		w.WriteBits(uint32(code), uint(est.dynCodeLenTree.Lengths[t.symbol]))
		if t.nbits > 0 {
			w.WriteBits(uint32(t.extra), uint(t.nbits))
		}
	}
	return w.Err()
}

// writeSymbols emits the block's literal/length/distance symbols using the
// given canonical code tables.
func (b *block) writeSymbols(w *bitio.Writer, litLengths []uint8, litCodes []uint16, distLengths []uint8, distCodes []uint16) error {
	for _, s := range b.symbols {
		if !s.IsMatch() {
			sym := int(s.Literal)
			w.WriteBits(uint32(litCodes[sym]), uint(litLengths[sym]))
			continue
		}
		lsym := lengthSymbol(int(s.Length))
		idx := lsym - huffman.LengthCodeBase
		w.WriteBits(uint32(litCodes[lsym]), uint(litLengths[lsym]))
		extra := int(s.Length) - int(huffman.BaseLength[idx])
		if n := huffman.ExtraLengthBits[idx]; n > 0 {
			w.WriteBits(uint32(extra), uint(n))
		}

		dsym := distSymbol(int(s.Distance))
		w.WriteBits(uint32(distCodes[dsym]), uint(distLengths[dsym]))
		dextra := int(s.Distance) - int(huffman.BaseDist[dsym])
		if n := huffman.ExtraDistBits[dsym]; n > 0 {
			w.WriteBits(uint32(dextra), uint(n))
		}
	}
	// End-of-block marker, appended implicitly at emission (spec.md §3).
	w.WriteBits(uint32(litCodes[huffman.EndOfBlock]), uint(litLengths[huffman.EndOfBlock]))
	return w.Err()
}
