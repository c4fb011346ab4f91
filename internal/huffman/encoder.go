package huffman

import (
	"errors"
	"sort"
)

// ErrMalformedTree is returned when a constructed canonical code table's
// codespace does not sum to exactly 2^16, which should never happen for a
// tree built by Build but is checked defensively (spec.md §4.2.1 step 3).
var ErrMalformedTree = errors.New("huffman: malformed code tree")

// Tree holds a per-block canonical Huffman code table: the code length and
// the bit-reversed canonical code for every symbol in the alphabet.
type Tree struct {
	Lengths []uint8
	Codes   []uint16
}

type node struct {
	freq        int64
	leafIndex   int
	leaf        bool
	left, right int
}

type leaf struct {
	sym  int
	freq uint32
}

// BuildLengths computes RFC 1951 code lengths for the given symbol
// frequencies, bounded to maxBits (15 for literal/length and distance
// trees, 7 for the code-length tree), following spec.md §4.2.1:
//
//  1. Leaves are sorted ascending by frequency and repeatedly combined two
//     at a time, the new parent re-inserted at its sorted position.
//  2. If any resulting leaf depth exceeds maxBits, the smallest-frequency
//     leaves are raised to the second-smallest frequency and the tree is
//     rebuilt, repeating until every depth fits.
//  3. Degenerate alphabets (0 or 1 used symbols) are padded to two leaves
//     so a valid tree with at least one bit of code length always exists.
func BuildLengths(freq []uint32, maxBits int) ([]uint8, error) {
	var leaves []leaf
	for sym, f := range freq {
		if f > 0 {
			leaves = append(leaves, leaf{sym, f})
		}
	}
	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].freq < leaves[j].freq })

	if len(leaves) == 0 {
		leaves = append(leaves, leaf{0, 0})
	}

	lengths := make([]uint8, len(freq))

	// A single-entry alphabet (e.g. a block with no distance codes at all)
	// has nowhere to put a second leaf. RFC 1951 §3.2.7 special-cases
	// exactly this: one distance code is transmitted with a length of one
	// bit rather than zero, even if the code is never actually used.
	if len(freq) == 1 {
		lengths[0] = 1
		return lengths, nil
	}

	if len(leaves) == 1 {
		comp := leaves[0].sym + 1
		if comp >= len(freq) {
			comp = leaves[0].sym - 1
		}
		if comp < 0 {
			comp = 1
		}
		leaves = append(leaves, leaf{comp, 0})
		sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].freq < leaves[j].freq })
	}

	for attempt := 0; ; attempt++ {
		depth := buildTreeDepths(leaves, len(freq))
		maxDepth := 0
		for _, d := range depth {
			if int(d) > maxDepth {
				maxDepth = int(d)
			}
		}
		if maxDepth <= maxBits || attempt > len(leaves)+16 {
			for i, l := range leaves {
				lengths[l.sym] = depth[i]
			}
			return lengths, nil
		}

		// Flatten: raise every leaf at the smallest frequency to the
		// second-smallest distinct frequency, then re-combine.
		smallest := leaves[0].freq
		j := 0
		for j < len(leaves) && leaves[j].freq == smallest {
			j++
		}
		if j >= len(leaves) {
			// All leaves share one frequency; nothing left to flatten.
			for i, l := range leaves {
				lengths[l.sym] = depth[i]
			}
			return lengths, nil
		}
		second := leaves[j].freq
		for i := range leaves[:j] {
			leaves[i].freq = second
		}
		sort.SliceStable(leaves, func(i, k int) bool { return leaves[i].freq < leaves[k].freq })
	}
}

// buildTreeDepths builds the combined-frequency tree described in
// spec.md §4.2.1 and returns, for each leaf in leaves (same order), its
// depth in the resulting tree.
func buildTreeDepths(leaves []leaf, alphabetSize int) []uint8 {
	n := len(leaves)
	nodes := make([]node, 0, 2*n)
	order := make([]int, n)
	for i, l := range leaves {
		nodes = append(nodes, node{freq: int64(l.freq), leafIndex: i, leaf: true})
		order[i] = i
	}

	for len(order) > 1 {
		i0, i1 := order[0], order[1]
		parentFreq := nodes[i0].freq + nodes[i1].freq
		nodes = append(nodes, node{freq: parentFreq, left: i0, right: i1})
		pidx := len(nodes) - 1
		rest := order[2:]

		// Insert pidx in sorted position; ties go to the end of the
		// equal-frequency run (spec.md §4.2.1 step 1).
		pos := sort.Search(len(rest), func(k int) bool { return nodes[rest[k]].freq > parentFreq })
		newOrder := make([]int, 0, len(rest)+1)
		newOrder = append(newOrder, rest[:pos]...)
		newOrder = append(newOrder, pidx)
		newOrder = append(newOrder, rest[pos:]...)
		order = newOrder
	}

	depth := make([]uint8, n)
	var assign func(idx int, d uint8)
	assign = func(idx int, d uint8) {
		nd := &nodes[idx]
		if nd.leaf {
			depth[nd.leafIndex] = d
			return
		}
		assign(nd.left, d+1)
		assign(nd.right, d+1)
	}
	if len(order) == 1 {
		assign(order[0], 0)
	}
	if n == 1 {
		depth[0] = 1
	}
	return depth
}

// BuildCodes assigns canonical codes to a set of code lengths: symbols are
// bucketed by length, and within a length, codes are assigned in symbol
// order, per RFC 1951 §3.2.2. Each assigned code is bit-reversed into a
// 16-bit value (only the low `length` bits are meaningful) so the bit
// writer can emit LSB-first.
func BuildCodes(lengths []uint8, maxBits int) ([]uint16, error) {
	var blCount [16]uint32
	var nonzero int
	for _, l := range lengths {
		if l > 0 {
			blCount[l]++
			nonzero++
		}
	}

	// Spec.md §4.2.1 step 3: the codespace must sum to exactly 65536,
	// each length-l code occupying 2^(16-l) of the 16-bit space. RFC 1951
	// §3.2.7's single-code special case (one distance code, encoded in one
	// bit rather than zero) is deliberately incomplete and exempt.
	var space uint32
	for l := 1; l <= maxBits && l < 16; l++ {
		space += blCount[l] << (16 - uint(l))
	}
	if nonzero > 1 && space != 1<<16 {
		return nil, ErrMalformedTree
	}

	var nextCode [16]uint32
	var code uint32
	for l := 1; l <= maxBits && l < 16; l++ {
		nextCode[l] = code
		code = (code + blCount[l]) << 1
	}

	codes := make([]uint16, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		codes[sym] = reverseBits(uint16(c), l)
	}
	return codes, nil
}

func reverseBits(v uint16, width uint8) uint16 {
	var r uint16
	for i := uint8(0); i < width; i++ {
		r <<= 1
		r |= v & 1
		v >>= 1
	}
	return r
}

// Build builds a full canonical Tree from symbol frequencies.
func Build(freq []uint32, maxBits int) (*Tree, error) {
	lengths, err := BuildLengths(freq, maxBits)
	if err != nil {
		return nil, err
	}
	codes, err := BuildCodes(lengths, maxBits)
	if err != nil {
		return nil, err
	}
	return &Tree{Lengths: lengths, Codes: codes}, nil
}

// BitLength returns the number of bits this tree would need to encode the
// symbols weighted by freq — Σ freq[sym]·length[sym] — used by the block-size
// estimator in spec.md §4.4.3. Grounded on
// kubernetes-kubernetes__huffman_bit_writer.go's huffmanEncoder.bitLength.
func (t *Tree) BitLength(freq []uint32) int64 {
	var total int64
	for sym, f := range freq {
		if f == 0 {
			continue
		}
		total += int64(f) * int64(t.Lengths[sym])
	}
	return total
}
