package huffman

import "errors"

// ErrDecodeTree is returned when walking the overflow region of a decode
// table fails to terminate in a leaf within 16 bits, per spec.md §4.2.3.
var ErrDecodeTree = errors.New("huffman: could not decode tree")

const maxTableBits = 9

// DecodeTable is the two-level integer lookup table described in spec.md
// §3/§4.2.3. The first level is direct-indexed by the low hashBits bits of
// the next 16 buffered bits. A negative entry is a leaf, bit-inverted to
// encode (symbol<<4)|bitLength. A non-negative entry is an offset into the
// paired-cell overflow region: index `entry` is the zero-branch, `entry+1`
// is the one-branch.
//
// Grounded on spec.md §3/§4.2.3's description of the classic zlib/unzip
// "huft" construction; the root idea (direct table for short codes, linked
// overflow for long ones) is the same one implemented with a single-level
// chunk+links design in elliotnunn-BeHierarchic/internal/flate's
// huffmanDecoder, here rebuilt to match spec.md's bit-inverted leaf and
// explicit overflow-pair layout instead of that design's chunk/link split.
type DecodeTable struct {
	table    []int32
	hashBits uint
	bitMask  uint32
}

// BuildDecodeTable builds the lookup table from an array of code lengths (0
// meaning unused), tolerating incomplete-but-non-oversubscribed trees per
// the open question recorded in spec.md §9 / DESIGN.md.
func BuildDecodeTable(lengths []uint8) (*DecodeTable, error) {
	var blCount [16]int
	longest := 0
	for _, l := range lengths {
		if l > 0 {
			blCount[l]++
			if int(l) > longest {
				longest = int(l)
			}
		}
	}
	if longest == 0 {
		return &DecodeTable{table: make([]int32, 2), hashBits: 1, bitMask: 1}, nil
	}

	var nextCode [16]uint32
	var code uint32
	for l := 1; l <= 15; l++ {
		nextCode[l] = code
		code = (code + uint32(blCount[l])) << 1
	}

	hashBits := longest
	if hashBits > maxTableBits {
		hashBits = maxTableBits
	}
	bitMask := uint32(1) << uint(hashBits)

	d := &DecodeTable{
		table:    make([]int32, bitMask),
		hashBits: uint(hashBits),
		bitMask:  bitMask - 1,
	}

	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		code := nextCode[l]
		nextCode[l]++
		rev := reverseBits(uint16(code), l)

		leaf := ^int32((int32(sym) << 4) | int32(l))

		if int(l) <= hashBits {
			// Flood every slot whose low `l` bits match rev.
			step := uint32(1) << uint(l)
			for slot := uint32(rev); slot < bitMask; slot += step {
				d.table[slot] = leaf
			}
			continue
		}

		// Walk bit-by-bit from the hash slot into the overflow region,
		// allocating paired cells as needed.
		slot := uint32(rev) & d.bitMask
		cell := d.table[slot]
		bitsConsumed := uint(hashBits)
		bit := (uint32(rev) >> bitsConsumed) & 1

		if cell == 0 {
			endPtr := int32(len(d.table))
			d.table = append(d.table, 0, 0)
			d.table[slot] = endPtr
			cell = endPtr
		}

		for bitsConsumed+1 < uint(l) {
			idx := int(cell) + int(bit)
			bitsConsumed++
			bit = (uint32(rev) >> bitsConsumed) & 1
			if d.table[idx] == 0 {
				endPtr := int32(len(d.table))
				d.table = append(d.table, 0, 0)
				d.table[idx] = endPtr
			}
			cell = d.table[idx]
		}
		d.table[int(cell)+int(bit)] = leaf
	}

	return d, nil
}

// Decode consumes a Huffman symbol from bits (at least 16 valid bits,
// LSB-first), returning the symbol, the number of bits it occupied, and
// whether decoding succeeded.
func (d *DecodeTable) Decode(bits uint32) (symbol int, length uint8, ok bool) {
	idx := bits & d.bitMask
	entry := d.table[idx]
	if entry < 0 {
		leaf := ^entry
		return int(leaf >> 4), uint8(leaf & 0xF), true
	}

	mask := d.bitMask + 1
	cell := entry
	for mask < 0x10000 {
		bit := (bits >> trailingBits(mask)) & 1
		entry = d.table[int(cell)+int(bit)]
		if entry < 0 {
			leaf := ^entry
			return int(leaf >> 4), uint8(leaf & 0xF), true
		}
		if entry == 0 {
			return 0, 0, false
		}
		cell = entry
		mask <<= 1
	}
	return 0, 0, false
}

func trailingBits(mask uint32) uint {
	n := uint(0)
	for mask > 1 {
		mask >>= 1
		n++
	}
	return n
}
