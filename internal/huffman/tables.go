package huffman

// Fixed RFC 1951 §3.2.5/3.2.6 tables. These are compile-time constants,
// reproduced literally as spec.md §4.3 requires. Grounded on
// kubernetes-kubernetes__huffman_bit_writer.go's lengthExtraBits/lengthBase/
// offsetExtraBits/offsetBase/codegenOrder (a vendored copy of the standard
// library's compress/flate tables).

const (
	MaxLitLenCodes  = 286
	MaxDistCodes    = 30
	MaxCodeLenCodes = 19
	EndOfBlock      = 256
	LengthCodeBase  = 257
)

// ExtraLengthBits is the number of extra bits for length codes 257..285.
var ExtraLengthBits = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// BaseLength is the match length encoded by length codes 257..285, before
// adding the extra bits.
var BaseLength = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

// ExtraDistBits is the number of extra bits for distance codes 0..29.
var ExtraDistBits = [30]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
	4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// BaseDist is the distance encoded by distance codes 0..29, before adding
// the extra bits.
var BaseDist = [30]uint32{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
	33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
	1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}

// CodeLengthOrder is the odd permutation in which code-length-code lengths
// are transmitted in a dynamic block header.
var CodeLengthOrder = [MaxCodeLenCodes]uint8{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// FixedLitLenLengths are the code lengths of the static literal/length tree.
func FixedLitLenLengths() []uint8 {
	lens := make([]uint8, 288)
	i := 0
	for ; i < 144; i++ {
		lens[i] = 8
	}
	for ; i < 256; i++ {
		lens[i] = 9
	}
	for ; i < 280; i++ {
		lens[i] = 7
	}
	for ; i < 288; i++ {
		lens[i] = 8
	}
	return lens
}

// FixedDistLengths are the code lengths of the static distance tree: all 30
// used distance symbols have length 5 (two further values, 30 and 31, are
// reserved and never appear in compressed data).
func FixedDistLengths() []uint8 {
	lens := make([]uint8, 32)
	for i := range lens {
		lens[i] = 5
	}
	return lens
}
