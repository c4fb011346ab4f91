package huffman

import "testing"

// encodeDecode packs code into a 32-bit accumulator the way bitio would
// present it to DecodeTable.Decode (LSB-first, at least 16 valid bits),
// and checks it decodes back to sym with the same bit length.
func encodeDecode(t *testing.T, dt *DecodeTable, code uint16, length uint8, wantSym int) {
	t.Helper()
	sym, l, ok := dt.Decode(uint32(code))
	if !ok {
		t.Fatalf("Decode(%016b): not ok", code)
	}
	if sym != wantSym || l != length {
		t.Fatalf("Decode(%016b) = (%d, %d), want (%d, %d)", code, sym, l, wantSym, length)
	}
}

func TestBuildAndDecodeFixedLitLen(t *testing.T) {
	lengths := FixedLitLenLengths()
	codes, err := BuildCodes(lengths, 15)
	if err != nil {
		t.Fatalf("BuildCodes: %v", err)
	}
	dt, err := BuildDecodeTable(lengths)
	if err != nil {
		t.Fatalf("BuildDecodeTable: %v", err)
	}

	for sym := 0; sym < len(lengths); sym += 37 {
		encodeDecode(t, dt, codes[sym], lengths[sym], sym)
	}
}

func TestBuildLengthsSingleSymbol(t *testing.T) {
	freq := []uint32{0, 7, 0}
	lengths, err := BuildLengths(freq, 15)
	if err != nil {
		t.Fatalf("BuildLengths: %v", err)
	}
	if lengths[1] == 0 {
		t.Fatalf("expected symbol 1 to get a non-zero length, got %v", lengths)
	}
	if _, err := BuildCodes(lengths, 15); err != nil {
		t.Fatalf("BuildCodes: %v", err)
	}
}

func TestBuildLengthsSingleSlotAlphabet(t *testing.T) {
	// A block with zero distance-code matches clamps its distance
	// frequency array to length 1 (RFC 1951 §3.2.7's special case).
	freq := []uint32{0}
	lengths, err := BuildLengths(freq, 15)
	if err != nil {
		t.Fatalf("BuildLengths: %v", err)
	}
	if lengths[0] != 1 {
		t.Fatalf("lengths[0] = %d, want 1", lengths[0])
	}
	codes, err := BuildCodes(lengths, 15)
	if err != nil {
		t.Fatalf("BuildCodes: %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("len(codes) = %d, want 1", len(codes))
	}
}

func TestBuildLengthsRespectsMaxBits(t *testing.T) {
	// A strongly skewed distribution (one huge outlier, many rare
	// singletons) is the classic case that pushes naive Huffman trees past
	// the 15/7-bit code length limit.
	freq := make([]uint32, 300)
	freq[0] = 1000000
	for i := 1; i < len(freq); i++ {
		freq[i] = 1
	}
	lengths, err := BuildLengths(freq, 15)
	if err != nil {
		t.Fatalf("BuildLengths: %v", err)
	}
	for sym, l := range lengths {
		if l > 15 {
			t.Fatalf("symbol %d has length %d, exceeds max_bit_length 15", sym, l)
		}
	}
	if _, err := BuildCodes(lengths, 15); err != nil {
		t.Fatalf("BuildCodes: %v", err)
	}
}

func TestBitLength(t *testing.T) {
	freq := []uint32{10, 0, 5, 1}
	tree, err := Build(freq, 15)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := tree.BitLength(freq)
	var want int64
	for sym, f := range freq {
		want += int64(f) * int64(tree.Lengths[sym])
	}
	if got != want {
		t.Fatalf("BitLength = %d, want %d", got, want)
	}
}
