package deflate

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/go-students/goflate/internal/inflate"
)

// roundTrip compresses data at the given level and inflates the result,
// failing the test unless the output matches byte-for-byte — spec.md §8
// invariant 1.
func roundTrip(t *testing.T, data []byte, level int) []byte {
	t.Helper()

	var compressed bytes.Buffer
	enc := NewEncoder(level)
	if err := enc.Compress(&compressed, bytes.NewReader(data)); err != nil {
		t.Fatalf("Compress(level=%d): %v", level, err)
	}

	var out bytes.Buffer
	dec := inflate.NewDecompressor(bytes.NewReader(compressed.Bytes()), &out)
	if err := dec.Decompress(); err != nil {
		t.Fatalf("Decompress(level=%d): %v", level, err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("level=%d: round trip mismatch, got %d bytes, want %d bytes", level, out.Len(), len(data))
	}
	return compressed.Bytes()
}

func TestRoundTripAllLevels(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := map[string][]byte{
		"empty":      {},
		"oneByte":    {0x41},
		"repetitive": bytes.Repeat([]byte{0x41}, 1000),
		"text":       []byte(sampleText),
		"random":     randomBytes(rng, 5000),
		"mixed":      mixedBytes(rng),
	}

	for level := 0; level <= 9; level++ {
		for name, data := range samples {
			data := data
			level := level
			t.Run(name, func(t *testing.T) {
				roundTrip(t, data, level)
			})
		}
	}
}

func TestSingleByteUsesStoredBlock(t *testing.T) {
	// spec.md §8 S2: a 1-byte input is too small to amortize a Huffman
	// header, so the encoder falls back to a stored block regardless of
	// level. The exact wire layout is specified: "001" (stored final) +
	// align + 0x0001 0xFFFE 0x41, six bytes total.
	var compressed bytes.Buffer
	enc := NewEncoder(6)
	if err := enc.Compress(&compressed, bytes.NewReader([]byte{0x41})); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	want := []byte{0x01, 0x01, 0x00, 0xFE, 0xFF, 0x41}
	if !bytes.Equal(compressed.Bytes(), want) {
		t.Fatalf("compressed = %x, want %x", compressed.Bytes(), want)
	}
}

func TestEmptyInputUsesFinalBlockNotStored(t *testing.T) {
	// spec.md §8 S1: an empty input is a single final block holding only
	// the end-of-block symbol, not a stored block (which has no EOB symbol
	// at all). At any level from 1 to 9 this collapses to the static tree's 7-bit EOB
	// code: "011" (static final) + EOB (0000000), 10 bits padded to two
	// bytes.
	var compressed bytes.Buffer
	enc := NewEncoder(6)
	if err := enc.Compress(&compressed, bytes.NewReader(nil)); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	want := []byte{0x03, 0x00}
	if !bytes.Equal(compressed.Bytes(), want) {
		t.Fatalf("compressed = %x, want %x", compressed.Bytes(), want)
	}
}

func TestHighlyRepetitiveCompressesWell(t *testing.T) {
	// spec.md §8 S3: 1000 repeats of 'A' at level 6 should collapse to a
	// handful of back-references, well under 30 bytes.
	compressed := roundTrip(t, bytes.Repeat([]byte{0x41}, 1000), 6)
	if len(compressed) >= 30 {
		t.Fatalf("compressed size = %d, want < 30", len(compressed))
	}
}

func TestStoredFallbackBound(t *testing.T) {
	// spec.md §8 invariant 2: |deflate(x)| <= |x| + 5*ceil(|x|/65535) + 6.
	rng := rand.New(rand.NewSource(2))
	data := randomBytes(rng, 200000) // incompressible, spans multiple stored blocks
	compressed := roundTrip(t, data, 6)

	blocks := (len(data) + 65534) / 65535
	bound := len(data) + 5*blocks + 6
	if len(compressed) > bound {
		t.Fatalf("compressed size %d exceeds stored-fallback bound %d", len(compressed), bound)
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// mixedBytes interleaves compressible runs with random noise, the kind of
// input that forces the encoder to switch between dynamic, static and
// stored blocks within a single stream.
func mixedBytes(rng *rand.Rand) []byte {
	var buf bytes.Buffer
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			buf.Write(bytes.Repeat([]byte("abcabcabcabc"), 500))
		} else {
			buf.Write(randomBytes(rng, 3000))
		}
	}
	return buf.Bytes()
}

const sampleText = `Four score and seven years ago our fathers brought forth on this
continent a new nation, conceived in liberty, and dedicated to the
proposition that all men are created equal. Now we are engaged in a
great civil war, testing whether that nation, or any nation so
conceived and so dedicated, can long endure. We are met on a great
battlefield of that war. Four score and seven years ago our fathers
brought forth on this continent a new nation, conceived in liberty.`
