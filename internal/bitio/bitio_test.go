package bitio

import (
	"bytes"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	values := []struct {
		v     uint32
		count uint
	}{
		{1, 1}, {0, 1}, {5, 3}, {300, 9}, {0xFFFF, 16}, {7, 3}, {1, 1},
	}
	for _, v := range values {
		w.WriteBits(v.v, v.count)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	for _, v := range values {
		got, err := r.GetBits(v.count)
		if err != nil {
			t.Fatalf("GetBits(%d): %v", v.count, err)
		}
		if got != v.v {
			t.Fatalf("GetBits(%d) = %d, want %d", v.count, got, v.v)
		}
	}
}

func TestAlignToByteAndRawBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteBits(0x5, 3)
	w.AlignToByte()
	w.WriteBytes([]byte("hello"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if _, err := r.GetBits(3); err != nil {
		t.Fatalf("GetBits: %v", err)
	}
	r.AlignToByte()
	got := make([]byte, 5)
	if err := r.ReadBytes(got); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("ReadBytes = %q, want %q", got, "hello")
	}
}

func TestGet16Bits(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.AlignToByte()
	w.WriteBytes([]byte{0x01, 0xFE})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := r.Get16Bits()
	if err != nil {
		t.Fatalf("Get16Bits: %v", err)
	}
	if want := uint16(0xFE01); got != want {
		t.Fatalf("Get16Bits = %#x, want %#x", got, want)
	}
}

func TestGetBitsPastEndReturnsError(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.GetBits(8); err == nil {
		t.Fatal("expected an error reading bits from an empty source")
	}
}
