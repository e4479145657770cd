package bitio

import "testing"

func TestReadWriteBits(t *testing.T) {
	t.Parallel()
	w := NewWriter()
	w.WriteBits(0b101, 3)
	w.WriteBits(0b11110000, 8)
	w.AlignToByte()

	r := NewReader(w.Bytes())
	v, err := r.ReadBits(3)
	if err != nil || v != 0b101 {
		t.Fatalf("ReadBits(3) = %d, %v, want 5, nil", v, err)
	}
	v, err = r.ReadBits(8)
	if err != nil || v != 0b11110000 {
		t.Fatalf("ReadBits(8) = %d, %v, want 240, nil", v, err)
	}
}

func TestExpGolombUnsigned(t *testing.T) {
	t.Parallel()
	tests := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 100, 1000, 65535}
	for _, v := range tests {
		w := NewWriter()
		w.WriteUE(v)
		w.AlignToByte()
		r := NewReader(w.Bytes())
		got, err := r.ReadUE()
		if err != nil {
			t.Fatalf("ReadUE() error for %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round-trip ue(%d) = %d", v, got)
		}
	}
}

func TestExpGolombSigned(t *testing.T) {
	t.Parallel()
	tests := []int64{0, 1, -1, 2, -2, 3, -3, 100, -100}
	for _, v := range tests {
		w := NewWriter()
		w.WriteSE(v)
		w.AlignToByte()
		r := NewReader(w.Bytes())
		got, err := r.ReadSE()
		if err != nil {
			t.Fatalf("ReadSE() error for %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round-trip se(%d) = %d", v, got)
		}
	}
}

func TestReadPastEndIsTruncated(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(9); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestWriterGrowsBuffer(t *testing.T) {
	t.Parallel()
	w := NewWriter()
	for i := 0; i < 100; i++ {
		w.WriteBits(uint64(i%2), 1)
	}
	if got := len(w.Bytes()); got != 13 {
		t.Errorf("Bytes() length = %d, want 13", got)
	}
}

func TestAlignToByteReader(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xFF, 0xAA})
	r.ReadBits(3)
	r.AlignToByte()
	if !r.ByteAligned() {
		t.Fatal("expected byte-aligned cursor")
	}
	v, err := r.ReadU8()
	if err != nil || v != 0xAA {
		t.Fatalf("ReadU8() = %#x, %v, want 0xAA, nil", v, err)
	}
}
