package hevc

import (
	"bytes"
	"testing"
)

// TestEmulationRoundTrip: stripping the emulation-prevention bytes
// AddEmulation inserts must reproduce the original RBSP exactly, and adding
// them to an already emulation-free RBSP must be invertible too.
func TestEmulationRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rbsp []byte
	}{
		{"empty", []byte{}},
		{"no trigger sequence", []byte{0x01, 0x02, 0xFF, 0xAA}},
		{"single zero run short of trigger", []byte{0x00, 0x00, 0x04, 0x00}},
		{"000000", []byte{0x00, 0x00, 0x00}},
		{"000001 start code lookalike", []byte{0x00, 0x00, 0x01}},
		{"000002", []byte{0x00, 0x00, 0x02}},
		{"000003", []byte{0x00, 0x00, 0x03}},
		{"back to back triggers", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}},
		{"trigger at the very end", []byte{0xAB, 0xCD, 0x00, 0x00, 0x03}},
		{"trailing zeros no trigger", []byte{0xAB, 0x00, 0x00}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			escaped := AddEmulation(tc.rbsp)
			if n := CountEmulation(tc.rbsp); len(escaped) != len(tc.rbsp)+n {
				t.Errorf("CountEmulation = %d, inconsistent with AddEmulation output length %d (rbsp len %d)", n, len(escaped), len(tc.rbsp))
			}
			back := StripEmulation(escaped)
			if !bytes.Equal(back, tc.rbsp) {
				t.Errorf("StripEmulation(AddEmulation(rbsp)) = %#v, want %#v", back, tc.rbsp)
			}
		})
	}
}

// TestStripEmulationIdempotentOnEmulationFreeInput covers the other
// direction: stripping data that never had emulation-prevention bytes
// inserted must return it unchanged.
func TestStripEmulationIdempotentOnEmulationFreeInput(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03, 0x04},
		{0x00, 0x00, 0x04}, // 0x04 never triggers, regardless of the zero run length
		{0xFF, 0xFF, 0xFF},
	}
	for _, data := range cases {
		got := StripEmulation(data)
		if !bytes.Equal(got, data) {
			t.Errorf("StripEmulation(%#v) = %#v, want unchanged", data, got)
		}
	}
}

func TestStripEmulationAppendReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 16)
	data := []byte{0x00, 0x00, 0x03, 0x01, 0xAA}
	got := StripEmulationAppend(dst, data)
	want := []byte{0x00, 0x00, 0x01, 0xAA}
	if !bytes.Equal(got, want) {
		t.Errorf("StripEmulationAppend = %#v, want %#v", got, want)
	}

	data2 := []byte{0x00, 0x00, 0x02, 0xBB}
	got2 := StripEmulationAppend(got, data2)
	want2 := []byte{0x00, 0x00, 0x02, 0xBB} // 0x02 is not an emulation-prevention byte
	if !bytes.Equal(got2, want2) {
		t.Errorf("second StripEmulationAppend = %#v, want %#v", got2, want2)
	}
}
