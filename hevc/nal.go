// Package hevc implements the external collaborators the tile-split filter
// depends on: HEVC NAL unit classification, emulation-prevention byte
// handling, SPS/PPS/slice-segment-header parsing into a shared parser state,
// and the HEVC decoder configuration record (hvcC) codec. The split filter
// itself lives in package split.
package hevc

import "errors"

// NAL unit type constants, ITU-T H.265 Table 7-1.
const (
	NALTrailN      = 0
	NALTrailR      = 1
	NALTSAN        = 2
	NALTSAR        = 3
	NALSTSAN       = 4
	NALSTSAR       = 5
	NALRADLN       = 6
	NALRADLR       = 7
	NALRASLN       = 8
	NALRASLR       = 9
	NALBLAWLP      = 16
	NALBLAWDLP     = 17
	NALBLANLP      = 18
	NALIDRWDLP     = 19
	NALIDRNLP      = 20
	NALCRANUT      = 21
	NALVPS         = 32
	NALSPS         = 33
	NALPPS         = 34
	NALAUD         = 35
	NALEOS         = 36
	NALEOB         = 37
	NALFillerData  = 38
	NALSEIPrefix   = 39
	NALSEISuffix   = 40
)

// ErrNotSupported indicates a capability mismatch (non-HEVC input, multi-layer).
var ErrNotSupported = errors.New("hevc: not supported")

// ErrNonCompliantBitstream indicates a config/SPS/PPS parse failure or a
// required SPS/PPS that is absent.
var ErrNonCompliantBitstream = errors.New("hevc: non-compliant bitstream")

// NALHeader is the parsed 2-byte HEVC NAL unit header.
type NALHeader struct {
	Type     byte // 6 bits
	LayerID  byte // 6 bits
	TID      byte // 3 bits, temporal_id = nuh_temporal_id_plus1 - 1
}

// ParseNALHeader parses the 2-byte NAL header from the start of data
// (post-emulation-strip, including the header bytes themselves).
func ParseNALHeader(data []byte) (NALHeader, error) {
	if len(data) < 2 {
		return NALHeader{}, ErrNonCompliantBitstream
	}
	if data[0]&0x80 != 0 {
		return NALHeader{}, ErrNonCompliantBitstream // forbidden_zero_bit set
	}
	nalType := (data[0] >> 1) & 0x3F
	layerID := ((data[0] & 0x1) << 5) | (data[1] >> 3)
	tidPlus1 := data[1] & 0x7
	if tidPlus1 == 0 {
		return NALHeader{}, ErrNonCompliantBitstream
	}
	return NALHeader{Type: nalType, LayerID: layerID, TID: tidPlus1 - 1}, nil
}

// IsVCL reports whether nalType is a coded slice segment NAL (H.265 VCL
// unit types run 0-31).
func IsVCL(nalType byte) bool { return nalType <= 31 }

// IsSliceNALRouted reports whether nalType should be routed per-tile
// rather than broadcast to every tile. Types 32-34 (VPS/SPS/PPS) land on
// the routed side of the boundary here; split.Controller does not call this
// function and broadcasts all three to every tile (SPS/PPS rewritten, VPS
// verbatim).
func IsSliceNALRouted(nalType byte) bool { return nalType <= 34 }

// IsRAP reports whether nalType is a random access point slice type that
// carries a no_output_of_prior_pics_flag.
func IsRAP(nalType byte) bool {
	switch nalType {
	case NALIDRWDLP, NALIDRNLP, NALBLAWLP, NALBLAWDLP, NALBLANLP, NALCRANUT:
		return true
	}
	return false
}

// IsKeyframe reports whether nalType is an HEVC random access point
// (BLA, IDR, or CRA — types 16-21).
func IsKeyframe(nalType byte) bool {
	return nalType >= NALBLAWLP && nalType <= NALCRANUT
}

func IsVPS(nalType byte) bool { return nalType == NALVPS }
func IsSPS(nalType byte) bool { return nalType == NALSPS }
func IsPPS(nalType byte) bool { return nalType == NALPPS }

// AUNalu is a single NAL unit within an access unit, as produced by
// ParseLengthPrefixed.
type AUNalu struct {
	Header NALHeader
	Data   []byte // raw payload, including the 2-byte NAL header, emulation bytes intact
}

// ParseLengthPrefixed splits a single access unit's byte buffer into NAL
// units, each preceded by a length prefix of lengthSize bytes (1, 2, or 4).
func ParseLengthPrefixed(data []byte, lengthSize int) ([]AUNalu, error) {
	var out []AUNalu
	i := 0
	for i < len(data) {
		if i+lengthSize > len(data) {
			return nil, ErrNonCompliantBitstream
		}
		n := 0
		for j := 0; j < lengthSize; j++ {
			n = (n << 8) | int(data[i+j])
		}
		i += lengthSize
		if i+n > len(data) {
			return nil, ErrNonCompliantBitstream
		}
		nalData := data[i : i+n]
		i += n

		stripped := StripEmulation(nalData)
		hdr, err := ParseNALHeader(stripped)
		if err != nil {
			return nil, err
		}
		out = append(out, AUNalu{Header: hdr, Data: nalData})
	}
	return out, nil
}
