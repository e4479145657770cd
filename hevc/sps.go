package hevc

import (
	"fmt"

	"github.com/zsiec/hevcsplit/bitio"
)

// PTL is the profile_tier_level() structure, general part only (the fields
// needed to re-derive an hvcC record and to CodecString()). Sub-layer PTL
// entries are consumed during parsing but not retained: the filter never
// needs to rewrite them, only to skip past them correctly.
type PTL struct {
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIDC                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64 // 48 bits
	GeneralLevelIDC                  uint8
}

// CodecString returns the RFC 6381 codec string for this PTL, e.g.
// "hev1.1.2.L93.B0".
func (p PTL) CodecString() string {
	tier := "L"
	if p.GeneralTierFlag {
		tier = "H"
	}
	s := fmt.Sprintf("hev1.%d.%X.%s%d", p.GeneralProfileIDC, reverse32(p.GeneralProfileCompatibilityFlags), tier, p.GeneralLevelIDC)
	if p.GeneralConstraintIndicatorFlags != 0 {
		s += "." + constraintBytesString(p.GeneralConstraintIndicatorFlags)
	}
	return s
}

func reverse32(v uint32) uint32 {
	var out uint32
	for i := 0; i < 32; i++ {
		out = (out << 1) | (v & 1)
		v >>= 1
	}
	return out
}

func constraintBytesString(flags uint64) string {
	// Six bytes, most significant first, trailing zero bytes dropped.
	var bs []byte
	for i := 5; i >= 0; i-- {
		bs = append(bs, byte(flags>>(uint(i)*8)))
	}
	end := len(bs)
	for end > 0 && bs[end-1] == 0 {
		end--
	}
	out := ""
	for i, b := range bs[:end] {
		if i > 0 {
			out += "."
		}
		out += fmt.Sprintf("%X", b)
	}
	return out
}

func parsePTL(r *bitio.Reader, profilePresent bool, maxNumSubLayersMinus1 uint8) (PTL, error) {
	var ptl PTL
	subProfilePresent := make([]bool, 8)
	subLevelPresent := make([]bool, 8)

	if profilePresent {
		v, err := r.ReadBits(2)
		if err != nil {
			return ptl, err
		}
		ptl.GeneralProfileSpace = uint8(v)
		tier, err := r.ReadFlag()
		if err != nil {
			return ptl, err
		}
		ptl.GeneralTierFlag = tier
		v, err = r.ReadBits(5)
		if err != nil {
			return ptl, err
		}
		ptl.GeneralProfileIDC = uint8(v)
		v, err = r.ReadBits(32)
		if err != nil {
			return ptl, err
		}
		ptl.GeneralProfileCompatibilityFlags = uint32(v)
		v, err = r.ReadBits(48)
		if err != nil {
			return ptl, err
		}
		ptl.GeneralConstraintIndicatorFlags = v
	}
	lvl, err := r.ReadBits(8)
	if err != nil {
		return ptl, err
	}
	ptl.GeneralLevelIDC = uint8(lvl)

	for i := uint8(0); i < maxNumSubLayersMinus1; i++ {
		p, err := r.ReadFlag()
		if err != nil {
			return ptl, err
		}
		subProfilePresent[i] = p
		l, err := r.ReadFlag()
		if err != nil {
			return ptl, err
		}
		subLevelPresent[i] = l
	}
	if maxNumSubLayersMinus1 > 0 {
		for i := maxNumSubLayersMinus1; i < 8; i++ {
			if _, err := r.ReadBits(2); err != nil {
				return ptl, err
			}
		}
	}
	for i := uint8(0); i < maxNumSubLayersMinus1; i++ {
		if subProfilePresent[i] {
			if _, err := r.ReadBits(88); err != nil {
				return ptl, err
			}
		}
		if subLevelPresent[i] {
			if _, err := r.ReadBits(8); err != nil {
				return ptl, err
			}
		}
	}
	return ptl, nil
}

// SPS holds the fields of an HEVC Sequence Parameter Set that the split
// filter, tile geometry computations, and slice header walking need.
// NAL-header bytes are not included; ParseSPS expects data to start there
// regardless (it reads past them).
type SPS struct {
	ID                   uint32
	LayerID              uint8
	MaxSubLayersMinus1   uint8
	PTL                  PTL
	ChromaFormatIDC      uint32
	SeparateColourPlane  bool
	Width                uint32
	Height               uint32
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32
	CtbLog2SizeY         uint32
	MaxCUWidth           uint32 // 1 << CtbLog2SizeY
	MaxCUHeight          uint32 // equal to MaxCUWidth; HEVC CTBs are square

	Log2MaxPicOrderCntLsbMinus4 uint32
	SampleAdaptiveOffsetEnabled bool
	ShortTermRefPicSets         []stRefPicSet
	LongTermRefPicsPresent      bool
	NumLongTermRefPicsSPS       uint32
	TemporalMvpEnabled          bool

	BitsSliceSegmentAddress int // ceil(log2(PicSizeInCtbsY)), this picture's
}

// ChromaArrayType is ChromaArrayType per Table 6-1: 0 when colour planes are
// coded separately, else ChromaFormatIDC.
func (s *SPS) ChromaArrayType() uint32 {
	if s.SeparateColourPlane {
		return 0
	}
	return s.ChromaFormatIDC
}

// PicWidthInCtbs returns ceil(Width / MaxCUWidth).
func (s *SPS) PicWidthInCtbs() uint32 {
	return ceilDiv(s.Width, s.MaxCUWidth)
}

// PicHeightInCtbs returns ceil(Height / MaxCUHeight).
func (s *SPS) PicHeightInCtbs() uint32 {
	return ceilDiv(s.Height, s.MaxCUHeight)
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// bitsFor returns Ceil(Log2(n)), the fixed-length code size H.265 uses
// for slice_segment_address and tile/RPS index fields.
func bitsFor(n uint32) int {
	bits := 0
	for (uint32(1) << uint(bits)) < n {
		bits++
	}
	return bits
}

// BitsFor exports bitsFor for use by packages that must derive the same
// fixed-length field size for a rewritten picture's slice_segment_address
// (package rewrite).
func BitsFor(n uint32) int { return bitsFor(n) }

// ParseSPS parses an HEVC SPS NAL unit (including its 2-byte NAL header) and
// records it in st, keyed by sps_id. data must already be emulation-stripped.
func ParseSPS(data []byte, st *ParserState) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrNonCompliantBitstream
	}
	r := bitio.NewReader(data)

	if _, err := r.ReadBits(1); err != nil { // forbidden_zero_bit
		return 0, err
	}
	nalType, err := r.ReadBits(6)
	if err != nil {
		return 0, err
	}
	if byte(nalType) != NALSPS {
		return 0, ErrNonCompliantBitstream
	}
	layerIDHigh, err := r.ReadBits(1)
	if err != nil {
		return 0, err
	}
	layerIDLow, err := r.ReadBits(5)
	if err != nil {
		return 0, err
	}
	layerID := uint8(layerIDHigh<<5) | uint8(layerIDLow)
	if _, err := r.ReadBits(3); err != nil { // nuh_temporal_id_plus1
		return 0, err
	}

	if _, err := r.ReadBits(4); err != nil { // sps_video_parameter_set_id
		return 0, err
	}
	maxSubLayersMinus1, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadBits(1); err != nil { // sps_temporal_id_nesting_flag
		return 0, err
	}

	ptl, err := parsePTL(r, true, uint8(maxSubLayersMinus1))
	if err != nil {
		return 0, err
	}

	spsID, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	chromaFormatIdc, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	separateColourPlane := false
	if chromaFormatIdc == 3 {
		flag, err := r.ReadFlag()
		if err != nil {
			return 0, err
		}
		separateColourPlane = flag
	}

	width, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	height, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	confWin, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if confWin {
		for i := 0; i < 4; i++ {
			if _, err := r.ReadUE(); err != nil {
				return 0, err
			}
		}
	}

	bitDepthLuma, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	bitDepthChroma, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	log2MaxPocLsbMinus4, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	subLayerOrderingPresent, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	start := uint8(maxSubLayersMinus1)
	if subLayerOrderingPresent {
		start = 0
	}
	for i := start; i <= uint8(maxSubLayersMinus1); i++ {
		for j := 0; j < 3; j++ {
			if _, err := r.ReadUE(); err != nil {
				return 0, err
			}
		}
	}

	minCbLog2SizeMinus3, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	diffMaxMinCbLog2Size, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	ctbLog2SizeY := (minCbLog2SizeMinus3 + 3) + diffMaxMinCbLog2Size
	maxCUSize := uint32(1) << uint(ctbLog2SizeY)

	if _, err := r.ReadUE(); err != nil { // log2_min_luma_transform_block_size_minus2
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // log2_diff_max_min_luma_transform_block_size
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // max_transform_hierarchy_depth_inter
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // max_transform_hierarchy_depth_intra
		return 0, err
	}

	scalingListEnabled, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if scalingListEnabled {
		scalingListPresent, err := r.ReadFlag()
		if err != nil {
			return 0, err
		}
		if scalingListPresent {
			if err := parseScalingListData(r); err != nil {
				return 0, err
			}
		}
	}

	if _, err := r.ReadFlag(); err != nil { // amp_enabled_flag
		return 0, err
	}
	saoEnabled, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	pcmEnabled, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if pcmEnabled {
		if _, err := r.ReadBits(4); err != nil { // pcm_sample_bit_depth_luma_minus1
			return 0, err
		}
		if _, err := r.ReadBits(4); err != nil { // pcm_sample_bit_depth_chroma_minus1
			return 0, err
		}
		if _, err := r.ReadUE(); err != nil { // log2_min_pcm_luma_coding_block_size_minus3
			return 0, err
		}
		if _, err := r.ReadUE(); err != nil { // log2_diff_max_min_pcm_luma_coding_block_size
			return 0, err
		}
		if _, err := r.ReadFlag(); err != nil { // pcm_loop_filter_disabled_flag
			return 0, err
		}
	}

	numShortTermRefPicSets, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	rpsList := make([]stRefPicSet, 0, numShortTermRefPicSets)
	for i := 0; i < int(numShortTermRefPicSets); i++ {
		rps, err := parseShortTermRefPicSet(r, i, int(numShortTermRefPicSets), rpsList)
		if err != nil {
			return 0, err
		}
		rpsList = append(rpsList, rps)
	}

	longTermPresent, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	var numLongTermRefPicsSPS uint64
	if longTermPresent {
		numLongTermRefPicsSPS, err = r.ReadUE()
		if err != nil {
			return 0, err
		}
		for i := 0; i < int(numLongTermRefPicsSPS); i++ {
			if _, err := r.ReadBits(int(log2MaxPocLsbMinus4) + 4); err != nil { // lt_ref_pic_poc_lsb_sps
				return 0, err
			}
			if _, err := r.ReadFlag(); err != nil { // used_by_curr_pic_lt_sps_flag
				return 0, err
			}
		}
	}

	temporalMvpEnabled, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	// strong_intra_smoothing_enabled_flag and everything past it (VUI,
	// extensions) is irrelevant to tile splitting and is left unparsed.

	sps := &SPS{
		ID:                          uint32(spsID),
		LayerID:                     layerID,
		MaxSubLayersMinus1:          uint8(maxSubLayersMinus1),
		PTL:                         ptl,
		ChromaFormatIDC:             uint32(chromaFormatIdc),
		SeparateColourPlane:         separateColourPlane,
		Width:                       uint32(width),
		Height:                      uint32(height),
		BitDepthLumaMinus8:          uint32(bitDepthLuma),
		BitDepthChromaMinus8:        uint32(bitDepthChroma),
		CtbLog2SizeY:                uint32(ctbLog2SizeY),
		MaxCUWidth:                  maxCUSize,
		MaxCUHeight:                 maxCUSize,
		Log2MaxPicOrderCntLsbMinus4: uint32(log2MaxPocLsbMinus4),
		SampleAdaptiveOffsetEnabled: saoEnabled,
		ShortTermRefPicSets:         rpsList,
		LongTermRefPicsPresent:      longTermPresent,
		NumLongTermRefPicsSPS:       uint32(numLongTermRefPicsSPS),
		TemporalMvpEnabled:          temporalMvpEnabled,
	}
	sps.BitsSliceSegmentAddress = bitsFor(sps.PicWidthInCtbs() * sps.PicHeightInCtbs())
	st.SPS[sps.ID] = sps
	return sps.ID, nil
}
