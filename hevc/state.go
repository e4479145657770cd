package hevc

// ParserState is the NAL parser's shared state: the active SPS/PPS tables
// and the most recently parsed slice header fields. It is an explicit value
// owned by the caller (split.Controller), passed by reference to every
// parse call, never process-wide state.
type ParserState struct {
	SPS map[uint32]*SPS
	PPS map[uint32]*PPS

	// Slice carries the fields derived from the most recently parsed slice
	// segment header. rewrite.SliceHeader consumes these verbatim; it must
	// not re-derive them from the bitstream.
	Slice SliceInfo
}

// NewParserState returns an empty ParserState ready for use.
func NewParserState() *ParserState {
	return &ParserState{
		SPS: make(map[uint32]*SPS),
		PPS: make(map[uint32]*PPS),
	}
}

// SliceInfo holds the per-slice state a NAL parser must populate before
// rewrite.SliceHeader can run.
type SliceInfo struct {
	SPSID                   uint32
	PPSID                   uint32
	FirstSliceSegment       bool
	DependentSliceSegment   bool
	SliceSegmentAddress     uint32
	HeaderSizeBits          int // bit offset just past byte_alignment(), where slice_segment_data() begins
	EntryPointStartBits     int // bit offset of num_entry_point_offsets
	BitsSliceSegmentAddress int // ceil(log2(PicSizeInCtbsY)) for the source picture
}
