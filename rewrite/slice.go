package rewrite

import (
	"github.com/zsiec/hevcsplit/bitio"
	"github.com/zsiec/hevcsplit/hevc"
)

// writeByteAlignment emits byte_alignment(): one bit equal to one, then zero
// bits up to the next byte boundary (always at least one bit, even if w is
// already aligned).
func writeByteAlignment(w *bitio.Writer) {
	w.WriteFlag(true)
	w.AlignToByte()
}

// SliceHeader rewrites a VCL NAL's slice segment header so the slice
// addresses newAddress within a picture of newPicWidthInCtbs x
// newPicHeightInCtbs CTBs — the tile's own sub-bitstream, extracted as a
// standalone picture. st.Slice must hold the fields ParseSliceHeader derived
// from this same NAL (SPSID/PPSID, the original first_slice_segment_in_pic
// and dependent_slice_segment flags, the original slice_segment_address and
// its bit width, and the two bit offsets EntryPointStartBits/HeaderSizeBits).
// num_entry_point_offsets is forced to 0 since each tile's entry points are
// meaningless once it is its own picture; slice_segment_header_extension, if
// present, is forced to length 0.
func SliceHeader(nalType byte, data []byte, st *hevc.ParserState, newAddress uint32, newPicWidthInCtbs, newPicHeightInCtbs uint32) ([]byte, error) {
	info := st.Slice
	pps, ok := st.PPS[info.PPSID]
	if !ok {
		return nil, hevc.ErrNonCompliantBitstream
	}

	r := bitio.NewReader(data)
	w := bitio.NewWriter()

	if err := copyBits(r, w, 16); err != nil { // NAL header
		return nil, err
	}

	if _, err := r.ReadFlag(); err != nil { // discard original first_slice_segment_in_pic_flag
		return nil, err
	}
	newFirstSlice := newAddress == 0
	w.WriteFlag(newFirstSlice)

	if hevc.IsRAP(nalType) {
		if err := copyBits(r, w, 1); err != nil { // no_output_of_prior_pics_flag
			return nil, err
		}
	}

	if err := copyUE(r, w); err != nil { // slice_pic_parameter_set_id
		return nil, err
	}

	if !info.FirstSliceSegment {
		if pps.DependentSliceSegmentsEnabled {
			if _, err := r.ReadFlag(); err != nil { // discard original dependent_slice_segment_flag
				return nil, err
			}
		}
		if _, err := r.ReadBits(info.BitsSliceSegmentAddress); err != nil { // discard original slice_segment_address
			return nil, err
		}
	}
	if !newFirstSlice {
		if pps.DependentSliceSegmentsEnabled {
			w.WriteFlag(info.DependentSliceSegment)
		}
		newBits := hevc.BitsFor(newPicWidthInCtbs * newPicHeightInCtbs)
		w.WriteBits(uint64(newAddress), newBits)
	}

	for r.BitPos() < info.EntryPointStartBits {
		if err := copyBits(r, w, 1); err != nil {
			return nil, err
		}
	}

	w.WriteUE(0) // num_entry_point_offsets: the tile has no entry points of its own
	if pps.SliceSegmentHeaderExtensionPresent {
		w.WriteUE(0) // slice_segment_header_extension_length
	}
	for r.BitPos() < info.HeaderSizeBits {
		if _, err := r.ReadBit(); err != nil {
			return nil, err
		}
	}

	writeByteAlignment(w)
	if err := copyTail(r, w); err != nil { // raw slice_segment_data(), verbatim
		return nil, err
	}
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes()), nil
}
