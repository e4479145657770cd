package split

import (
	"github.com/zsiec/hevcsplit/bitio"
	"github.com/zsiec/hevcsplit/hevc"
)

// buildVPS encodes a minimal VPS RBSP: only the NAL header and a stop bit
// matter here, since the split filter passes VPS through unchanged.
func buildVPS() []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint64(hevc.NALVPS), 6)
	w.WriteBits(0, 9) // nuh_layer_id + nuh_temporal_id_plus1
	w.WriteFlag(true) // rbsp_trailing_bits stop bit
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes())
}

// buildSPS encodes a minimal single-layer SPS RBSP good enough for
// hevc.ParseSPS: 64x64 CTBs (log2_min_luma_coding_block_size_minus3=0,
// log2_diff_max_min_luma_coding_block_size=3), no conformance window, no
// short/long-term reference picture sets, SAO disabled.
func buildSPS(width, height uint32) []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint64(hevc.NALSPS), 6)
	w.WriteBits(0, 1)
	w.WriteBits(0, 5)
	w.WriteBits(1, 3)

	w.WriteBits(0, 4) // sps_video_parameter_set_id
	w.WriteBits(0, 3) // sps_max_sub_layers_minus1
	w.WriteBits(1, 1) // sps_temporal_id_nesting_flag

	w.WriteBits(0, 2)
	w.WriteBits(0, 1)
	w.WriteBits(1, 5)
	w.WriteBits(0, 32)
	w.WriteBits(0, 48)
	w.WriteU8(93)

	w.WriteUE(0) // sps_seq_parameter_set_id
	w.WriteUE(1) // chroma_format_idc
	w.WriteUE(uint64(width))
	w.WriteUE(uint64(height))
	w.WriteFlag(false) // conformance_window_flag

	w.WriteUE(0) // bit_depth_luma_minus8
	w.WriteUE(0) // bit_depth_chroma_minus8
	w.WriteUE(4) // log2_max_pic_order_cnt_lsb_minus4
	w.WriteFlag(false)
	w.WriteUE(4)
	w.WriteUE(0)
	w.WriteUE(0)

	w.WriteUE(0) // log2_min_luma_coding_block_size_minus3
	w.WriteUE(3) // log2_diff_max_min_luma_coding_block_size -> 64x64 CTBs
	w.WriteUE(0)
	w.WriteUE(2)
	w.WriteUE(0)
	w.WriteUE(0)

	w.WriteFlag(false) // scaling_list_enabled_flag
	w.WriteFlag(false) // amp_enabled_flag
	w.WriteFlag(false) // sample_adaptive_offset_enabled_flag
	w.WriteFlag(false) // pcm_enabled_flag

	w.WriteUE(0) // num_short_term_ref_pic_sets
	w.WriteFlag(false) // long_term_ref_pics_present_flag
	w.WriteFlag(false) // sps_temporal_mvp_enabled_flag

	w.WriteFlag(true) // rbsp_trailing_bits stop bit
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes())
}

// buildPPS encodes a minimal tiled PPS good enough for hevc.ParsePPS. With
// dependent slice segments, weighted prediction, deblocking override, loop
// filter across slices, and the header extension all disabled, slice headers
// referencing it need only first_slice_segment_in_pic_flag,
// slice_segment_address, slice_type, slice_qp_delta, and (because tiles are
// enabled) num_entry_point_offsets.
func buildPPS(tileCols, tileRows uint32) []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint64(hevc.NALPPS), 6)
	w.WriteBits(0, 9)

	w.WriteUE(0) // pps_pic_parameter_set_id
	w.WriteUE(0) // pps_seq_parameter_set_id
	w.WriteFlag(false) // dependent_slice_segments_enabled_flag
	w.WriteFlag(false) // output_flag_present_flag
	w.WriteBits(0, 3)  // num_extra_slice_header_bits
	w.WriteFlag(false) // sign_data_hiding_enabled_flag
	w.WriteFlag(false) // cabac_init_present_flag
	w.WriteUE(0)
	w.WriteUE(0)
	w.WriteSE(0)
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteFlag(false) // cu_qp_delta_enabled_flag
	w.WriteSE(0)
	w.WriteSE(0)
	w.WriteFlag(false) // slice_chroma_qp_offsets_present_flag
	w.WriteFlag(false) // weighted_pred_flag
	w.WriteFlag(false) // weighted_bipred_flag
	w.WriteFlag(false) // transquant_bypass_enabled_flag

	w.WriteFlag(true)  // tiles_enabled_flag
	w.WriteFlag(false) // entropy_coding_sync_enabled_flag
	w.WriteUE(uint64(tileCols - 1))
	w.WriteUE(uint64(tileRows - 1))
	w.WriteFlag(true)  // uniform_spacing_flag
	w.WriteFlag(false) // loop_filter_across_tiles_enabled_flag

	w.WriteFlag(false) // pps_loop_filter_across_slices_enabled_flag
	w.WriteFlag(false) // deblocking_filter_control_present_flag
	w.WriteFlag(false) // pps_scaling_list_data_present_flag
	w.WriteFlag(false) // lists_modification_present_flag
	w.WriteUE(0)        // log2_parallel_merge_level_minus2
	w.WriteFlag(false) // slice_segment_header_extension_present_flag

	w.WriteFlag(true) // rbsp_trailing_bits stop bit
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes())
}

// buildSlice encodes a minimal IDR I-slice NAL referencing pps_id 0,
// addressed at address (within a picture whose slice_segment_address field
// is bitsAddr bits wide), followed by payload as a stand-in for
// slice_segment_data(). Matches the buildPPS/buildSPS fixtures above: tiles
// enabled (so num_entry_point_offsets is present), everything else minimal.
func buildSlice(first bool, address uint32, bitsAddr int, payload []byte) []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint64(hevc.NALIDRWDLP), 6)
	w.WriteBits(0, 1)
	w.WriteBits(0, 5)
	w.WriteBits(1, 3)

	w.WriteFlag(first)
	w.WriteFlag(false) // no_output_of_prior_pics_flag (IDR is a RAP)
	w.WriteUE(0)        // slice_pic_parameter_set_id
	if !first {
		w.WriteBits(uint64(address), bitsAddr)
	}
	w.WriteUE(2) // slice_type = I
	w.WriteSE(0) // slice_qp_delta
	w.WriteUE(0) // num_entry_point_offsets (PPS has tiles_enabled_flag=1)

	w.WriteFlag(true) // byte_alignment(): alignment_bit_equal_to_one
	w.AlignToByte()

	out := append(w.Bytes(), payload...)
	return hevc.AddEmulation(out)
}

// buildAUD encodes a minimal AUD NAL (type 35).
func buildAUD() []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint64(hevc.NALAUD), 6)
	w.WriteBits(0, 6) // nuh_layer_id
	w.WriteBits(1, 3) // nuh_temporal_id_plus1 (0 is forbidden)
	w.WriteBits(0, 3) // pic_type
	w.WriteFlag(true)
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes())
}

// buildConfig assembles an hvcC record carrying one VPS, SPS, and PPS NALU
// each, with a 4-byte NAL length size.
func buildConfig(vps, sps, pps []byte) []byte {
	cfg := &hevc.Config{
		ConfigurationVersion: 1,
		LengthSizeMinusOne:   3,
		Arrays: []hevc.ConfigNalu{
			{ArrayCompleteness: true, NALUnitType: hevc.NALVPS, NALUs: [][]byte{vps}},
			{ArrayCompleteness: true, NALUnitType: hevc.NALSPS, NALUs: [][]byte{sps}},
			{ArrayCompleteness: true, NALUnitType: hevc.NALPPS, NALUs: [][]byte{pps}},
		},
	}
	return cfg.Serialize()
}

// buildAU length-prefixes each nal with a 4-byte length and concatenates
// them into one access unit buffer.
func buildAU(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = append(out, byte(len(n)>>24), byte(len(n)>>16), byte(len(n)>>8), byte(len(n)))
		out = append(out, n...)
	}
	return out
}
