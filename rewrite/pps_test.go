package rewrite

import (
	"bytes"
	"testing"

	"github.com/zsiec/hevcsplit/bitio"
	"github.com/zsiec/hevcsplit/hevc"
)

// buildPPS encodes a minimal PPS RBSP (emulation-stripped), optionally with a
// uniform-spacing tile grid, enough for hevc.ParsePPS to fully populate an
// *hevc.PPS.
func buildPPS(ppsID, spsID uint32, tilesEnabled bool, tileCols, tileRows uint32) []byte {
	w := bitio.NewWriter()
	w.WriteBits(0, 1)  // forbidden_zero_bit
	w.WriteBits(34, 6) // nal_unit_type = PPS
	w.WriteBits(0, 9)  // nuh_layer_id (6) + nuh_temporal_id_plus1 (3)

	w.WriteUE(uint64(ppsID))
	w.WriteUE(uint64(spsID))
	w.WriteFlag(false) // dependent_slice_segments_enabled_flag
	w.WriteFlag(false) // output_flag_present_flag
	w.WriteBits(0, 3)  // num_extra_slice_header_bits
	w.WriteFlag(false) // sign_data_hiding_enabled_flag
	w.WriteFlag(false) // cabac_init_present_flag
	w.WriteUE(0)       // num_ref_idx_l0_default_active_minus1
	w.WriteUE(0)       // num_ref_idx_l1_default_active_minus1
	w.WriteSE(0)       // init_qp_minus26
	w.WriteFlag(false) // constrained_intra_pred_flag
	w.WriteFlag(false) // transform_skip_enabled_flag
	w.WriteFlag(false) // cu_qp_delta_enabled_flag
	w.WriteSE(0)       // pps_cb_qp_offset
	w.WriteSE(0)       // pps_cr_qp_offset
	w.WriteFlag(false) // slice_chroma_qp_offsets_present_flag
	w.WriteFlag(false) // weighted_pred_flag
	w.WriteFlag(false) // weighted_bipred_flag
	w.WriteFlag(false) // transquant_bypass_enabled_flag

	w.WriteFlag(tilesEnabled)
	w.WriteFlag(false) // entropy_coding_sync_enabled_flag
	if tilesEnabled {
		w.WriteUE(uint64(tileCols - 1))
		w.WriteUE(uint64(tileRows - 1))
		w.WriteFlag(true)  // uniform_spacing_flag
		w.WriteFlag(false) // loop_filter_across_tiles_enabled_flag
	}

	w.WriteFlag(true)  // pps_loop_filter_across_slices_enabled_flag
	w.WriteFlag(false) // deblocking_filter_control_present_flag
	w.WriteFlag(false) // pps_scaling_list_data_present_flag
	w.WriteFlag(false) // lists_modification_present_flag
	w.WriteUE(0)        // log2_parallel_merge_level_minus2
	w.WriteFlag(false) // slice_segment_header_extension_present_flag

	w.WriteFlag(true) // rbsp_trailing_bits stop bit
	w.AlignToByte()
	return w.Bytes()
}

func TestPPSDisablesTiles(t *testing.T) {
	t.Parallel()
	orig := buildPPS(0, 0, true, 4, 2)

	out, err := PPS(orig)
	if err != nil {
		t.Fatalf("PPS() error: %v", err)
	}

	st := hevc.NewParserState()
	if _, err := hevc.ParsePPS(hevc.StripEmulation(out), st); err != nil {
		t.Fatalf("re-parsing rewritten PPS: %v", err)
	}
	pps := st.PPS[0]
	if pps.TilesEnabled {
		t.Error("rewritten PPS still has tiles_enabled_flag set")
	}
	if !pps.PPSLoopFilterAcrossSlices {
		t.Error("pps_loop_filter_across_slices_enabled_flag not preserved")
	}
}

// TestPPSGridlessIsIdentity: a PPS with no tile grid has nothing for the
// rewrite to change, so the output must be byte-identical to the input.
func TestPPSGridlessIsIdentity(t *testing.T) {
	t.Parallel()
	orig := buildPPS(0, 0, false, 0, 0)

	out, err := PPS(orig)
	if err != nil {
		t.Fatalf("PPS() error: %v", err)
	}
	if !bytes.Equal(out, orig) {
		t.Errorf("gridless PPS changed by rewrite:\n in: %x\nout: %x", orig, out)
	}
}

func TestPPSPreservesNonTileFields(t *testing.T) {
	t.Parallel()
	orig := buildPPS(2, 1, false, 0, 0)

	out, err := PPS(orig)
	if err != nil {
		t.Fatalf("PPS() error: %v", err)
	}

	st := hevc.NewParserState()
	id, err := hevc.ParsePPS(hevc.StripEmulation(out), st)
	if err != nil {
		t.Fatalf("re-parsing rewritten PPS: %v", err)
	}
	if id != 2 {
		t.Fatalf("pps_id = %d, want 2", id)
	}
	pps := st.PPS[id]
	if pps.SPSID != 1 {
		t.Errorf("sps_id = %d, want 1", pps.SPSID)
	}
	if pps.TilesEnabled {
		t.Error("tiles_enabled_flag set on an already-untiled PPS")
	}
}
