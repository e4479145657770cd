package rewrite

import (
	"github.com/zsiec/hevcsplit/bitio"
	"github.com/zsiec/hevcsplit/hevc"
)

// PPS rewrites a PPS NAL unit to disable tiling: tiles_enabled_flag is
// forced to 0 and the tile grid fields (column/row counts, spacing,
// per-tile sizes) are dropped, since each tile sub-bitstream is its own,
// untiled picture.
func PPS(data []byte) ([]byte, error) {
	r := bitio.NewReader(data)
	w := bitio.NewWriter()

	if err := copyBits(r, w, 16); err != nil { // NAL header
		return nil, err
	}
	if err := copyUE(r, w); err != nil { // pps_pic_parameter_set_id
		return nil, err
	}
	if err := copyUE(r, w); err != nil { // pps_seq_parameter_set_id
		return nil, err
	}
	if err := copyBits(r, w, 7); err != nil { // dependent_slice_segments_enabled_flag .. cabac_init_present_flag
		return nil, err
	}
	if err := copyUE(r, w); err != nil { // num_ref_idx_l0_default_active_minus1
		return nil, err
	}
	if err := copyUE(r, w); err != nil { // num_ref_idx_l1_default_active_minus1
		return nil, err
	}
	if err := copySE(r, w); err != nil { // init_qp_minus26
		return nil, err
	}
	if err := copyBits(r, w, 2); err != nil { // constrained_intra_pred_flag, transform_skip_enabled_flag
		return nil, err
	}
	cuQpDeltaEnabled, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	w.WriteFlag(cuQpDeltaEnabled)
	if cuQpDeltaEnabled {
		if err := copyUE(r, w); err != nil { // diff_cu_qp_delta_depth
			return nil, err
		}
	}
	if err := copySE(r, w); err != nil { // pps_cb_qp_offset
		return nil, err
	}
	if err := copySE(r, w); err != nil { // pps_cr_qp_offset
		return nil, err
	}
	if err := copyBits(r, w, 4); err != nil { // slice_chroma_qp_offsets_present .. transquant_bypass_enabled_flag
		return nil, err
	}

	tilesEnabled, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	w.WriteFlag(false)
	if err := copyBits(r, w, 1); err != nil { // entropy_coding_sync_enabled_flag
		return nil, err
	}
	if tilesEnabled {
		numColsMinus1, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		numRowsMinus1, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		uniform, err := r.ReadFlag()
		if err != nil {
			return nil, err
		}
		if !uniform {
			for i := uint64(0); i < numColsMinus1; i++ {
				if _, err := r.ReadUE(); err != nil {
					return nil, err
				}
			}
			for i := uint64(0); i < numRowsMinus1; i++ {
				if _, err := r.ReadUE(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := r.ReadFlag(); err != nil { // loop_filter_across_tiles_enabled_flag
			return nil, err
		}
	}

	if err := copyBits(r, w, 1); err != nil { // pps_loop_filter_across_slices_enabled_flag
		return nil, err
	}

	if err := copyTail(r, w); err != nil {
		return nil, err
	}
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes()), nil
}
