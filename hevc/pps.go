package hevc

import "github.com/zsiec/hevcsplit/bitio"

// PPS holds the fields of an HEVC Picture Parameter Set the split filter
// needs: the tile grid geometry and the flags that shape slice segment
// header parsing.
type PPS struct {
	ID    uint32
	SPSID uint32

	DependentSliceSegmentsEnabled bool
	OutputFlagPresent             bool
	NumExtraSliceHeaderBits       uint32

	TilesEnabled                 bool
	EntropyCodingSyncEnabled     bool
	NumTileColumnsMinus1         uint32
	NumTileRowsMinus1            uint32
	UniformSpacing               bool
	ColumnWidthMinus1            []uint32
	RowHeightMinus1              []uint32
	LoopFilterAcrossTilesEnabled bool

	CabacInitPresent               bool
	WeightedPred                   bool
	WeightedBipred                 bool
	SliceChromaQpOffsetsPresent    bool
	ListsModificationPresent       bool
	DeblockingFilterOverrideEnable bool
	PPSLoopFilterAcrossSlices      bool

	SliceSegmentHeaderExtensionPresent bool
}

func parseScalingListData(r *bitio.Reader) error {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			predMode, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if !predMode {
				if _, err := r.ReadUE(); err != nil { // scaling_list_pred_matrix_id_delta
					return err
				}
				continue
			}
			coefNum := 64
			if v := 1 << uint(4+sizeID*2); v < coefNum {
				coefNum = v
			}
			if sizeID > 1 {
				if _, err := r.ReadSE(); err != nil { // scaling_list_dc_coef_minus8
					return err
				}
			}
			for i := 0; i < coefNum; i++ {
				if _, err := r.ReadSE(); err != nil { // scaling_list_delta_coef
					return err
				}
			}
		}
	}
	return nil
}

// ParsePPS parses an HEVC PPS NAL unit (including its 2-byte NAL header) and
// records it in st, keyed by pps_id. data must already be emulation-stripped.
func ParsePPS(data []byte, st *ParserState) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrNonCompliantBitstream
	}
	r := bitio.NewReader(data)

	if _, err := r.ReadBits(1); err != nil {
		return 0, err
	}
	nalType, err := r.ReadBits(6)
	if err != nil {
		return 0, err
	}
	if byte(nalType) != NALPPS {
		return 0, ErrNonCompliantBitstream
	}
	if _, err := r.ReadBits(9); err != nil { // nuh_layer_id + nuh_temporal_id_plus1
		return 0, err
	}

	ppsID, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	spsID, err := r.ReadUE()
	if err != nil {
		return 0, err
	}

	p := &PPS{ID: uint32(ppsID), SPSID: uint32(spsID)}

	p.DependentSliceSegmentsEnabled, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	p.OutputFlagPresent, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	extraBits, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	p.NumExtraSliceHeaderBits = uint32(extraBits)

	if _, err := r.ReadFlag(); err != nil { // sign_data_hiding_enabled_flag
		return 0, err
	}
	p.CabacInitPresent, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // num_ref_idx_l0_default_active_minus1
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // num_ref_idx_l1_default_active_minus1
		return 0, err
	}
	if _, err := r.ReadSE(); err != nil { // init_qp_minus26
		return 0, err
	}
	if _, err := r.ReadFlag(); err != nil { // constrained_intra_pred_flag
		return 0, err
	}
	if _, err := r.ReadFlag(); err != nil { // transform_skip_enabled_flag
		return 0, err
	}
	cuQpDeltaEnabled, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if cuQpDeltaEnabled {
		if _, err := r.ReadUE(); err != nil { // diff_cu_qp_delta_depth
			return 0, err
		}
	}
	if _, err := r.ReadSE(); err != nil { // pps_cb_qp_offset
		return 0, err
	}
	if _, err := r.ReadSE(); err != nil { // pps_cr_qp_offset
		return 0, err
	}
	p.SliceChromaQpOffsetsPresent, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	p.WeightedPred, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	p.WeightedBipred, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadFlag(); err != nil { // transquant_bypass_enabled_flag
		return 0, err
	}

	p.TilesEnabled, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	p.EntropyCodingSyncEnabled, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}

	if p.TilesEnabled {
		cols, err := r.ReadUE()
		if err != nil {
			return 0, err
		}
		rows, err := r.ReadUE()
		if err != nil {
			return 0, err
		}
		p.NumTileColumnsMinus1 = uint32(cols)
		p.NumTileRowsMinus1 = uint32(rows)

		p.UniformSpacing, err = r.ReadFlag()
		if err != nil {
			return 0, err
		}
		if !p.UniformSpacing {
			p.ColumnWidthMinus1 = make([]uint32, cols)
			for i := uint64(0); i < cols; i++ {
				v, err := r.ReadUE()
				if err != nil {
					return 0, err
				}
				p.ColumnWidthMinus1[i] = uint32(v)
			}
			p.RowHeightMinus1 = make([]uint32, rows)
			for i := uint64(0); i < rows; i++ {
				v, err := r.ReadUE()
				if err != nil {
					return 0, err
				}
				p.RowHeightMinus1[i] = uint32(v)
			}
		}
		p.LoopFilterAcrossTilesEnabled, err = r.ReadFlag()
		if err != nil {
			return 0, err
		}
	}

	p.PPSLoopFilterAcrossSlices, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	deblockCtl, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if deblockCtl {
		p.DeblockingFilterOverrideEnable, err = r.ReadFlag()
		if err != nil {
			return 0, err
		}
		disabled, err := r.ReadFlag()
		if err != nil {
			return 0, err
		}
		if !disabled {
			if _, err := r.ReadSE(); err != nil { // pps_beta_offset_div2
				return 0, err
			}
			if _, err := r.ReadSE(); err != nil { // pps_tc_offset_div2
				return 0, err
			}
		}
	}
	scalingListPresent, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if scalingListPresent {
		if err := parseScalingListData(r); err != nil {
			return 0, err
		}
	}
	p.ListsModificationPresent, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // log2_parallel_merge_level_minus2
		return 0, err
	}
	p.SliceSegmentHeaderExtensionPresent, err = r.ReadFlag()
	if err != nil {
		return 0, err
	}

	st.PPS[p.ID] = p
	return p.ID, nil
}
