package hevc

import "github.com/zsiec/hevcsplit/bitio"

// ParseSliceHeader walks a VCL NAL's slice_segment_header() far enough to
// populate st.Slice, including the two bit offsets rewrite.SliceHeader needs
// to copy the remainder of the header unchanged: HeaderSizeBits (one past
// the byte_alignment() bits, i.e. where slice_segment_data() begins) and
// EntryPointStartBits (the num_entry_point_offsets field position).
// rewrite.SliceHeader consumes these offsets rather than rederiving them.
func ParseSliceHeader(nalType byte, data []byte, st *ParserState) error {
	if len(data) < 3 {
		return ErrNonCompliantBitstream
	}
	r := bitio.NewReader(data)

	if _, err := r.ReadBits(2); err != nil { // forbidden_zero_bit + nal_unit_type (already known)
		return err
	}
	if _, err := r.ReadBits(5); err != nil { // remainder of nal_unit_type field
		return err
	}
	if _, err := r.ReadBits(9); err != nil { // nuh_layer_id + nuh_temporal_id_plus1
		return err
	}

	firstSlice, err := r.ReadFlag()
	if err != nil {
		return err
	}
	if IsRAP(nalType) {
		if _, err := r.ReadFlag(); err != nil { // no_output_of_prior_pics_flag
			return err
		}
	}

	ppsIDv, err := r.ReadUE()
	if err != nil {
		return err
	}
	ppsID := uint32(ppsIDv)
	pps, ok := st.PPS[ppsID]
	if !ok {
		return ErrNonCompliantBitstream
	}
	sps, ok := st.SPS[pps.SPSID]
	if !ok {
		return ErrNonCompliantBitstream
	}

	dependent := false
	address := uint32(0)
	if !firstSlice {
		if pps.DependentSliceSegmentsEnabled {
			dependent, err = r.ReadFlag()
			if err != nil {
				return err
			}
		}
		v, err := r.ReadBits(sps.BitsSliceSegmentAddress)
		if err != nil {
			return err
		}
		address = uint32(v)
	}

	info := SliceInfo{
		SPSID:                   pps.SPSID,
		PPSID:                   ppsID,
		FirstSliceSegment:       firstSlice,
		DependentSliceSegment:   dependent,
		SliceSegmentAddress:     address,
		BitsSliceSegmentAddress: sps.BitsSliceSegmentAddress,
	}

	if !dependent {
		for i := uint32(0); i < pps.NumExtraSliceHeaderBits; i++ {
			if _, err := r.ReadFlag(); err != nil {
				return err
			}
		}
		sliceTypeV, err := r.ReadUE()
		if err != nil {
			return err
		}
		sliceType := int(sliceTypeV) // 0=B, 1=P, 2=I

		if pps.OutputFlagPresent {
			if _, err := r.ReadFlag(); err != nil { // pic_output_flag
				return err
			}
		}
		if sps.SeparateColourPlane {
			if _, err := r.ReadBits(2); err != nil { // colour_plane_id
				return err
			}
		}

		numLongTermUsed := 0
		var curRPS stRefPicSet
		var sliceTemporalMvp bool
		if nalType != NALIDRWDLP && nalType != NALIDRNLP {
			if _, err := r.ReadBits(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4); err != nil { // slice_pic_order_cnt_lsb
				return err
			}
			spsRpsFlag, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if !spsRpsFlag {
				rps, err := parseShortTermRefPicSet(r, len(sps.ShortTermRefPicSets), len(sps.ShortTermRefPicSets), sps.ShortTermRefPicSets)
				if err != nil {
					return err
				}
				curRPS = rps
			} else if len(sps.ShortTermRefPicSets) > 1 {
				idxBits := bitsFor(uint32(len(sps.ShortTermRefPicSets)))
				v, err := r.ReadBits(idxBits)
				if err != nil {
					return err
				}
				curRPS = sps.ShortTermRefPicSets[v]
			} else if len(sps.ShortTermRefPicSets) == 1 {
				curRPS = sps.ShortTermRefPicSets[0]
			}

			if sps.LongTermRefPicsPresent {
				numLongTermSPS := uint64(0)
				if sps.NumLongTermRefPicsSPS > 0 {
					numLongTermSPS, err = r.ReadUE()
					if err != nil {
						return err
					}
				}
				numLongTermPics, err := r.ReadUE()
				if err != nil {
					return err
				}
				ltIdxBits := bitsFor(sps.NumLongTermRefPicsSPS)
				for i := uint64(0); i < numLongTermSPS+numLongTermPics; i++ {
					if i < numLongTermSPS {
						if ltIdxBits > 0 {
							if _, err := r.ReadBits(ltIdxBits); err != nil { // lt_idx_sps
								return err
							}
						}
					} else {
						if _, err := r.ReadBits(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4); err != nil { // poc_lsb_lt
							return err
						}
						used, err := r.ReadFlag() // used_by_curr_pic_lt_flag
						if err != nil {
							return err
						}
						if used {
							numLongTermUsed++
						}
					}
					deltaPocMsbPresent, err := r.ReadFlag()
					if err != nil {
						return err
					}
					if deltaPocMsbPresent {
						if _, err := r.ReadUE(); err != nil { // delta_poc_msb_cycle_lt
							return err
						}
					}
				}
			}
			if sps.TemporalMvpEnabled {
				sliceTemporalMvp, err = r.ReadFlag()
				if err != nil {
					return err
				}
			}
		}

		if sps.SampleAdaptiveOffsetEnabled {
			if _, err := r.ReadFlag(); err != nil { // slice_sao_luma_flag
				return err
			}
			if sps.ChromaArrayType() != 0 {
				if _, err := r.ReadFlag(); err != nil { // slice_sao_chroma_flag
					return err
				}
			}
		}

		numRefIdxL0 := uint64(0)
		numRefIdxL1 := uint64(0)
		if sliceType == 0 || sliceType == 1 { // B or P
			numRefIdxActiveOverride, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if numRefIdxActiveOverride {
				numRefIdxL0, err = r.ReadUE()
				if err != nil {
					return err
				}
				if sliceType == 0 {
					numRefIdxL1, err = r.ReadUE()
					if err != nil {
						return err
					}
				}
			}

			numPicTotal := numPicTotalCurr(curRPS, numLongTermUsed)
			if pps.ListsModificationPresent && numPicTotal > 1 {
				entryBits := bitsFor(uint32(numPicTotal))
				flagL0, err := r.ReadFlag()
				if err != nil {
					return err
				}
				if flagL0 {
					n := numRefIdxL0 + 1
					for i := uint64(0); i < n; i++ {
						if _, err := r.ReadBits(entryBits); err != nil {
							return err
						}
					}
				}
				if sliceType == 0 {
					flagL1, err := r.ReadFlag()
					if err != nil {
						return err
					}
					if flagL1 {
						n := numRefIdxL1 + 1
						for i := uint64(0); i < n; i++ {
							if _, err := r.ReadBits(entryBits); err != nil {
								return err
							}
						}
					}
				}
			}

			if sliceType == 0 {
				if _, err := r.ReadFlag(); err != nil { // mvd_l1_zero_flag
					return err
				}
			}
			if pps.CabacInitPresent {
				if _, err := r.ReadFlag(); err != nil { // cabac_init_flag
					return err
				}
			}
			if sliceTemporalMvp {
				collocatedFromL0 := true
				if sliceType == 0 {
					collocatedFromL0, err = r.ReadFlag()
					if err != nil {
						return err
					}
				}
				needIdx := (collocatedFromL0 && numRefIdxL0 > 0) || (!collocatedFromL0 && sliceType == 0 && numRefIdxL1 > 0)
				if needIdx {
					if _, err := r.ReadUE(); err != nil { // collocated_ref_idx
						return err
					}
				}
			}
			if (pps.WeightedPred && sliceType == 1) || (pps.WeightedBipred && sliceType == 0) {
				if err := parsePredWeightTable(r, sps.ChromaArrayType(), numRefIdxL0+1, numRefIdxL1+1, sliceType == 0); err != nil {
					return err
				}
			}
			if _, err := r.ReadUE(); err != nil { // five_minus_max_num_merge_cand
				return err
			}
		}

		if _, err := r.ReadSE(); err != nil { // slice_qp_delta
			return err
		}
		if pps.SliceChromaQpOffsetsPresent {
			if _, err := r.ReadSE(); err != nil { // slice_cb_qp_offset
				return err
			}
			if _, err := r.ReadSE(); err != nil { // slice_cr_qp_offset
				return err
			}
		}

		sliceDeblockingDisabled := false
		if pps.DeblockingFilterOverrideEnable {
			override, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if override {
				sliceDeblockingDisabled, err = r.ReadFlag()
				if err != nil {
					return err
				}
				if !sliceDeblockingDisabled {
					if _, err := r.ReadSE(); err != nil { // slice_beta_offset_div2
						return err
					}
					if _, err := r.ReadSE(); err != nil { // slice_tc_offset_div2
						return err
					}
				}
			}
		}
		if pps.PPSLoopFilterAcrossSlices {
			if _, err := r.ReadFlag(); err != nil { // slice_loop_filter_across_slices_enabled_flag
				return err
			}
		}
	}

	info.EntryPointStartBits = r.BitPos()
	if pps.TilesEnabled || pps.EntropyCodingSyncEnabled {
		numEntryPointsV, err := r.ReadUE()
		if err != nil {
			return err
		}
		if numEntryPointsV > 0 {
			offsetLenMinus1, err := r.ReadUE()
			if err != nil {
				return err
			}
			for i := uint64(0); i < numEntryPointsV; i++ {
				if _, err := r.ReadBits(int(offsetLenMinus1) + 1); err != nil {
					return err
				}
			}
		}
	}
	if pps.SliceSegmentHeaderExtensionPresent {
		lenV, err := r.ReadUE()
		if err != nil {
			return err
		}
		if _, err := r.ReadBits(int(lenV) * 8); err != nil {
			return err
		}
	}
	if _, err := r.ReadFlag(); err != nil { // byte_alignment(): alignment_bit_equal_to_one
		return err
	}
	r.AlignToByte() // alignment_bit_equal_to_zero, if any
	info.HeaderSizeBits = r.BitPos()

	st.Slice = info
	return nil
}

func parsePredWeightTable(r *bitio.Reader, chromaArrayType uint32, numRefIdxL0, numRefIdxL1 uint64, isB bool) error {
	if _, err := r.ReadUE(); err != nil { // luma_log2_weight_denom
		return err
	}
	if chromaArrayType != 0 {
		if _, err := r.ReadSE(); err != nil { // delta_chroma_log2_weight_denom
			return err
		}
	}

	lists := []uint64{numRefIdxL0}
	if isB {
		lists = append(lists, numRefIdxL1)
	}
	for _, n := range lists {
		lumaFlags := make([]bool, n)
		for i := uint64(0); i < n; i++ {
			f, err := r.ReadFlag()
			if err != nil {
				return err
			}
			lumaFlags[i] = f
		}
		chromaFlags := make([]bool, n)
		if chromaArrayType != 0 {
			for i := uint64(0); i < n; i++ {
				f, err := r.ReadFlag()
				if err != nil {
					return err
				}
				chromaFlags[i] = f
			}
		}
		for i := uint64(0); i < n; i++ {
			if lumaFlags[i] {
				if _, err := r.ReadSE(); err != nil { // delta_luma_weight
					return err
				}
				if _, err := r.ReadSE(); err != nil { // luma_offset
					return err
				}
			}
			if chromaArrayType != 0 && chromaFlags[i] {
				for j := 0; j < 2; j++ {
					if _, err := r.ReadSE(); err != nil { // delta_chroma_weight
						return err
					}
					if _, err := r.ReadSE(); err != nil { // delta_chroma_offset
						return err
					}
				}
			}
		}
	}
	return nil
}
