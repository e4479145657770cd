// Package rewrite edits HEVC SPS, PPS, and slice-segment-header NAL units in
// place of re-encoding: each function copies the source RBSP bit-for-bit
// over a bitio.Reader/bitio.Writer pair except for the specific fields the
// tile split changes (picture dimensions, tile grid presence,
// slice_segment_address).
package rewrite

import (
	"github.com/zsiec/hevcsplit/bitio"
	"github.com/zsiec/hevcsplit/hevc"
)

func copyBits(r *bitio.Reader, w *bitio.Writer, n int) error {
	v, err := r.ReadBits(n)
	if err != nil {
		return err
	}
	w.WriteBits(v, n)
	return nil
}

func copyUE(r *bitio.Reader, w *bitio.Writer) error {
	v, err := r.ReadUE()
	if err != nil {
		return err
	}
	w.WriteUE(v)
	return nil
}

func copySE(r *bitio.Reader, w *bitio.Writer) error {
	v, err := r.ReadSE()
	if err != nil {
		return err
	}
	w.WriteSE(v)
	return nil
}

// copyTail copies every bit remaining in r to w: first whatever bits
// remain in r's current (partial) byte, then whole bytes verbatim, until r
// is exhausted. w need not be byte-aligned; WriteBits handles that.
func copyTail(r *bitio.Reader, w *bitio.Writer) error {
	for !r.ByteAligned() {
		if err := copyBits(r, w, 1); err != nil {
			return err
		}
	}
	for r.BitsLeft() >= 8 {
		if err := copyBits(r, w, 8); err != nil {
			return err
		}
	}
	for r.BitsLeft() > 0 {
		if err := copyBits(r, w, 1); err != nil {
			return err
		}
	}
	return nil
}

func copyProfileTierLevel(r *bitio.Reader, w *bitio.Writer, profilePresent bool, maxNumSubLayersMinus1 uint8) error {
	subProfilePresent := make([]bool, 8)
	subLevelPresent := make([]bool, 8)

	if profilePresent {
		if err := copyBits(r, w, 2); err != nil { // general_profile_space
			return err
		}
		if err := copyBits(r, w, 1); err != nil { // general_tier_flag
			return err
		}
		if err := copyBits(r, w, 5); err != nil { // general_profile_idc
			return err
		}
		if err := copyBits(r, w, 32); err != nil { // general_profile_compatibility_flags
			return err
		}
		if err := copyBits(r, w, 48); err != nil { // general_constraint_indicator_flags
			return err
		}
	}
	if err := copyBits(r, w, 8); err != nil { // general_level_idc
		return err
	}

	for j := uint8(0); j < maxNumSubLayersMinus1; j++ {
		f, err := r.ReadFlag()
		if err != nil {
			return err
		}
		subProfilePresent[j] = f
		w.WriteFlag(f)
		l, err := r.ReadFlag()
		if err != nil {
			return err
		}
		subLevelPresent[j] = l
		w.WriteFlag(l)
	}
	if maxNumSubLayersMinus1 > 0 {
		for j := maxNumSubLayersMinus1; j < 8; j++ {
			if err := copyBits(r, w, 2); err != nil {
				return err
			}
		}
	}
	for j := uint8(0); j < maxNumSubLayersMinus1; j++ {
		if subProfilePresent[j] {
			if err := copyBits(r, w, 8); err != nil {
				return err
			}
			if err := copyBits(r, w, 32); err != nil {
				return err
			}
			if err := copyBits(r, w, 4); err != nil {
				return err
			}
			if err := copyBits(r, w, 44); err != nil {
				return err
			}
		}
		if subLevelPresent[j] {
			if err := copyBits(r, w, 8); err != nil {
				return err
			}
		}
	}
	return nil
}

// SPS rewrites an SPS NAL unit (including its 2-byte header) so it
// describes a picture of size newWidth x newHeight, dropping any
// conformance window (the tile's pixel rectangle is already exact). data
// must be emulation-stripped; the result has emulation-prevention bytes
// re-added.
func SPS(data []byte, newWidth, newHeight uint32) ([]byte, error) {
	r := bitio.NewReader(data)
	w := bitio.NewWriter()

	if err := copyBits(r, w, 7); err != nil { // forbidden_zero_bit + nal_unit_type
		return nil, err
	}
	layerIDBits, err := r.ReadBits(6)
	if err != nil {
		return nil, err
	}
	w.WriteBits(layerIDBits, 6)
	layerID := uint8(layerIDBits)
	if err := copyBits(r, w, 3); err != nil { // nuh_temporal_id_plus1
		return nil, err
	}

	if err := copyBits(r, w, 4); err != nil { // sps_video_parameter_set_id
		return nil, err
	}

	maxSubLayersMinus1 := uint8(0)
	extOrMaxSubLayers := uint64(0)
	if layerID == 0 {
		v, err := r.ReadBits(3)
		if err != nil {
			return nil, err
		}
		maxSubLayersMinus1 = uint8(v)
		w.WriteBits(v, 3)
	} else {
		v, err := r.ReadBits(3)
		if err != nil {
			return nil, err
		}
		extOrMaxSubLayers = v
		w.WriteBits(v, 3)
	}
	multiLayerExt := layerID != 0 && extOrMaxSubLayers == 7

	if !multiLayerExt {
		if err := copyBits(r, w, 1); err != nil { // sps_temporal_id_nesting_flag
			return nil, err
		}
		if err := copyProfileTierLevel(r, w, true, maxSubLayersMinus1); err != nil {
			return nil, err
		}
	}

	if err := copyUE(r, w); err != nil { // sps_seq_parameter_set_id
		return nil, err
	}

	if multiLayerExt {
		updateRepFormat, err := r.ReadFlag()
		if err != nil {
			return nil, err
		}
		w.WriteFlag(updateRepFormat)
		if updateRepFormat {
			if err := copyBits(r, w, 8); err != nil {
				return nil, err
			}
		}
	} else {
		chromaFormatIdc, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		w.WriteUE(chromaFormatIdc)
		if chromaFormatIdc == 3 {
			if err := copyBits(r, w, 1); err != nil { // separate_colour_plane_flag
				return nil, err
			}
		}

		if _, err := r.ReadUE(); err != nil { // discard original pic_width_in_luma_samples
			return nil, err
		}
		if _, err := r.ReadUE(); err != nil { // discard original pic_height_in_luma_samples
			return nil, err
		}
		w.WriteUE(uint64(newWidth))
		w.WriteUE(uint64(newHeight))

		confWindow, err := r.ReadFlag()
		if err != nil {
			return nil, err
		}
		w.WriteFlag(false) // the tile's rectangle needs no conformance cropping
		if confWindow {
			for i := 0; i < 4; i++ {
				if _, err := r.ReadUE(); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := copyTail(r, w); err != nil {
		return nil, err
	}
	w.AlignToByte()
	return hevc.AddEmulation(w.Bytes()), nil
}
