package hevc

import "encoding/binary"

// ConfigNalu is one hvcC NAL unit array: every NAL unit of one type, each
// stored length-prefixed in the serialized record.
type ConfigNalu struct {
	ArrayCompleteness bool
	NALUnitType       uint8
	NALUs             [][]byte
}

// Config is an HEVC decoder configuration record (ISO/IEC 14496-15 8.3.3.1,
// "hvcC"), the opaque codec-config blob the filter graph host hands the
// split filter at PID configuration time. Field layout grounded on
// go-webdl-media-codec's HEVCDecoderConfigurationRecord; NaluArrays here is
// renamed Arrays to match this module's naming.
type Config struct {
	ConfigurationVersion uint8
	PTL                  PTL
	MinSpatialSegIDC     uint16
	ParallelismType      uint8
	ChromaFormatIDC      uint8
	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8
	AvgFrameRate         uint16
	ConstantFrameRate    uint8
	NumTemporalLayers    uint8
	TemporalIDNested     uint8
	LengthSizeMinusOne   uint8
	Arrays               []ConfigNalu
}

// ParseConfig decodes a raw hvcC byte buffer.
func ParseConfig(data []byte) (*Config, error) {
	if len(data) < 23 {
		return nil, ErrNonCompliantBitstream
	}
	c := &Config{
		ConfigurationVersion: data[0],
		PTL: PTL{
			GeneralProfileSpace:              data[1] >> 6,
			GeneralTierFlag:                  (data[1]>>5)&0x1 != 0,
			GeneralProfileIDC:                data[1] & 0x1F,
			GeneralProfileCompatibilityFlags: binary.BigEndian.Uint32(data[2:6]),
			GeneralConstraintIndicatorFlags:  uint64(data[6])<<40 | uint64(data[7])<<32 | uint64(data[8])<<24 | uint64(data[9])<<16 | uint64(data[10])<<8 | uint64(data[11]),
			GeneralLevelIDC:                  data[12],
		},
		MinSpatialSegIDC:     uint16(data[13]&0x0F)<<8 | uint16(data[14]),
		ParallelismType:      data[15] & 0x3,
		ChromaFormatIDC:      data[16] & 0x3,
		BitDepthLumaMinus8:   data[17] & 0x7,
		BitDepthChromaMinus8: data[18] & 0x7,
		AvgFrameRate:         binary.BigEndian.Uint16(data[19:21]),
		ConstantFrameRate:    data[21] >> 6,
		NumTemporalLayers:    (data[21] >> 3) & 0x7,
		TemporalIDNested:     (data[21] >> 2) & 0x1,
		LengthSizeMinusOne:   data[21] & 0x3,
	}
	numArrays := data[22]
	i := 23
	for a := uint8(0); a < numArrays; a++ {
		if i+3 > len(data) {
			return nil, ErrNonCompliantBitstream
		}
		arr := ConfigNalu{
			ArrayCompleteness: data[i]>>7 != 0,
			NALUnitType:       data[i] & 0x3F,
		}
		numNalus := int(binary.BigEndian.Uint16(data[i+1 : i+3]))
		i += 3
		for n := 0; n < numNalus; n++ {
			if i+2 > len(data) {
				return nil, ErrNonCompliantBitstream
			}
			length := int(binary.BigEndian.Uint16(data[i : i+2]))
			i += 2
			if i+length > len(data) {
				return nil, ErrNonCompliantBitstream
			}
			arr.NALUs = append(arr.NALUs, data[i:i+length])
			i += length
		}
		c.Arrays = append(c.Arrays, arr)
	}
	return c, nil
}

// Serialize re-encodes the record, e.g. after the SPS/PPS NALUs it carries
// were rewritten for a tile sub-bitstream.
func (c *Config) Serialize() []byte {
	out := make([]byte, 23)
	out[0] = c.ConfigurationVersion
	out[1] = (c.PTL.GeneralProfileSpace << 6) | (c.PTL.GeneralProfileIDC & 0x1F)
	if c.PTL.GeneralTierFlag {
		out[1] |= 0x20
	}
	binary.BigEndian.PutUint32(out[2:6], c.PTL.GeneralProfileCompatibilityFlags)
	out[6] = byte(c.PTL.GeneralConstraintIndicatorFlags >> 40)
	out[7] = byte(c.PTL.GeneralConstraintIndicatorFlags >> 32)
	out[8] = byte(c.PTL.GeneralConstraintIndicatorFlags >> 24)
	out[9] = byte(c.PTL.GeneralConstraintIndicatorFlags >> 16)
	out[10] = byte(c.PTL.GeneralConstraintIndicatorFlags >> 8)
	out[11] = byte(c.PTL.GeneralConstraintIndicatorFlags)
	out[12] = c.PTL.GeneralLevelIDC
	binary.BigEndian.PutUint16(out[13:15], c.MinSpatialSegIDC|(0xF<<12))
	out[15] = c.ParallelismType | 0xFC
	out[16] = c.ChromaFormatIDC | 0xFC
	out[17] = c.BitDepthLumaMinus8 | 0xF8
	out[18] = c.BitDepthChromaMinus8 | 0xF8
	binary.BigEndian.PutUint16(out[19:21], c.AvgFrameRate)
	out[21] = (c.ConstantFrameRate << 6) | (c.NumTemporalLayers&0x7)<<3 | (c.TemporalIDNested&0x1)<<2 | (c.LengthSizeMinusOne & 0x3)
	out[22] = byte(len(c.Arrays))

	for _, arr := range c.Arrays {
		hdr := arr.NALUnitType & 0x3F
		if arr.ArrayCompleteness {
			hdr |= 0x80
		}
		numBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(numBuf, uint16(len(arr.NALUs)))
		out = append(out, hdr)
		out = append(out, numBuf...)
		for _, nalu := range arr.NALUs {
			lenBuf := make([]byte, 2)
			binary.BigEndian.PutUint16(lenBuf, uint16(len(nalu)))
			out = append(out, lenBuf...)
			out = append(out, nalu...)
		}
	}
	return out
}

// FindArray returns the first array of the given NAL unit type, if any.
func (c *Config) FindArray(nalType uint8) (*ConfigNalu, bool) {
	for i := range c.Arrays {
		if c.Arrays[i].NALUnitType == nalType {
			return &c.Arrays[i], true
		}
	}
	return nil, false
}
