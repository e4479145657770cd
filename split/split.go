// Package split implements the HEVC tile-split controller: on PID
// configuration it reads the active tile grid out of the HEVC decoder
// configuration record and opens one filtergraph.OutputPID per tile; on
// each access unit it rewrites every slice segment header to a new,
// full-picture address and fans NAL units out to the owning tile,
// broadcasting non-VCL NALs to all of them.
//
// The input stream must be encoded with motion-constrained tiles; the
// controller does not verify this and will produce broken output otherwise.
package split

import (
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"

	"github.com/zsiec/hevcsplit/filtergraph"
	"github.com/zsiec/hevcsplit/hevc"
	"github.com/zsiec/hevcsplit/rewrite"
	"github.com/zsiec/hevcsplit/tilegrid"
)

// ErrOutOfMemory is the error kind for a failed host packet allocation. The
// controller never returns it: filtergraph.OutputPID's NewPacket and
// ExpandPacket report no error, and their call sites recover no panic.
var ErrOutOfMemory = errors.New("split: out of memory")

// tileOutput is one tile's output PID plus the geometry and in-progress
// packet the controller needs to route NALs into it.
type tileOutput struct {
	row, col uint32

	pid filtergraph.OutputPID

	width, height       uint32
	originX, originY    uint32
	widthCTB, heightCTB uint32

	curPacket filtergraph.Packet
}

// Controller is one input PID's tile-split filter instance. Configure and
// Process must be called serially by the host; Controller performs no
// internal threading.
type Controller struct {
	host   filtergraph.Host
	logger *slog.Logger

	configured  bool
	configCRC   uint32
	lengthSize  int
	spsID       uint32
	ppsID       uint32
	state       *hevc.ParserState
	grid        *tilegrid.Grid
	inputWidth  uint32
	inputHeight uint32

	tiles []*tileOutput

	// scratch is the single reusable emulation-prevention-stripped buffer,
	// grown monotonically and owned exclusively by the controller.
	scratch []byte
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the controller's logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller bound to host, which owns output PID lifecycle
// for every tile this controller opens.
func New(host filtergraph.Host, opts ...Option) *Controller {
	c := &Controller{
		host:   host,
		logger: slog.Default(),
		state:  hevc.NewParserState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "hevcsplit")
	return c
}

// NumTiles returns the number of tile outputs from the last successful
// Configure call, or 0 if Configure has not run.
func (c *Controller) NumTiles() int { return len(c.tiles) }

// Configure (re)builds the tile table and output PIDs from input's
// decoder_config property. It is a no-op if the config bytes are unchanged
// from the last successful call, so live output PIDs survive redundant
// reconfigures.
func (c *Controller) Configure(input filtergraph.InputPID) error {
	codecID, ok := input.Property("codec_id")
	if !ok || codecID != "hevc" {
		return fmt.Errorf("split: configure: %w", hevc.ErrNotSupported)
	}

	rawCfg, ok := input.Property("decoder_config")
	if !ok {
		return fmt.Errorf("split: configure: missing decoder_config: %w", hevc.ErrNonCompliantBitstream)
	}
	cfgBytes, ok := rawCfg.([]byte)
	if !ok {
		return fmt.Errorf("split: configure: decoder_config is not []byte: %w", hevc.ErrNonCompliantBitstream)
	}

	crc := crc32.ChecksumIEEE(cfgBytes)
	if c.configured && crc == c.configCRC {
		return nil
	}

	cfg, err := hevc.ParseConfig(cfgBytes)
	if err != nil {
		return fmt.Errorf("split: configure: parsing decoder_config: %w", err)
	}

	state := hevc.NewParserState()
	var spsID, ppsID uint32
	var haveSPS, havePPS bool
	for _, arr := range cfg.Arrays {
		switch arr.NALUnitType {
		case hevc.NALSPS:
			for _, nalu := range arr.NALUs {
				if haveSPS {
					break
				}
				id, err := hevc.ParseSPS(hevc.StripEmulation(nalu), state)
				if err != nil {
					return fmt.Errorf("split: configure: parsing SPS: %w", err)
				}
				spsID, haveSPS = id, true
			}
		case hevc.NALPPS:
			for _, nalu := range arr.NALUs {
				if havePPS {
					break
				}
				id, err := hevc.ParsePPS(hevc.StripEmulation(nalu), state)
				if err != nil {
					return fmt.Errorf("split: configure: parsing PPS: %w", err)
				}
				ppsID, havePPS = id, true
			}
		}
	}
	if !haveSPS || !havePPS {
		return fmt.Errorf("split: configure: decoder_config carries no SPS/PPS: %w", hevc.ErrNonCompliantBitstream)
	}

	sps := state.SPS[spsID]
	pps := state.PPS[ppsID]
	if sps.LayerID != 0 {
		return fmt.Errorf("split: configure: multi-layer HEVC (layer_id=%d): %w", sps.LayerID, hevc.ErrNotSupported)
	}

	grid := tilegrid.New(sps, pps)

	// Tear down prior outputs only once the new config has parsed cleanly:
	// a failed reconfigure must leave the previous, working tile set alone
	// until this function actually commits to the new one.
	for _, t := range c.tiles {
		c.host.RemoveOutputPID(t.pid)
	}
	c.tiles = nil

	tiles := make([]*tileOutput, 0, grid.NumTiles())
	for row := uint32(0); row < grid.NumTileRows; row++ {
		for col := uint32(0); col < grid.NumTileColumns; col++ {
			x, y, w, h := grid.TileRect(row, col)
			wCTB, hCTB := grid.TileCTBSize(row, col)

			rewrittenCfg, err := rewriteConfig(cfg, w, h)
			if err != nil {
				return fmt.Errorf("split: configure: rewriting tile (%d,%d) decoder_config: %w", row, col, err)
			}

			pid := c.host.NewOutputPID()
			pid.CopyPropertiesFrom(input)
			pid.SetProperty("width", w)
			pid.SetProperty("height", h)
			pid.SetProperty("crop_position", [2]int32{int32(x), int32(y)})
			pid.SetProperty("original_size", [2]int32{int32(sps.Width), int32(sps.Height)})
			pid.SetProperty("decoder_config", rewrittenCfg.Serialize())

			tiles = append(tiles, &tileOutput{
				row: row, col: col,
				pid:       pid,
				width:     w,
				height:    h,
				originX:   x,
				originY:   y,
				widthCTB:  wCTB,
				heightCTB: hCTB,
			})
		}
	}

	c.tiles = tiles
	c.state = state
	c.grid = grid
	c.spsID, c.ppsID = spsID, ppsID
	c.lengthSize = int(cfg.LengthSizeMinusOne) + 1
	c.inputWidth, c.inputHeight = sps.Width, sps.Height
	c.configCRC = crc
	c.configured = true

	input.RequestFramedPackets()

	c.logger.Info("configured tile grid",
		"rows", grid.NumTileRows, "cols", grid.NumTileColumns,
		"pic_width", sps.Width, "pic_height", sps.Height)
	return nil
}

// rewriteConfig clones cfg with its SPS NALUs rewritten to tileW x tileH and
// its PPS NALUs rewritten gridless; VPS and any other array is carried
// through unchanged.
func rewriteConfig(cfg *hevc.Config, tileW, tileH uint32) (*hevc.Config, error) {
	out := *cfg
	out.Arrays = make([]hevc.ConfigNalu, len(cfg.Arrays))
	for i, arr := range cfg.Arrays {
		newArr := hevc.ConfigNalu{ArrayCompleteness: arr.ArrayCompleteness, NALUnitType: arr.NALUnitType}
		for _, nalu := range arr.NALUs {
			switch arr.NALUnitType {
			case hevc.NALSPS:
				rewritten, err := rewrite.SPS(hevc.StripEmulation(nalu), tileW, tileH)
				if err != nil {
					return nil, err
				}
				newArr.NALUs = append(newArr.NALUs, rewritten)
			case hevc.NALPPS:
				rewritten, err := rewrite.PPS(hevc.StripEmulation(nalu))
				if err != nil {
					return nil, err
				}
				newArr.NALUs = append(newArr.NALUs, rewritten)
			default:
				newArr.NALUs = append(newArr.NALUs, nalu)
			}
		}
		out.Arrays[i] = newArr
	}
	return &out, nil
}

// Process fans out one access unit's NALs to their owning tile outputs. pkt
// supplies the DTS/CTS every tile's output packet inherits; data is pkt's
// raw, length-prefixed NAL payload. A per-packet parse or rewrite failure is
// logged and the whole access unit is dropped with no partial output sent;
// Process itself returns nil in that case since the stream can continue.
func (c *Controller) Process(pkt filtergraph.Packet, data []byte) error {
	if !c.configured {
		return fmt.Errorf("split: process called before configure: %w", hevc.ErrNotSupported)
	}

	nalus, err := hevc.ParseLengthPrefixed(data, c.lengthSize)
	if err != nil {
		c.logger.Warn("dropping access unit: malformed NAL framing", "err", err)
		return nil
	}

	pending := make([][][]byte, len(c.tiles))
	for _, nal := range nalus {
		if nal.Header.LayerID != 0 {
			c.logger.Warn("dropping access unit: multi-layer NAL observed", "layer_id", nal.Header.LayerID)
			return nil
		}
		if err := c.routeNAL(nal, pending); err != nil {
			c.logger.Warn("dropping access unit: rewrite failed", "err", err, "nal_type", nal.Header.Type)
			return nil
		}
	}

	for idx, tile := range c.tiles {
		if len(pending[idx]) == 0 {
			continue
		}
		for _, nalBytes := range pending[idx] {
			if tile.curPacket == nil {
				tile.curPacket, _ = tile.pid.NewPacket(0)
			}
			region := tile.pid.ExpandPacket(tile.curPacket, c.lengthSize+len(nalBytes))
			writeLengthPrefixed(region, c.lengthSize, nalBytes)
		}
	}
	c.flush(pkt)
	return nil
}

// routeNAL rewrites nal and appends the result to pending[tileIndex] for
// every tile it must reach: exactly one tile for a coded slice segment, all
// tiles for inline SPS/PPS (rewritten, so decoders that key off inline
// parameter sets see the same geometry the decoder_config advertises) and
// for any other NAL type (broadcast verbatim).
func (c *Controller) routeNAL(nal hevc.AUNalu, pending [][][]byte) error {
	switch {
	case hevc.IsVCL(nal.Header.Type):
		stripped := c.strip(nal.Data)
		if err := hevc.ParseSliceHeader(nal.Header.Type, stripped, c.state); err != nil {
			return err
		}
		row, col := c.grid.Locate(c.state.Slice.SliceSegmentAddress)
		idx := int(c.grid.TileIndex(row, col))
		if idx < 0 || idx >= len(c.tiles) {
			return fmt.Errorf("slice_segment_address locates outside tile grid: %w", hevc.ErrNonCompliantBitstream)
		}
		tile := c.tiles[idx]
		rewritten, err := rewrite.SliceHeader(nal.Header.Type, stripped, c.state, 0, tile.widthCTB, tile.heightCTB)
		if err != nil {
			return err
		}
		pending[idx] = append(pending[idx], rewritten)

	case nal.Header.Type == hevc.NALSPS:
		stripped := c.strip(nal.Data)
		for idx, tile := range c.tiles {
			rewritten, err := rewrite.SPS(stripped, tile.width, tile.height)
			if err != nil {
				return err
			}
			pending[idx] = append(pending[idx], rewritten)
		}

	case nal.Header.Type == hevc.NALPPS:
		rewritten, err := rewrite.PPS(c.strip(nal.Data))
		if err != nil {
			return err
		}
		for idx := range c.tiles {
			pending[idx] = append(pending[idx], rewritten)
		}

	default:
		// VPS and every non-VCL type (AUD, EOS, EOB, filler, SEI, ...):
		// broadcast byte-identical to every tile.
		for idx := range c.tiles {
			pending[idx] = append(pending[idx], nal.Data)
		}
	}
	return nil
}

// strip emulation-prevention-strips nal into the controller's reusable
// scratch buffer. The returned slice is only valid until the next call.
func (c *Controller) strip(nal []byte) []byte {
	c.scratch = hevc.StripEmulationAppend(c.scratch, nal)
	return c.scratch
}

// flush sends every tile's accumulated access unit downstream and clears its
// cur_packet slot at frame end.
func (c *Controller) flush(srcPkt filtergraph.Packet) {
	for _, tile := range c.tiles {
		if tile.curPacket == nil {
			continue
		}
		tile.pid.MergeProperties(srcPkt, tile.curPacket)
		tile.pid.Send(tile.curPacket)
		tile.curPacket = nil
	}
}

func writeLengthPrefixed(dst []byte, lengthSize int, nal []byte) {
	n := len(nal)
	for i := 0; i < lengthSize; i++ {
		shift := uint((lengthSize - 1 - i) * 8)
		dst[i] = byte(n >> shift)
	}
	copy(dst[lengthSize:], nal)
}
