package split

import (
	"testing"

	"github.com/zsiec/hevcsplit/filtergraph/memgraph"
)

// picture is 1280x768 with 64x64 CTBs: 20x12 CTBs, divisible exactly into a
// 2x2 uniform tile grid (640x384 per tile, no clipped remainder row/column).
const (
	picWidth  = 1280
	picHeight = 768
)

func newConfiguredController(t *testing.T, tileCols, tileRows uint32) (*Controller, *memgraph.Host, *memgraph.InputPID) {
	t.Helper()
	host := memgraph.NewHost()
	cfgBytes := buildConfig(buildVPS(), buildSPS(picWidth, picHeight), buildPPS(tileCols, tileRows))
	in := memgraph.NewInputPID("hevc", cfgBytes)

	c := New(host)
	if err := c.Configure(in); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return c, host, in
}

// TestConfigureBuildsTileOutputs: a 2x2 uniform tile grid over an
// evenly-divisible picture produces four output PIDs, each advertising the
// correct tile size and crop position.
func TestConfigureBuildsTileOutputs(t *testing.T) {
	c, host, _ := newConfiguredController(t, 2, 2)

	if got := c.NumTiles(); got != 4 {
		t.Fatalf("NumTiles() = %d, want 4", got)
	}
	if got := len(host.Outputs()); got != 4 {
		t.Fatalf("len(host.Outputs()) = %d, want 4", got)
	}

	wantCrop := [4][2]int32{{0, 0}, {640, 0}, {0, 384}, {640, 384}}
	for i, out := range host.Outputs() {
		w, ok := out.Property("width")
		if !ok || w.(uint32) != 640 {
			t.Errorf("tile %d: width = %v, want 640", i, w)
		}
		h, ok := out.Property("height")
		if !ok || h.(uint32) != 384 {
			t.Errorf("tile %d: height = %v, want 384", i, h)
		}
		crop, ok := out.Property("crop_position")
		if !ok || crop.([2]int32) != wantCrop[i] {
			t.Errorf("tile %d: crop_position = %v, want %v", i, crop, wantCrop[i])
		}
		orig, ok := out.Property("original_size")
		if !ok || orig.([2]int32) != [2]int32{picWidth, picHeight} {
			t.Errorf("tile %d: original_size = %v, want [%d %d]", i, orig, picWidth, picHeight)
		}
		if _, ok := out.Property("decoder_config"); !ok {
			t.Errorf("tile %d: missing decoder_config", i)
		}
	}
}

// TestConfigureIsNoOpOnUnchangedConfig: calling Configure again with
// byte-identical decoder_config must not tear down or rebuild any output
// PID.
func TestConfigureIsNoOpOnUnchangedConfig(t *testing.T) {
	c, host, in := newConfiguredController(t, 2, 2)
	before := append([]*memgraph.OutputPID(nil), host.Outputs()...)

	if err := c.Configure(in); err != nil {
		t.Fatalf("second Configure: %v", err)
	}
	after := host.Outputs()

	if len(before) != len(after) {
		t.Fatalf("output count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("tile %d output PID identity changed across a no-op reconfigure", i)
		}
	}
}

// TestConfigureTearsDownOnChangedGrid: a genuinely different decoder_config
// (a new tile grid) must remove the old output PIDs and build a fresh set.
func TestConfigureTearsDownOnChangedGrid(t *testing.T) {
	c, host, _ := newConfiguredController(t, 2, 2)
	oldOutputs := append([]*memgraph.OutputPID(nil), host.Outputs()...)

	cfgBytes := buildConfig(buildVPS(), buildSPS(picWidth, picHeight), buildPPS(1, 1))
	in2 := memgraph.NewInputPID("hevc", cfgBytes)
	if err := c.Configure(in2); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}

	if got := c.NumTiles(); got != 1 {
		t.Fatalf("NumTiles() after reconfigure = %d, want 1", got)
	}
	live := host.Outputs()
	if len(live) != 1 {
		t.Fatalf("len(host.Outputs()) after reconfigure = %d, want 1", len(live))
	}
	for _, old := range oldOutputs {
		for _, l := range live {
			if old == l {
				t.Errorf("old tile output PID %p still live after reconfigure", old)
			}
		}
	}
}

// TestProcessBroadcastsAUD: a single non-VCL NAL (AUD) in an access unit is
// sent byte-identical, length prefix included, to every tile output.
func TestProcessBroadcastsAUD(t *testing.T) {
	c, host, _ := newConfiguredController(t, 2, 2)

	aud := buildAUD()
	au := buildAU(aud)
	if err := c.Process(memgraph.NewPacket(0, 0, au), au); err != nil {
		t.Fatalf("Process: %v", err)
	}

	wantPrefixed := buildAU(aud)
	for i, out := range host.Outputs() {
		if len(out.Sent) != 1 {
			t.Fatalf("tile %d: got %d packets, want 1", i, len(out.Sent))
		}
		if string(out.Sent[0].Buf) != string(wantPrefixed) {
			t.Errorf("tile %d: AUD payload mismatch", i)
		}
	}
}

// TestProcessRoutesSliceToOwningTile: a slice NAL whose
// slice_segment_address lands inside tile (1,1)'s CTB rectangle is delivered
// only to that tile, rewritten to address 0 (its own, full-tile picture).
func TestProcessRoutesSliceToOwningTile(t *testing.T) {
	c, host, _ := newConfiguredController(t, 2, 2)

	// W_ctb=20: address 195 -> ctbRow=9, ctbCol=15 -> tile row 1, col 1.
	const address = 195
	const bitsAddr = 8 // bitsFor(20*12=240) = 8
	slice := buildSlice(false, address, bitsAddr, []byte{0xAA, 0xBB, 0xCC})
	au := buildAU(slice)

	if err := c.Process(memgraph.NewPacket(10, 10, au), au); err != nil {
		t.Fatalf("Process: %v", err)
	}

	outputs := host.Outputs()
	ownerIdx := 1*2 + 1 // TileIndex(row=1, col=1) with NumTileColumns=2
	for i, out := range outputs {
		if i == ownerIdx {
			if len(out.Sent) != 1 {
				t.Fatalf("owning tile %d: got %d packets, want 1", i, len(out.Sent))
			}
			continue
		}
		if len(out.Sent) != 0 {
			t.Errorf("non-owning tile %d: got %d packets, want 0", i, len(out.Sent))
		}
	}
	if outputs[ownerIdx].Sent[0].DTS() != 10 || outputs[ownerIdx].Sent[0].CTS() != 10 {
		t.Errorf("owning tile packet timing not inherited from source packet")
	}
}
