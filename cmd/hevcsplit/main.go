// Command hevcsplit reads an Annex-B HEVC elementary stream and rewrites it
// into one sub-bitstream per tile of its active tile grid, writing each
// tile's coded NAL units to its own length-prefixed .hevc file alongside an
// .hvcc decoder-configuration-record sidecar.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/hevcsplit/filtergraph/memgraph"
	"github.com/zsiec/hevcsplit/hevc"
	"github.com/zsiec/hevcsplit/split"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromEnv()})))

	inPath := flag.String("in", envOr("HEVCSPLIT_IN", ""), "input Annex-B HEVC elementary stream")
	outDir := flag.String("out-dir", envOr("HEVCSPLIT_OUT_DIR", ""), "output directory for per-tile .hevc/.hvcc files")
	lengthSize := flag.Int("length-size", 4, "NAL length prefix size in bytes for output files (1, 2, or 4)")
	flag.Parse()

	if *inPath == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "usage: hevcsplit -in stream.hevc -out-dir ./tiles [-length-size 4]")
		os.Exit(2)
	}
	if *lengthSize != 1 && *lengthSize != 2 && *lengthSize != 4 {
		slog.Error("invalid -length-size, must be 1, 2, or 4", "value", *lengthSize)
		os.Exit(2)
	}

	if err := run(*inPath, *outDir, *lengthSize); err != nil {
		slog.Error("hevcsplit failed", "error", err)
		os.Exit(1)
	}
}

func levelFromEnv() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(inPath, outDir string, lengthSize int) error {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	nalus := splitAnnexB(raw)
	if len(nalus) == 0 {
		return fmt.Errorf("no NAL units found in %s", inPath)
	}

	cfgBytes, err := buildDecoderConfig(nalus, lengthSize)
	if err != nil {
		return fmt.Errorf("deriving decoder configuration: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	host := memgraph.NewHost()
	ctrl := split.New(host)
	in := memgraph.NewInputPID("hevc", cfgBytes)
	if err := ctrl.Configure(in); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	slog.Info("tile grid configured", "tiles", ctrl.NumTiles())

	auCount := 0
	for _, au := range groupAccessUnits(nalus) {
		payload := framePayload(au, lengthSize)
		pkt := memgraph.NewPacket(int64(auCount), int64(auCount), payload)
		if err := ctrl.Process(pkt, payload); err != nil {
			return fmt.Errorf("processing access unit %d: %w", auCount, err)
		}
		auCount++
	}
	slog.Info("stream processed", "access_units", auCount)

	return writeTileFiles(context.Background(), outDir, host.Outputs())
}

// splitAnnexB scans data for Annex-B start codes (00 00 01 or 00 00 00 01)
// and returns each NAL unit's payload, start code excluded, trailing zero
// padding up to the next start code excluded.
func splitAnnexB(data []byte) [][]byte {
	starts := findStartCodes(data)
	var out [][]byte
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].codeStart
		}
		nal := data[s.payloadStart:end]
		for len(nal) > 0 && nal[len(nal)-1] == 0 {
			nal = nal[:len(nal)-1]
		}
		if len(nal) > 0 {
			out = append(out, nal)
		}
	}
	return out
}

type startCode struct {
	codeStart    int
	payloadStart int
}

func findStartCodes(data []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 {
			out = append(out, startCode{codeStart: i, payloadStart: i + 3})
			i += 2
		} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
			out = append(out, startCode{codeStart: i, payloadStart: i + 4})
			i += 3
		}
	}
	return out
}

// buildDecoderConfig scans nalus for the first VPS, SPS, and PPS and packs
// them into a serialized hvcC record, the same shape a demuxer would hand
// the split filter as an input PID's "decoder_config" property.
func buildDecoderConfig(nalus [][]byte, lengthSize int) ([]byte, error) {
	cfg := &hevc.Config{
		ConfigurationVersion: 1,
		LengthSizeMinusOne:   uint8(lengthSize - 1),
	}
	want := map[uint8]bool{hevc.NALVPS: true, hevc.NALSPS: true, hevc.NALPPS: true}
	found := map[uint8][]byte{}
	for _, n := range nalus {
		hdr, err := hevc.ParseNALHeader(hevc.StripEmulation(n))
		if err != nil {
			continue
		}
		if want[hdr.Type] && found[hdr.Type] == nil {
			found[hdr.Type] = n
		}
	}
	if found[hevc.NALSPS] == nil || found[hevc.NALPPS] == nil {
		return nil, errors.New("stream carries no SPS/PPS")
	}
	for _, t := range []uint8{hevc.NALVPS, hevc.NALSPS, hevc.NALPPS} {
		nalu, ok := found[t]
		if !ok {
			continue
		}
		cfg.Arrays = append(cfg.Arrays, hevc.ConfigNalu{ArrayCompleteness: true, NALUnitType: t, NALUs: [][]byte{nalu}})
	}
	return cfg.Serialize(), nil
}

// groupAccessUnits buckets nalus into access units: a new one starts at
// every AUD, or, when the stream carries no AUD at all, at every VCL NAL
// following another VCL NAL already collected into the current access unit.
func groupAccessUnits(nalus [][]byte) [][][]byte {
	hasAUD := false
	for _, n := range nalus {
		if hdr, err := hevc.ParseNALHeader(hevc.StripEmulation(n)); err == nil && hdr.Type == hevc.NALAUD {
			hasAUD = true
			break
		}
	}

	var aus [][][]byte
	var cur [][]byte
	sawVCL := false
	for _, n := range nalus {
		hdr, err := hevc.ParseNALHeader(hevc.StripEmulation(n))
		if err != nil {
			continue
		}
		startsNew := hdr.Type == hevc.NALAUD || (!hasAUD && hevc.IsVCL(hdr.Type) && sawVCL)
		if startsNew && len(cur) > 0 {
			aus = append(aus, cur)
			cur = nil
			sawVCL = false
		}
		cur = append(cur, n)
		if hevc.IsVCL(hdr.Type) {
			sawVCL = true
		}
	}
	if len(cur) > 0 {
		aus = append(aus, cur)
	}
	return aus
}

// framePayload length-prefixes each of au's NAL units with lengthSize bytes.
func framePayload(au [][]byte, lengthSize int) []byte {
	var out []byte
	for _, n := range au {
		ln := len(n)
		for i := 0; i < lengthSize; i++ {
			out = append(out, byte(ln>>uint((lengthSize-1-i)*8)))
		}
		out = append(out, n...)
	}
	return out
}

// writeTileFiles writes one <out>/tile-NN.hevc and <out>/tile-NN.hvcc per
// output PID, flushing them concurrently: each tile owns a distinct pair of
// files, so there is no shared state to race on.
func writeTileFiles(ctx context.Context, outDir string, outputs []*memgraph.OutputPID) error {
	g, _ := errgroup.WithContext(ctx)
	for i, out := range outputs {
		i, out := i, out
		g.Go(func() error {
			base := filepath.Join(outDir, fmt.Sprintf("tile-%02d", i))

			var payload []byte
			for _, pkt := range out.Sent {
				payload = append(payload, pkt.Buf...)
			}
			if err := os.WriteFile(base+".hevc", payload, 0o644); err != nil {
				return fmt.Errorf("tile %d: writing .hevc: %w", i, err)
			}

			cfg, ok := out.Property("decoder_config")
			if !ok {
				return fmt.Errorf("tile %d: no decoder_config property set", i)
			}
			if err := os.WriteFile(base+".hvcc", cfg.([]byte), 0o644); err != nil {
				return fmt.Errorf("tile %d: writing .hvcc: %w", i, err)
			}
			slog.Info("wrote tile", "index", i, "access_units", len(out.Sent), "bytes", len(payload))
			return nil
		})
	}
	return g.Wait()
}
