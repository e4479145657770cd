// Package filtergraph declares the abstract contract a host filter-graph
// runtime provides to split.Controller: PID creation, property propagation,
// and packet lifecycle. The core never talks to a concrete scheduler,
// transport, or memory allocator directly — it only calls these interfaces,
// the same decoupling internal/pipeline's Broadcaster gives the demux/relay
// boundary. No runtime lives in this package; filtergraph/memgraph supplies
// one for tests and the CLI demo.
package filtergraph

// Host creates and destroys output PIDs for one input PID's filter instance.
type Host interface {
	NewOutputPID() OutputPID
	RemoveOutputPID(OutputPID)
}

// InputPID is the single HEVC elementary-stream PID the split filter reads.
type InputPID interface {
	// Property returns a configuration value set by whatever produced this
	// PID (a demuxer, another filter). Recognized keys: "codec_id",
	// "decoder_config".
	Property(key string) (any, bool)
	// RequestFramedPackets asks the host to deliver one complete access
	// unit per Packet rather than arbitrary byte chunks.
	RequestFramedPackets()
}

// OutputPID is one tile's output stream.
type OutputPID interface {
	// SetProperty overrides a property on this output. Recognized keys:
	// "width", "height", "crop_position" ([2]int32), "original_size"
	// ([2]int32), "decoder_config".
	SetProperty(key string, value any)
	// CopyPropertiesFrom seeds this output's properties from the input PID
	// before SetProperty overrides apply.
	CopyPropertiesFrom(InputPID)
	// NewPacket allocates an access-unit buffer of the given initial size
	// and returns both the packet handle and its backing buffer.
	NewPacket(size int) (Packet, []byte)
	// ExpandPacket grows p's buffer by extra bytes and returns the region
	// to write into (the newly appended tail, not the whole buffer).
	ExpandPacket(p Packet, extra int) []byte
	// MergeProperties copies timing/property metadata from src onto dst,
	// e.g. DTS/CTS inherited from the input access unit.
	MergeProperties(src, dst Packet)
	// Send hands the completed packet to the host for delivery downstream.
	Send(Packet)
}

// Packet is one access unit's worth of framed, length-prefixed NAL data on
// a PID.
type Packet interface {
	DTS() int64
	CTS() int64
}
