// Package memgraph is an in-memory filtergraph.Host for tests and the
// cmd/hevcsplit demo: every output PID buffers its sent packets instead of
// delivering them anywhere, so callers can inspect exactly what a
// split.Controller produced.
package memgraph

import "github.com/zsiec/hevcsplit/filtergraph"

// Packet is a fully in-memory access unit.
type Packet struct {
	dts, cts int64
	Buf      []byte
}

// NewPacket builds an input-side packet (one the caller hands to
// split.Controller.Process) with explicit timing.
func NewPacket(dts, cts int64, buf []byte) *Packet {
	return &Packet{dts: dts, cts: cts, Buf: buf}
}

func (p *Packet) DTS() int64 { return p.dts }
func (p *Packet) CTS() int64 { return p.cts }

// InputPID is a static, pre-configured input PID: its properties never
// change once constructed.
type InputPID struct {
	props map[string]any
}

// NewInputPID builds an InputPID carrying the given codec ID and decoder
// configuration record bytes, the two properties split.Controller reads.
func NewInputPID(codecID string, decoderConfig []byte) *InputPID {
	return &InputPID{props: map[string]any{
		"codec_id":       codecID,
		"decoder_config": decoderConfig,
	}}
}

func (p *InputPID) Property(key string) (any, bool) {
	v, ok := p.props[key]
	return v, ok
}

func (p *InputPID) RequestFramedPackets() {}

// OutputPID accumulates every packet sent to it along with its final
// property set, for test assertions.
type OutputPID struct {
	props map[string]any
	Sent  []*Packet
}

func newOutputPID() *OutputPID {
	return &OutputPID{props: make(map[string]any)}
}

func (o *OutputPID) SetProperty(key string, value any) { o.props[key] = value }

func (o *OutputPID) Property(key string) (any, bool) {
	v, ok := o.props[key]
	return v, ok
}

func (o *OutputPID) CopyPropertiesFrom(in filtergraph.InputPID) {
	if v, ok := in.Property("codec_id"); ok {
		o.props["codec_id"] = v
	}
	if v, ok := in.Property("decoder_config"); ok {
		o.props["decoder_config"] = v
	}
}

func (o *OutputPID) NewPacket(size int) (filtergraph.Packet, []byte) {
	p := &Packet{Buf: make([]byte, size)}
	return p, p.Buf
}

func (o *OutputPID) ExpandPacket(pkt filtergraph.Packet, extra int) []byte {
	p := pkt.(*Packet)
	old := len(p.Buf)
	p.Buf = append(p.Buf, make([]byte, extra)...)
	return p.Buf[old:]
}

func (o *OutputPID) MergeProperties(src, dst filtergraph.Packet) {
	s := src.(*Packet)
	d := dst.(*Packet)
	d.dts = s.dts
	d.cts = s.cts
}

func (o *OutputPID) Send(pkt filtergraph.Packet) {
	o.Sent = append(o.Sent, pkt.(*Packet))
}

// Host is an in-memory filtergraph.Host. Removed outputs are dropped from
// Outputs() but their Sent history survives on the OutputPID value itself if
// the caller kept a reference.
type Host struct {
	outputs []*OutputPID
}

// NewHost returns an empty Host.
func NewHost() *Host { return &Host{} }

func (h *Host) NewOutputPID() filtergraph.OutputPID {
	o := newOutputPID()
	h.outputs = append(h.outputs, o)
	return o
}

func (h *Host) RemoveOutputPID(p filtergraph.OutputPID) {
	o, ok := p.(*OutputPID)
	if !ok {
		return
	}
	for i, existing := range h.outputs {
		if existing == o {
			h.outputs = append(h.outputs[:i:i], h.outputs[i+1:]...)
			return
		}
	}
}

// Outputs returns the currently live output PIDs, in creation order.
func (h *Host) Outputs() []*OutputPID { return h.outputs }
