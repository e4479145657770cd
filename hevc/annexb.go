package hevc

// StripEmulation removes emulation-prevention bytes from a NAL payload:
// every 0x03 byte that follows a 0x0000 prefix of a forbidden 3-byte start
// code is dropped. This must run before any bit-level parsing of the RBSP.
func StripEmulation(data []byte) []byte {
	return appendStripped(make([]byte, 0, len(data)), data)
}

// StripEmulationAppend is StripEmulation but appends into dst[:0], letting a
// caller that strips many NALs in a row (split.Controller's scratch buffer)
// reuse one backing array instead of allocating per NAL.
func StripEmulationAppend(dst, data []byte) []byte {
	return appendStripped(dst[:0], data)
}

func appendStripped(out, data []byte) []byte {
	zeros := 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if zeros >= 2 && b == 0x03 {
			// Emulation-prevention byte: drop it, but only when it was
			// inserted to break up a real 0x000000/0x000001/0x000002/0x000003
			// prefix (the next byte, if any, must be <= 3 per the
			// standard's insertion rule).
			if i+1 >= len(data) || data[i+1] <= 3 {
				zeros = 0
				continue
			}
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// CountEmulation returns the number of emulation-prevention bytes AddEmulation
// would insert into rbsp, without allocating the output buffer. Callers that
// reuse a scratch buffer across NALs (as split.Controller does) can use this
// to pre-size it.
func CountEmulation(rbsp []byte) int {
	count := 0
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			count++
			zeros = 0
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return count
}

// AddEmulation re-inserts emulation-prevention bytes into a raw RBSP so the
// result is safe to embed as a NAL payload in an Annex-B or length-prefixed
// byte stream: a 0x03 byte is inserted before any of 0x00, 0x01, 0x02, or
// 0x03 that would otherwise complete a 0x000000..0x000003 sequence.
func AddEmulation(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+CountEmulation(rbsp))
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
