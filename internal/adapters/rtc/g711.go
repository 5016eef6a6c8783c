package rtc

import "github.com/dkeye/VoiceCall/internal/core"

// G.711 mu-law, the PCMU payload format.
const (
	ulawBias = 0x84
	ulawClip = 32635
)

func ulawEncode(s int16) byte {
	v := int(s)
	sign := 0
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	exponent := 7
	for mask := 0x4000; v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func ulawDecode(u byte) int16 {
	u = ^u
	exponent := int(u>>4) & 0x07
	mantissa := int(u) & 0x0F
	v := ((mantissa << 3) + ulawBias) << exponent
	v -= ulawBias
	if u&0x80 != 0 {
		return int16(-v)
	}
	return int16(v)
}

func encodePCMU(f core.Frame) []byte {
	out := make([]byte, len(f))
	for i, s := range f {
		out[i] = ulawEncode(s)
	}
	return out
}

func decodePCMU(payload []byte) core.Frame {
	out := make(core.Frame, len(payload))
	for i, b := range payload {
		out[i] = ulawDecode(b)
	}
	return out
}

// resample converts between rates by nearest sample. Voice at these rates tolerates it.
func resample(f core.Frame, from, to int) core.Frame {
	if from == to || from <= 0 || to <= 0 || len(f) == 0 {
		return f
	}
	n := len(f) * to / from
	out := make(core.Frame, n)
	for i := range out {
		out[i] = f[i*from/to]
	}
	return out
}
