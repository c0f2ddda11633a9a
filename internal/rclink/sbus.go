package rclink

import "fmt"

// SBUS framing constants. A frame is 25 bytes: header, 22 bytes of packed
// channel data, a flags byte and a footer. Channels are 16 values of 11 bits
// each, packed LSB-first.
const (
	FrameSize = 25

	frameHeader = 0x0F
	frameFooter = 0x00

	flagFrameLost = 0x04
	flagFailsafe  = 0x08
)

// Frame is one decoded SBUS frame.
type Frame struct {
	Channels  [16]uint16
	FrameLost bool
	Failsafe  bool
}

// DecodeFrame decodes a 25-byte SBUS frame. Raw channel values are 11-bit
// (0..2047); use ChannelUS for the conventional microsecond scale.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) != FrameSize {
		return Frame{}, fmt.Errorf("sbus: frame must be %d bytes, got %d", FrameSize, len(b))
	}
	if b[0] != frameHeader {
		return Frame{}, fmt.Errorf("sbus: bad header 0x%02x", b[0])
	}
	if b[24] != frameFooter {
		return Frame{}, fmt.Errorf("sbus: bad footer 0x%02x", b[24])
	}

	var f Frame
	bitBuf := uint32(0)
	bitCount := 0
	ch := 0
	for _, raw := range b[1:23] {
		bitBuf |= uint32(raw) << bitCount
		bitCount += 8
		for bitCount >= 11 && ch < 16 {
			f.Channels[ch] = uint16(bitBuf & 0x7FF)
			bitBuf >>= 11
			bitCount -= 11
			ch++
		}
	}

	flags := b[23]
	f.FrameLost = flags&flagFrameLost != 0
	f.Failsafe = flags&flagFailsafe != 0
	return f, nil
}

// ChannelUS converts a raw 11-bit channel value to the conventional
// 988..2012us pulse-width scale (1500us at the 992 midpoint).
func ChannelUS(raw uint16) int {
	return (int(raw)-992)*5/8 + 1500
}
