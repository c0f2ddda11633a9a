package rclink

import "testing"

// encodeFrame packs 16 raw channel values and a flags byte into an SBUS
// frame, the inverse of DecodeFrame.
func encodeFrame(channels [16]uint16, flags byte) []byte {
	b := make([]byte, FrameSize)
	b[0] = frameHeader
	bitBuf := uint32(0)
	bitCount := 0
	out := 1
	for _, ch := range channels {
		bitBuf |= uint32(ch&0x7FF) << bitCount
		bitCount += 11
		for bitCount >= 8 {
			b[out] = byte(bitBuf & 0xFF)
			bitBuf >>= 8
			bitCount -= 8
			out++
		}
	}
	b[23] = flags
	return b
}

func TestDecodeFrame(t *testing.T) {
	var channels [16]uint16
	for i := range channels {
		channels[i] = uint16(172 + i*100)
	}
	f, err := DecodeFrame(encodeFrame(channels, 0))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Channels != channels {
		t.Fatalf("channels=%v want %v", f.Channels, channels)
	}
	if f.FrameLost || f.Failsafe {
		t.Fatalf("flags must be clear")
	}
}

func TestDecodeFrameFlags(t *testing.T) {
	f, err := DecodeFrame(encodeFrame([16]uint16{}, flagFrameLost|flagFailsafe))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !f.FrameLost || !f.Failsafe {
		t.Fatalf("flags=%+v want frame_lost and failsafe set", f)
	}
}

func TestDecodeFrameRejectsBadFraming(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, 10)); err == nil {
		t.Fatalf("short frame must be rejected")
	}

	good := encodeFrame([16]uint16{}, 0)

	bad := append([]byte(nil), good...)
	bad[0] = 0x55
	if _, err := DecodeFrame(bad); err == nil {
		t.Fatalf("bad header must be rejected")
	}

	bad = append([]byte(nil), good...)
	bad[24] = 0x55
	if _, err := DecodeFrame(bad); err == nil {
		t.Fatalf("bad footer must be rejected")
	}
}

func TestChannelUS(t *testing.T) {
	cases := []struct {
		raw  uint16
		want int
	}{
		{992, 1500},
		{172, 988},
		{1811, 2011},
	}
	for _, tc := range cases {
		if got := ChannelUS(tc.raw); got != tc.want {
			t.Fatalf("ChannelUS(%d)=%d want %d", tc.raw, got, tc.want)
		}
	}
}
