package rclink

import (
	"testing"
	"time"
)

func TestConsumeResyncsOnGarbage(t *testing.T) {
	l := &Link{cfg: Config{StaleAfter: time.Second, AuxChannel: 3, AuxThreshold: 1500}}

	var channels [16]uint16
	channels[2] = 1800 // ~2005us, above threshold
	frame := encodeFrame(channels, 0)

	stream := append([]byte{0x55, 0xAA}, frame...)
	stream = append(stream, frame[:7]...) // partial frame stays pending

	rest := l.consume(stream)
	if len(rest) != 7 {
		t.Fatalf("pending=%d want 7", len(rest))
	}

	frames, bad := l.Stats()
	if frames != 1 {
		t.Fatalf("frames=%d want 1", frames)
	}
	if bad != 2 {
		t.Fatalf("bad bytes=%d want 2", bad)
	}

	now := time.Now()
	if !l.LinkValid(now) {
		t.Fatalf("link must be valid right after a clean frame")
	}
	if !l.AuxDistress(now) {
		t.Fatalf("aux channel above threshold must report distress")
	}
}

func TestLinkValidStaleAndFailsafe(t *testing.T) {
	l := &Link{cfg: Config{StaleAfter: 500 * time.Millisecond, AuxChannel: 1, AuxThreshold: 1500}}

	if l.LinkValid(time.Now()) {
		t.Fatalf("link must start invalid before any frame")
	}

	var channels [16]uint16
	channels[0] = 1800
	l.consume(encodeFrame(channels, 0))

	now := time.Now()
	if !l.LinkValid(now) {
		t.Fatalf("fresh frame must be valid")
	}

	stale := now.Add(time.Second)
	if l.LinkValid(stale) {
		t.Fatalf("stale link must be invalid")
	}
	if l.AuxDistress(stale) {
		t.Fatalf("stale link must not report aux distress")
	}

	l.consume(encodeFrame(channels, flagFailsafe))
	if l.LinkValid(time.Now()) {
		t.Fatalf("failsafe flag must invalidate the link")
	}
}
