// Package rclink reads the pilot command link from an SBUS serial stream
// and derives the two health signals the failsafe watches: whether the link
// is alive and whether an aux channel is signalling distress.
package rclink

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

type Config struct {
	Device string
	Baud   int

	// AuxChannel is 1-based; zero disables the aux distress signal.
	AuxChannel   int
	AuxThreshold int

	// StaleAfter marks the link invalid when no clean frame arrived within
	// this window.
	StaleAfter time.Duration
}

// Link owns the serial port and tracks the most recent decoded frame.
// Accessors are safe for concurrent use with the reader goroutine.
type Link struct {
	cfg  Config
	port serial.Port

	mu        sync.Mutex
	lastFrame Frame
	lastSeen  time.Time
	frames    uint64
	badBytes  uint64

	done chan struct{}
}

// Open opens the SBUS device and starts the reader goroutine.
func Open(cfg Config) (*Link, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = 100000
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 500 * time.Millisecond
	}
	if cfg.AuxChannel < 0 || cfg.AuxChannel > 16 {
		return nil, fmt.Errorf("rclink: aux channel %d out of range", cfg.AuxChannel)
	}

	// SBUS is 8E2. The signal is inverted on the wire; an external inverter
	// (or a UART with RX inversion) is assumed upstream of the device.
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.TwoStopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("rclink: open %s: %w", cfg.Device, err)
	}

	l := &Link{cfg: cfg, port: port, done: make(chan struct{})}
	go l.readLoop()
	return l, nil
}

// Close stops the reader and closes the port.
func (l *Link) Close() error {
	close(l.done)
	return l.port.Close()
}

// LinkValid reports whether a clean frame arrived recently and the last
// frame did not flag failsafe or frame loss.
func (l *Link) LinkValid(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastSeen.IsZero() || now.Sub(l.lastSeen) > l.cfg.StaleAfter {
		return false
	}
	return !l.lastFrame.Failsafe && !l.lastFrame.FrameLost
}

// AuxDistress reports whether the configured aux channel is above the
// distress threshold. A stale link never reports distress; that case is
// already covered by LinkValid.
func (l *Link) AuxDistress(now time.Time) bool {
	if l.cfg.AuxChannel == 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastSeen.IsZero() || now.Sub(l.lastSeen) > l.cfg.StaleAfter {
		return false
	}
	raw := l.lastFrame.Channels[l.cfg.AuxChannel-1]
	return ChannelUS(raw) >= l.cfg.AuxThreshold
}

// Channels returns the raw channel values from the last frame.
func (l *Link) Channels() [16]uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastFrame.Channels
}

// Stats returns total decoded frames and discarded resync bytes.
func (l *Link) Stats() (frames, badBytes uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames, l.badBytes
}

func (l *Link) readLoop() {
	buf := make([]byte, 256)
	pending := make([]byte, 0, 2*FrameSize)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			log.Printf("rclink read error err=%v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		pending = append(pending, buf[:n]...)
		pending = l.consume(pending)
	}
}

// consume decodes all complete frames in p and returns the unconsumed tail.
// On a framing error it discards one byte and resyncs on the next header.
func (l *Link) consume(p []byte) []byte {
	for {
		start := 0
		for start < len(p) && p[start] != frameHeader {
			start++
		}
		if start > 0 {
			l.mu.Lock()
			l.badBytes += uint64(start)
			l.mu.Unlock()
			p = p[start:]
		}
		if len(p) < FrameSize {
			return p
		}

		f, err := DecodeFrame(p[:FrameSize])
		if err != nil {
			l.mu.Lock()
			l.badBytes++
			l.mu.Unlock()
			p = p[1:]
			continue
		}

		l.mu.Lock()
		l.lastFrame = f
		l.lastSeen = time.Now()
		l.frames++
		l.mu.Unlock()
		p = p[FrameSize:]
	}
}
