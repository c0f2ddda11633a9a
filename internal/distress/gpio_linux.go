//go:build linux

package distress

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// openLine requests the line as a debounced input and polls it. Polling is
// deliberate: edge events on a flaky companion line can storm, and the
// failsafe only samples once per tick anyway.
func openLine(cfg Config) (Input, error) {
	chipPath := cfg.Chip
	if chipPath == "" {
		chipPath = "gpiochip0"
	}
	chipPath = strings.TrimPrefix(chipPath, "/dev/")

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("deadreckon-distress"),
		gpiocdev.WithDebounce(5 * time.Millisecond),
	}
	if !cfg.ActiveHigh {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chipPath, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("distress: request %s line %d: %w", chipPath, cfg.Line, err)
	}

	g := &gpioInput{line: line, done: make(chan struct{})}
	g.sample()
	go g.pollLoop(cfg.Poll)
	return g, nil
}

type gpioInput struct {
	line     *gpiocdev.Line
	asserted atomic.Bool
	done     chan struct{}
}

func (g *gpioInput) Asserted() bool {
	return g.asserted.Load()
}

func (g *gpioInput) Close() error {
	close(g.done)
	return g.line.Close()
}

func (g *gpioInput) pollLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-t.C:
			g.sample()
		}
	}
}

func (g *gpioInput) sample() {
	v, err := g.line.Value()
	if err != nil {
		// EINTR from a signal during the ioctl is harmless; retry next poll.
		if err != unix.EINTR {
			log.Printf("distress gpio read err=%v", err)
		}
		return
	}
	g.asserted.Store(v != 0)
}
