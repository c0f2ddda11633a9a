// Package distress reads a discrete distress input: a GPIO line wired to a
// companion device (geofence watchdog, crew switch) that pulls the line when
// the aircraft should abandon its mission. The failsafe treats an asserted
// line like any other aux-degraded signal.
package distress

import "time"

type Config struct {
	// Chip is the gpiochip name or /dev path; Line is the line offset.
	Chip string
	Line int

	// ActiveHigh selects the asserted polarity.
	ActiveHigh bool

	// Poll is the sampling interval. Zero means 100ms.
	Poll time.Duration
}

// Input is a sampled distress line.
type Input interface {
	// Asserted reports whether the line is in the distress state.
	Asserted() bool
	Close() error
}

// Open opens the configured GPIO line. On platforms without the Linux GPIO
// character device this fails rather than silently reporting no distress.
func Open(cfg Config) (Input, error) {
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	return openLine(cfg)
}
