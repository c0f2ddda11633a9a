package notify

import (
	"log"
	"time"
)

// Severity classifies a pilot-facing message.
type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "info"
	}
}

// Func delivers a single pilot-facing message. Implementations must not block.
type Func func(sev Severity, text string)

// Discard drops every message. Useful as a test default.
func Discard(Severity, string) {}

// Logger returns a Func that writes to the stdlib logger.
func Logger() Func {
	return func(sev Severity, text string) {
		log.Printf("notify sev=%s %s", sev, text)
	}
}

// Fanout returns a Func that delivers to every given sink in order.
func Fanout(sinks ...Func) Func {
	return func(sev Severity, text string) {
		for _, s := range sinks {
			if s != nil {
				s(sev, text)
			}
		}
	}
}

// Throttle rate-limits periodic status messages to at most one per Every.
// Edge-triggered messages should bypass it and call the sink directly.
type Throttle struct {
	Every time.Duration

	last     time.Time
	haveLast bool
}

// Notify forwards to f unless a message was already emitted within Every.
// Reports whether the message was delivered.
func (t *Throttle) Notify(now time.Time, f Func, sev Severity, text string) bool {
	if t.haveLast && now.Sub(t.last) < t.Every {
		return false
	}
	t.last = now
	t.haveLast = true
	if f != nil {
		f(sev, text)
	}
	return true
}

// Reset forgets the last emission time so the next Notify always delivers.
func (t *Throttle) Reset() {
	t.haveLast = false
	t.last = time.Time{}
}
