package vehicle

import "deadreckon/internal/mode"

// Vehicle is the host flight-control surface consumed by the failsafe
// controller.
//
// Every call must return immediately; the controller runs inside a periodic
// tick and never waits on the host. Command methods report rejection with a
// bare false rather than an error: a rejected command is an expected,
// retryable condition, not a fault.
type Vehicle interface {
	// CommandLinkValid reports whether pilot command input (RC) is live.
	CommandLinkValid() bool

	// AuxDistress reports the auxiliary "something bad" signal, when wired.
	AuxDistress() bool

	Armed() bool

	FlightMode() mode.ID

	// SetFlightMode requests a mode change. false means the host rejected it.
	SetFlightMode(id mode.ID) bool

	// Attitude returns the current orientation estimate in degrees.
	// Pitch is nose-down-positive.
	Attitude() (rollDeg, pitchDeg, yawDeg float64)

	// AltitudeAboveHomeM is signed; negative means below home.
	AltitudeAboveHomeM() float64

	// CommandAttitude issues an attitude plus climb-rate target.
	// Pitch here is nose-down-negative (command convention).
	CommandAttitude(rollDeg, pitchDeg, yawDeg, climbRateMps float64) bool
}

// SignalFunc supplies an externally sourced boolean signal.
type SignalFunc func() bool

type withOverrides struct {
	Vehicle
	link SignalFunc
	aux  SignalFunc
}

// WithSignalOverrides wraps v so that link validity and/or the auxiliary
// distress signal come from external sources (an SBUS monitor, a GPIO line)
// instead of the wrapped vehicle. A nil func keeps the wrapped behavior.
func WithSignalOverrides(v Vehicle, link, aux SignalFunc) Vehicle {
	if link == nil && aux == nil {
		return v
	}
	return &withOverrides{Vehicle: v, link: link, aux: aux}
}

func (w *withOverrides) CommandLinkValid() bool {
	if w.link != nil {
		return w.link()
	}
	return w.Vehicle.CommandLinkValid()
}

func (w *withOverrides) AuxDistress() bool {
	if w.aux != nil {
		return w.aux()
	}
	return w.Vehicle.AuxDistress()
}
