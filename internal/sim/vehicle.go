package sim

import (
	"sync"
	"time"

	"deadreckon/internal/mode"
)

// Vehicle is a scripted implementation of the host flight-control surface.
//
// Scripted signals (arming, attitude, altitude, link/aux health) come from a
// Flight; mode state and issued commands are live so the failsafe controller
// can interact with it exactly like a real autopilot. Advance must be called
// once per tick before the controller reads from it.
type Vehicle struct {
	flight *Flight
	start  time.Time

	mu      sync.Mutex
	state   FlightState
	mode    mode.ID
	reject  mode.Set
	lastCmd IssuedCommand
	haveCmd bool
}

// IssuedCommand records the most recent attitude/climb-rate target.
type IssuedCommand struct {
	RollDeg      float64 `json:"roll_deg"`
	PitchDeg     float64 `json:"pitch_deg"`
	YawDeg       float64 `json:"yaw_deg"`
	ClimbRateMps float64 `json:"climb_rate_mps"`
	AtUTC        string  `json:"at_utc"`
}

// NewVehicle returns a vehicle at elapsed zero in initialMode. Modes in
// reject are refused by SetFlightMode, which exercises the controller's
// rejection paths from scripts.
func NewVehicle(flight *Flight, start time.Time, initialMode mode.ID, reject mode.Set) *Vehicle {
	return &Vehicle{
		flight: flight,
		start:  start,
		state:  flight.StateAt(0),
		mode:   initialMode,
		reject: reject,
	}
}

// Advance recomputes the scripted state for the given wall time.
func (v *Vehicle) Advance(now time.Time) {
	st := v.flight.StateAt(now.Sub(v.start))
	v.mu.Lock()
	v.state = st
	v.mu.Unlock()
}

// Done reports whether the script has fully played out.
func (v *Vehicle) Done(now time.Time) bool {
	return now.Sub(v.start) >= v.flight.Duration()
}

func (v *Vehicle) CommandLinkValid() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.RCValid
}

func (v *Vehicle) AuxDistress() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.AuxDistress
}

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Armed
}

func (v *Vehicle) FlightMode() mode.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *Vehicle) SetFlightMode(id mode.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reject.Contains(id) {
		return false
	}
	v.mode = id
	return true
}

func (v *Vehicle) Attitude() (rollDeg, pitchDeg, yawDeg float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.RollDeg, v.state.PitchDeg, v.state.YawDeg
}

func (v *Vehicle) AltitudeAboveHomeM() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.AltM
}

func (v *Vehicle) CommandAttitude(rollDeg, pitchDeg, yawDeg, climbRateMps float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastCmd = IssuedCommand{
		RollDeg:      rollDeg,
		PitchDeg:     pitchDeg,
		YawDeg:       yawDeg,
		ClimbRateMps: climbRateMps,
		AtUTC:        time.Now().UTC().Format(time.RFC3339Nano),
	}
	v.haveCmd = true
	return true
}

// LastCommand returns the most recent attitude command, if any.
func (v *Vehicle) LastCommand() (IssuedCommand, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastCmd, v.haveCmd
}
