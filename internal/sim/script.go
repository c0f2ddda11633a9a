package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FlightScript is a deterministic, script-driven flight description used to
// exercise the failsafe controller without hardware.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s"). If
// Duration is zero it is derived from the latest keyframe time. Float fields
// interpolate linearly between keyframes (yaw via shortest path); boolean
// fields hold their last explicitly set value.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 60s
//	initial_mode: loiter
//	reject_modes: [guided_nogps]
//	keyframes:
//	  - t: 0s
//	    armed: true
//	    alt_m: 5
//	    yaw_deg: 90
//	    rc_valid: true
//	  - t: 10s
//	    alt_m: 50
//	    rc_valid: false
//
// Keyframes must be sorted by non-decreasing t. Keep this struct stable:
// scripts are test fixtures.
type FlightScript struct {
	Version     int           `yaml:"version"`
	Duration    time.Duration `yaml:"duration"`
	InitialMode string        `yaml:"initial_mode"`
	RejectModes []string      `yaml:"reject_modes"`
	Keyframes   []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped flight state. Boolean fields are pointers so a
// keyframe can leave them unchanged.
type Keyframe struct {
	T time.Duration `yaml:"t"`

	AltM     float64 `yaml:"alt_m"`
	RollDeg  float64 `yaml:"roll_deg"`
	PitchDeg float64 `yaml:"pitch_deg"`
	YawDeg   float64 `yaml:"yaw_deg"`

	Armed       *bool `yaml:"armed"`
	RCValid     *bool `yaml:"rc_valid"`
	AuxDistress *bool `yaml:"aux_distress"`
}

// FlightState is the computed state at a point in elapsed time.
type FlightState struct {
	AltM     float64
	RollDeg  float64
	PitchDeg float64
	YawDeg   float64

	Armed       bool
	RCValid     bool
	AuxDistress bool
}

// Flight is the validated, runtime representation of a script.
type Flight struct {
	script   FlightScript
	duration time.Duration
}

// LoadFlightScript reads and unmarshals a YAML flight script from path.
func LoadFlightScript(path string) (FlightScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FlightScript{}, err
	}
	return ParseFlightScriptYAML(b)
}

// ParseFlightScriptYAML parses a YAML flight script.
func ParseFlightScriptYAML(b []byte) (FlightScript, error) {
	var s FlightScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return FlightScript{}, err
	}
	return s, nil
}

// NewFlight validates script and returns a runtime Flight.
func NewFlight(script FlightScript) (*Flight, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported flight script version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := range script.Keyframes {
		if script.Keyframes[i].T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && script.Keyframes[i].T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}

	return &Flight{script: script, duration: dur}, nil
}

// Duration returns the effective script duration.
func (f *Flight) Duration() time.Duration {
	if f == nil {
		return 0
	}
	return f.duration
}

// StateAt computes the flight state at elapsed. Elapsed is clamped to
// [0, Duration()]: after the script ends, the final state holds.
func (f *Flight) StateAt(elapsed time.Duration) FlightState {
	if f == nil {
		return FlightState{RCValid: true}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > f.duration {
		elapsed = f.duration
	}

	kfs := f.script.Keyframes
	k0, k1, alpha := selectSegment(kfs, elapsed)

	st := FlightState{
		AltM:     lerp(k0.AltM, k1.AltM, alpha),
		RollDeg:  lerp(k0.RollDeg, k1.RollDeg, alpha),
		PitchDeg: lerp(k0.PitchDeg, k1.PitchDeg, alpha),
		YawDeg:   lerpAngleDeg(k0.YawDeg, k1.YawDeg, alpha),
		RCValid:  true,
	}

	// Booleans hold from the most recent keyframe at or before elapsed.
	for i := range kfs {
		if kfs[i].T > elapsed {
			break
		}
		if kfs[i].Armed != nil {
			st.Armed = *kfs[i].Armed
		}
		if kfs[i].RCValid != nil {
			st.RCValid = *kfs[i].RCValid
		}
		if kfs[i].AuxDistress != nil {
			st.AuxDistress = *kfs[i].AuxDistress
		}
	}
	return st
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpAngleDeg(a0, a1, t float64) float64 {
	// Shortest-path interpolation across wraparound.
	norm := func(x float64) float64 {
		for x < 0 {
			x += 360
		}
		for x >= 360 {
			x -= 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
