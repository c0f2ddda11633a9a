package sim

import (
	"testing"
	"time"

	"deadreckon/internal/mode"
)

func TestVehicle_ScriptedSignalsAndModes(t *testing.T) {
	f, err := NewFlight(FlightScript{Keyframes: []Keyframe{
		{T: 0, AltM: 10, YawDeg: 45, Armed: boolp(true)},
		{T: 10 * time.Second, AltM: 30, YawDeg: 45, RCValid: boolp(false)},
	}})
	if err != nil {
		t.Fatalf("NewFlight: %v", err)
	}

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewVehicle(f, start, mode.Loiter, mode.NewSet(mode.Auto))

	if !v.Armed() || !v.CommandLinkValid() {
		t.Fatalf("initial state: want armed with valid link")
	}
	if v.FlightMode() != mode.Loiter {
		t.Fatalf("mode=%s want loiter", v.FlightMode())
	}

	v.Advance(start.Add(10 * time.Second))
	if v.CommandLinkValid() {
		t.Fatalf("link must drop at 10s per script")
	}
	if got := v.AltitudeAboveHomeM(); got != 30 {
		t.Fatalf("alt=%v want 30", got)
	}

	if v.SetFlightMode(mode.Auto) {
		t.Fatalf("auto is in the reject set, switch must fail")
	}
	if !v.SetFlightMode(mode.GuidedNoGPS) {
		t.Fatalf("guided_nogps switch must succeed")
	}
	if v.FlightMode() != mode.GuidedNoGPS {
		t.Fatalf("mode=%s want guided_nogps", v.FlightMode())
	}

	if _, ok := v.LastCommand(); ok {
		t.Fatalf("no command issued yet")
	}
	if !v.CommandAttitude(1, -2, 45, 0.5) {
		t.Fatalf("command must be accepted")
	}
	cmd, ok := v.LastCommand()
	if !ok || cmd.RollDeg != 1 || cmd.PitchDeg != -2 || cmd.ClimbRateMps != 0.5 {
		t.Fatalf("cmd=%+v want recorded command", cmd)
	}

	if !v.Done(start.Add(time.Minute)) {
		t.Fatalf("script must be done after its duration")
	}
}
