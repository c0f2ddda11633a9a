package health

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestMonitor_DegradesImmediately(t *testing.T) {
	m := New(Config{AuxEnabled: true})

	if edge := m.Update(at(0), true, false); edge != EdgeNone {
		t.Fatalf("edge=%v want none while healthy", edge)
	}
	if edge := m.Update(at(100), false, false); edge != EdgeDegraded {
		t.Fatalf("edge=%v want degraded on link loss", edge)
	}
	if !m.Degraded() {
		t.Fatalf("expected degraded")
	}
	// No repeated edge while still bad.
	if edge := m.Update(at(200), false, false); edge != EdgeNone {
		t.Fatalf("edge=%v want none (already degraded)", edge)
	}
}

func TestMonitor_RecoveryNeedsContinuousClear(t *testing.T) {
	m := New(Config{AuxEnabled: true})
	m.Update(at(0), false, false)

	// Clear, but not for long enough.
	for ms := 100; ms < 3000; ms += 100 {
		if edge := m.Update(at(ms), true, false); edge != EdgeNone {
			t.Fatalf("edge=%v at %dms, want none before delay elapses", edge, ms)
		}
	}
	if edge := m.Update(at(3100), true, false); edge != EdgeRecovered {
		t.Fatalf("edge=%v want recovered after 3s continuous clear", edge)
	}
	if m.Degraded() {
		t.Fatalf("expected healthy after recovery")
	}
}

func TestMonitor_BadObservationRestartsWindow(t *testing.T) {
	m := New(Config{AuxEnabled: true})
	m.Update(at(0), false, false)

	// 2.9s of clear, then one bad tick: the window must restart from zero.
	for ms := 100; ms <= 2900; ms += 100 {
		m.Update(at(ms), true, false)
	}
	m.Update(at(3000), false, false)

	// Another 2.9s of clear still must not recover.
	for ms := 3100; ms <= 6000; ms += 100 {
		if edge := m.Update(at(ms), true, false); edge == EdgeRecovered {
			t.Fatalf("recovered at %dms, window did not restart", ms)
		}
	}
	if edge := m.Update(at(6200), true, false); edge != EdgeRecovered {
		t.Fatalf("edge=%v want recovered after restarted window", edge)
	}
}

func TestMonitor_AuxSignal(t *testing.T) {
	m := New(Config{AuxEnabled: true})
	if edge := m.Update(at(0), true, true); edge != EdgeDegraded {
		t.Fatalf("edge=%v want degraded on aux distress", edge)
	}
	st := m.State(at(0))
	if !st.AuxBad || st.CommandLinkBad {
		t.Fatalf("state=%+v want aux bad only", st)
	}
}

func TestMonitor_AuxDisabledIsIgnored(t *testing.T) {
	m := New(Config{AuxEnabled: false})
	if edge := m.Update(at(0), true, true); edge != EdgeNone {
		t.Fatalf("edge=%v want none with aux disabled", edge)
	}
	if m.Degraded() {
		t.Fatalf("aux distress must not degrade when disabled")
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := New(Config{})
	m.Update(at(0), false, false)
	m.Reset()
	if m.Degraded() {
		t.Fatalf("expected healthy after reset")
	}
	st := m.State(at(100))
	if st.CommandLinkBad || st.CombinedBad {
		t.Fatalf("state=%+v want clean", st)
	}
}
