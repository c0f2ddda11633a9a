package health

import "time"

// Edge marks a combined-health transition observed during an update.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeDegraded
	EdgeRecovered
)

// Config controls the health monitor.
type Config struct {
	// AuxEnabled includes the auxiliary distress signal in the combined flag.
	// When false, only command-link validity participates.
	AuxEnabled bool

	// RecoveryDelay is how long both raw flags must stay clear before the
	// combined flag may drop back to healthy. Defaults to 3 s.
	RecoveryDelay time.Duration
}

// State is a read-only view of the monitor.
type State struct {
	CommandLinkBad bool
	AuxBad         bool
	CombinedBad    bool

	// RecoveryElapsed is how long the raw flags have been continuously clear
	// while CombinedBad is still set. Zero when no recovery is in progress.
	RecoveryElapsed time.Duration
}

// Monitor tracks command-link and auxiliary health with hysteresis.
//
// Degradation is immediate; recovery requires the raw flags to hold clear for
// a full RecoveryDelay, and any bad observation during that window restarts it
// from zero. Single writer under the tick model; no locking.
type Monitor struct {
	cfg Config

	commandLinkBad bool
	auxBad         bool
	combinedBad    bool

	recoveryStart time.Time
	recovering    bool
}

func New(cfg Config) *Monitor {
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = 3 * time.Second
	}
	return &Monitor{cfg: cfg}
}

// Update ingests the raw signals for one tick and returns the edge crossed,
// if any. The raw flags themselves are taken at face value; only the combined
// flag is debounced.
func (m *Monitor) Update(now time.Time, linkValid, auxDistress bool) Edge {
	m.commandLinkBad = !linkValid
	m.auxBad = m.cfg.AuxEnabled && auxDistress

	anyBad := m.commandLinkBad || m.auxBad

	if !m.combinedBad {
		if anyBad {
			m.combinedBad = true
			m.recovering = false
			return EdgeDegraded
		}
		return EdgeNone
	}

	// Combined flag is set: look for a sustained clear window.
	if anyBad {
		// Restart from zero, never resume.
		m.recovering = false
		return EdgeNone
	}
	if !m.recovering {
		m.recovering = true
		m.recoveryStart = now
		return EdgeNone
	}
	if now.Sub(m.recoveryStart) >= m.cfg.RecoveryDelay {
		m.combinedBad = false
		m.recovering = false
		return EdgeRecovered
	}
	return EdgeNone
}

// Degraded reports the combined flag.
func (m *Monitor) Degraded() bool {
	return m.combinedBad
}

func (m *Monitor) State(now time.Time) State {
	st := State{
		CommandLinkBad: m.commandLinkBad,
		AuxBad:         m.auxBad,
		CombinedBad:    m.combinedBad,
	}
	if m.combinedBad && m.recovering {
		st.RecoveryElapsed = now.Sub(m.recoveryStart)
	}
	return st
}

// Reset returns the monitor to its initial healthy state.
func (m *Monitor) Reset() {
	m.commandLinkBad = false
	m.auxBad = false
	m.combinedBad = false
	m.recovering = false
	m.recoveryStart = time.Time{}
}
