package failsafe

import (
	"time"

	"deadreckon/internal/mode"
)

// Stage identifies the controller's position in the recovery sequence.
type Stage int

const (
	// StageIdle is the initial stage, re-entered on disarm and after recovery.
	StageIdle Stage = iota
	// StageMonitoring records attitude history while flight is healthy.
	StageMonitoring
	// StageLeveling holds wings level at the captured yaw before flying home.
	StageLeveling
	// StageFlyHomeBlind replays the recorded attitude history in reverse.
	StageFlyHomeBlind
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageMonitoring:
		return "monitoring"
	case StageLeveling:
		return "leveling"
	case StageFlyHomeBlind:
		return "fly_home_blind"
	default:
		return "unknown"
	}
}

// EventKind classifies a controller event for journaling and live feeds.
type EventKind int

const (
	EventStageChange EventKind = iota
	EventDegraded
	EventRecovered
	EventModeSwitchFailed
	EventCommandFailed
	EventRecoveryMode
)

func (k EventKind) String() string {
	switch k {
	case EventStageChange:
		return "stage_change"
	case EventDegraded:
		return "degraded"
	case EventRecovered:
		return "recovered"
	case EventModeSwitchFailed:
		return "mode_switch_failed"
	case EventCommandFailed:
		return "command_failed"
	case EventRecoveryMode:
		return "recovery_mode"
	default:
		return "unknown"
	}
}

// Event is a single controller occurrence. From/To are meaningful for
// EventStageChange; Mode for mode-related kinds.
type Event struct {
	At     time.Time
	Kind   EventKind
	From   Stage
	To     Stage
	Mode   mode.ID
	Detail string
}

// EventFunc receives controller events. Implementations must not block: the
// callback runs inside the control tick.
type EventFunc func(Event)
