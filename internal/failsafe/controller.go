package failsafe

import (
	"fmt"
	"sync/atomic"
	"time"

	"deadreckon/internal/health"
	"deadreckon/internal/history"
	"deadreckon/internal/mode"
	"deadreckon/internal/notify"
	"deadreckon/internal/vehicle"
)

// Config controls the failsafe controller. Zero values pick the shipped
// defaults in New; the config package fills this from YAML.
type Config struct {
	Enable bool

	// TickInterval is the periodic re-invocation interval. Defaults to 100 ms.
	TickInterval time.Duration

	// ActivationAltM is the minimum altitude above home before monitoring
	// engages. Defaults to 15 m.
	ActivationAltM float64

	// LeanAngleDeg clamps the magnitude of replayed roll/pitch targets.
	// Defaults to 30 degrees.
	LeanAngleDeg float64

	// Timeout is the dead-reckoning flight budget. Defaults to 30 s.
	Timeout time.Duration

	// NextMode, when >= 0, is preferred over the saved pre-failsafe mode at
	// recovery. Set to mode.Unset to always restore the pre-failsafe mode;
	// the zero value is a real mode (stabilize), so callers must be explicit.
	NextMode mode.ID

	// BlindGuidedMode accepts direct attitude/climb-rate commands without a
	// position fix. Defaults to guided_nogps.
	BlindGuidedMode mode.ID

	// FallbackMode is the known-safe mode forced when no recovery mode is
	// resolvable or the link is still down at timeout. Defaults to rtl.
	FallbackMode mode.ID

	// Protected is the allow-list of modes dead-reckoning may engage from.
	Protected mode.Set

	// LevelingDuration is how long to hold level before flying home.
	// Defaults to 5 s.
	LevelingDuration time.Duration

	// NotifyEvery throttles periodic status messages. Defaults to 5 s.
	// Edge-triggered messages (degrade, recover, mode changes) bypass it.
	NotifyEvery time.Duration

	Climb  ClimbProfile
	Health health.Config
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.ActivationAltM == 0 {
		c.ActivationAltM = 15
	}
	if c.LeanAngleDeg <= 0 {
		c.LeanAngleDeg = 30
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BlindGuidedMode == 0 {
		c.BlindGuidedMode = mode.GuidedNoGPS
	}
	if c.FallbackMode == 0 {
		c.FallbackMode = mode.RTL
	}
	if c.Protected == nil {
		c.Protected = mode.DefaultProtected()
	}
	if c.LevelingDuration <= 0 {
		c.LevelingDuration = 5 * time.Second
	}
	if c.NotifyEvery <= 0 {
		c.NotifyEvery = 5 * time.Second
	}
	if c.Climb == (ClimbProfile{}) {
		c.Climb = DefaultClimbProfile()
	}
	return c
}

// Command is the last attitude/climb-rate target issued to the vehicle,
// already in command convention (pitch nose-down-negative).
type Command struct {
	RollDeg      float64 `json:"roll_deg"`
	PitchDeg     float64 `json:"pitch_deg"`
	YawDeg       float64 `json:"yaw_deg"`
	ClimbRateMps float64 `json:"climb_rate_mps"`
	Accepted     bool    `json:"accepted"`
}

// Controller is the failsafe state machine. It owns all mutable state
// (stage context, attitude history, health monitor) and is driven by Tick
// from a single goroutine; Snapshot may be read concurrently.
type Controller struct {
	cfg Config
	veh vehicle.Vehicle
	mon *health.Monitor
	buf history.Buffer

	notifyFn notify.Func
	throttle notify.Throttle
	onEvent  EventFunc

	stage           Stage
	stageSince      time.Time
	monitoringSince time.Time
	levelingSince   time.Time
	flyHomeSince    time.Time
	levelingDur     time.Duration
	savedMode       mode.ID
	targetYawDeg    float64
	timeLeft        time.Duration

	lastCommand     Command
	haveLastCommand bool
	lastArmed       bool
	lastAltM        float64
	ticks           uint64

	snap atomic.Value // Snapshot
}

func New(cfg Config, veh vehicle.Vehicle, notifyFn notify.Func) *Controller {
	cfg = cfg.withDefaults()
	if notifyFn == nil {
		notifyFn = notify.Discard
	}
	c := &Controller{
		cfg:       cfg,
		veh:       veh,
		mon:       health.New(cfg.Health),
		notifyFn:  notifyFn,
		throttle:  notify.Throttle{Every: cfg.NotifyEvery},
		stage:     StageIdle,
		savedMode: mode.Unset,
		timeLeft:  cfg.Timeout,
	}
	c.snap.Store(Snapshot{Enabled: cfg.Enable, Stage: StageIdle.String(), SavedMode: mode.Unset.String()})
	return c
}

// SetEventFunc installs the event callback. Call before the first Tick.
func (c *Controller) SetEventFunc(fn EventFunc) {
	c.onEvent = fn
}

// Config returns the effective configuration after defaulting.
func (c *Controller) Config() Config {
	return c.cfg
}

// Tick advances the state machine once and returns the interval until the
// next tick. Exactly one stage is evaluated per call.
func (c *Controller) Tick(now time.Time) time.Duration {
	if !c.cfg.Enable {
		return c.cfg.TickInterval
	}
	c.ticks++

	armed := c.veh.Armed()
	c.lastArmed = armed
	c.lastAltM = c.veh.AltitudeAboveHomeM()

	if !armed {
		c.resetOnDisarm(now)
		c.storeSnapshot(now)
		return c.cfg.TickInterval
	}

	edge := c.mon.Update(now, c.veh.CommandLinkValid(), c.veh.AuxDistress())
	switch edge {
	case health.EdgeDegraded:
		c.notifyFn(notify.Critical, "dead reckoning: command input lost")
		c.emit(Event{At: now, Kind: EventDegraded, From: c.stage, To: c.stage})
	case health.EdgeRecovered:
		c.notifyFn(notify.Info, "dead reckoning: command input recovered")
		c.emit(Event{At: now, Kind: EventRecovered, From: c.stage, To: c.stage})
	}
	degraded := c.mon.Degraded()

	switch c.stage {
	case StageIdle:
		c.tickIdle(now, degraded)
	case StageMonitoring:
		c.tickMonitoring(now, degraded)
	case StageLeveling:
		c.tickLeveling(now)
	case StageFlyHomeBlind:
		c.tickFlyHomeBlind(now, degraded)
	}

	c.storeSnapshot(now)
	return c.cfg.TickInterval
}

func (c *Controller) tickIdle(now time.Time, degraded bool) {
	if degraded {
		return
	}
	if c.lastAltM < c.cfg.ActivationAltM {
		return
	}
	c.monitoringSince = now
	c.setStage(now, StageMonitoring, fmt.Sprintf("monitoring engaged alt=%.1fm", c.lastAltM))
}

func (c *Controller) tickMonitoring(now time.Time, degraded bool) {
	roll, pitch, yaw := c.veh.Attitude()
	c.buf.Push(history.Sample{RollDeg: roll, PitchDeg: pitch, YawDeg: yaw})

	if !degraded {
		// Keep tracking the mode to restore after recovery.
		c.savedMode = c.veh.FlightMode()
		return
	}

	cur := c.veh.FlightMode()
	if !c.cfg.Protected.Contains(cur) {
		return
	}
	if !c.veh.SetFlightMode(c.cfg.BlindGuidedMode) {
		if c.throttle.Notify(now, c.notifyFn, notify.Warning,
			fmt.Sprintf("dead reckoning: %s mode switch rejected", c.cfg.BlindGuidedMode)) {
			c.emit(Event{At: now, Kind: EventModeSwitchFailed, From: c.stage, To: c.stage, Mode: c.cfg.BlindGuidedMode})
		}
		return
	}
	c.targetYawDeg = yaw
	c.levelingSince = now
	c.setStage(now, StageLeveling, fmt.Sprintf("leveling at yaw=%.0f", yaw))
}

// tickLeveling always runs its full duration; recovery is evaluated in
// fly-home, where the banked time budget applies.
func (c *Controller) tickLeveling(now time.Time) {
	if c.veh.FlightMode() != c.cfg.BlindGuidedMode {
		c.pilotOverride(now)
		return
	}

	c.issueCommand(now, Command{YawDeg: c.targetYawDeg})

	if elapsed := now.Sub(c.levelingSince); elapsed >= c.cfg.LevelingDuration {
		c.levelingDur = elapsed
		c.flyHomeSince = now
		c.setStage(now, StageFlyHomeBlind, fmt.Sprintf("flying home blind samples=%d", c.buf.Len()))
	}
}

func (c *Controller) tickFlyHomeBlind(now time.Time, degraded bool) {
	if c.veh.FlightMode() != c.cfg.BlindGuidedMode {
		c.pilotOverride(now)
		return
	}

	elapsed := now.Sub(c.flyHomeSince)
	allowed := c.levelingDur + c.timeLeft
	timedOut := elapsed >= allowed

	cmd := c.replayCommand()
	cmd.ClimbRateMps = c.cfg.Climb.Rate(c.lastAltM)
	c.issueCommand(now, cmd)

	if !degraded || timedOut {
		if timedOut {
			c.timeLeft = 0
		} else {
			// Bank the remaining budget so a later re-entry resumes the clock.
			c.timeLeft = allowed - elapsed
		}
		c.recover(now, degraded, timedOut)
	}
}

// replayCommand drains one sample per tick until only the terminal sample
// remains, which is then held level at its yaw.
func (c *Controller) replayCommand() Command {
	if c.buf.Len() > 1 {
		s, _ := c.buf.ReplayNext()
		return Command{
			RollDeg: clamp(s.RollDeg, c.cfg.LeanAngleDeg),
			// Stored pitch is nose-down-positive; commands are nose-down-negative.
			PitchDeg: -clamp(s.PitchDeg, c.cfg.LeanAngleDeg),
			YawDeg:   s.YawDeg,
		}
	}
	if s, ok := c.buf.Last(); ok {
		return Command{YawDeg: s.YawDeg}
	}
	return Command{YawDeg: c.targetYawDeg}
}

func (c *Controller) issueCommand(now time.Time, cmd Command) {
	cmd.Accepted = c.veh.CommandAttitude(cmd.RollDeg, cmd.PitchDeg, cmd.YawDeg, cmd.ClimbRateMps)
	c.lastCommand = cmd
	c.haveLastCommand = true
	if !cmd.Accepted {
		if c.throttle.Notify(now, c.notifyFn, notify.Warning, "dead reckoning: attitude command rejected") {
			c.emit(Event{At: now, Kind: EventCommandFailed, From: c.stage, To: c.stage})
		}
	}
}

// recover hands control back: restore the selected mode, falling back to the
// configured safe mode on rejection, and return to idle no matter what.
func (c *Controller) recover(now time.Time, stillDegraded, timedOut bool) {
	target, forced := c.selectRecoveryMode(stillDegraded)
	if forced != "" {
		c.notifyFn(notify.Warning, "dead reckoning: "+forced)
	}
	c.emit(Event{At: now, Kind: EventRecoveryMode, From: c.stage, To: StageIdle, Mode: target,
		Detail: fmt.Sprintf("timed_out=%v degraded=%v", timedOut, stillDegraded)})

	if c.veh.SetFlightMode(target) {
		c.notifyFn(notify.Info, fmt.Sprintf("dead reckoning: mode restored to %s", target))
	} else {
		c.notifyFn(notify.Critical, fmt.Sprintf("dead reckoning: %s mode switch rejected", target))
		c.emit(Event{At: now, Kind: EventModeSwitchFailed, From: c.stage, To: StageIdle, Mode: target})
		if target != c.cfg.FallbackMode && c.veh.SetFlightMode(c.cfg.FallbackMode) {
			c.notifyFn(notify.Warning, fmt.Sprintf("dead reckoning: fallback %s engaged", c.cfg.FallbackMode))
		} else {
			c.notifyFn(notify.Critical, "dead reckoning: fallback mode switch rejected")
		}
	}
	// Never stall in fly-home once recovery is due.
	c.setStage(now, StageIdle, "recovery complete")
}

// selectRecoveryMode resolves the mode to restore. forced is a non-empty
// explanation when the fallback overrides the preferred choice.
func (c *Controller) selectRecoveryMode(stillDegraded bool) (target mode.ID, forced string) {
	preferred := c.cfg.NextMode
	if preferred < 0 {
		preferred = c.savedMode
	}
	if preferred < 0 {
		return c.cfg.FallbackMode, fmt.Sprintf("no recovery mode recorded, forcing %s", c.cfg.FallbackMode)
	}
	if stillDegraded {
		return c.cfg.FallbackMode, fmt.Sprintf("still degraded at recovery, forcing %s", c.cfg.FallbackMode)
	}
	return preferred, ""
}

func (c *Controller) pilotOverride(now time.Time) {
	// Deliberate pilot action, not an error. History is kept so a later
	// re-engagement picks up where it left off.
	c.monitoringSince = now
	c.setStage(now, StageMonitoring, "pilot override")
}

func (c *Controller) setStage(now time.Time, to Stage, detail string) {
	from := c.stage
	c.stage = to
	c.stageSince = now
	c.notifyFn(notify.Info, fmt.Sprintf("dead reckoning: %s -> %s (%s)", from, to, detail))
	c.emit(Event{At: now, Kind: EventStageChange, From: from, To: to, Mode: mode.Unset, Detail: detail})
}

// resetOnDisarm is the unconditional hard reset: stage, history, timers,
// saved mode, health hysteresis and the flight budget all return to initial.
func (c *Controller) resetOnDisarm(now time.Time) {
	if c.stage != StageIdle {
		c.setStage(now, StageIdle, "disarmed")
	}
	c.buf.Clear()
	c.mon.Reset()
	c.savedMode = mode.Unset
	c.targetYawDeg = 0
	c.timeLeft = c.cfg.Timeout
	c.levelingDur = 0
	c.monitoringSince = time.Time{}
	c.levelingSince = time.Time{}
	c.flyHomeSince = time.Time{}
	c.haveLastCommand = false
	c.throttle.Reset()
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// Snapshot is a read-only view for status surfaces (web, UDP beacon).
type Snapshot struct {
	Enabled bool   `json:"enabled"`
	Stage   string `json:"stage"`
	Armed   bool   `json:"armed"`

	Degraded       bool `json:"degraded"`
	CommandLinkBad bool `json:"command_link_bad"`
	AuxBad         bool `json:"aux_bad"`

	AltAboveHomeM float64 `json:"alt_above_home_m"`
	BufferLen     int     `json:"buffer_len"`
	SavedMode     string  `json:"saved_mode"`
	TargetYawDeg  float64 `json:"target_yaw_deg"`
	TimeLeftSec   float64 `json:"time_left_sec"`

	LastCommand *Command `json:"last_command,omitempty"`

	Ticks         uint64 `json:"ticks"`
	StageSinceUTC string `json:"stage_since_utc,omitempty"`
}

func (c *Controller) storeSnapshot(now time.Time) {
	st := c.mon.State(now)
	snap := Snapshot{
		Enabled:        c.cfg.Enable,
		Stage:          c.stage.String(),
		Armed:          c.lastArmed,
		Degraded:       st.CombinedBad,
		CommandLinkBad: st.CommandLinkBad,
		AuxBad:         st.AuxBad,
		AltAboveHomeM:  c.lastAltM,
		BufferLen:      c.buf.Len(),
		SavedMode:      c.savedMode.String(),
		TargetYawDeg:   c.targetYawDeg,
		TimeLeftSec:    c.timeLeft.Seconds(),
		Ticks:          c.ticks,
	}
	if c.haveLastCommand {
		cmd := c.lastCommand
		snap.LastCommand = &cmd
	}
	if !c.stageSince.IsZero() {
		snap.StageSinceUTC = c.stageSince.UTC().Format(time.RFC3339Nano)
	}
	c.snap.Store(snap)
}

// Snapshot returns the view stored at the end of the last tick. Safe for
// concurrent readers.
func (c *Controller) Snapshot() Snapshot {
	v := c.snap.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}
