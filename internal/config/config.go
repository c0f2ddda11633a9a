package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"deadreckon/internal/failsafe"
	"deadreckon/internal/health"
	"deadreckon/internal/mode"
	"deadreckon/internal/notify"
)

type Config struct {
	Failsafe FailsafeConfig `yaml:"failsafe"`
	Sim      SimConfig      `yaml:"sim"`
	RCLink   RCLinkConfig   `yaml:"rc_link"`
	Distress DistressConfig `yaml:"distress"`
	Notify   NotifyConfig   `yaml:"notify"`
	EventLog EventLogConfig `yaml:"event_log"`
	Web      WebConfig      `yaml:"web"`
	Beacon   BeaconConfig   `yaml:"beacon"`
}

// FailsafeConfig is the YAML surface of the controller tuning. Mode fields
// are names ("loiter", "rtl", ...) rather than raw ids; an empty next_mode
// means "restore whatever mode was active before the failsafe engaged".
type FailsafeConfig struct {
	Enable           bool          `yaml:"enable"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	ActivationAltM   float64       `yaml:"activation_alt_m"`
	LeanAngleDeg     float64       `yaml:"lean_angle_deg"`
	Timeout          time.Duration `yaml:"timeout"`
	NextMode         string        `yaml:"next_mode"`
	BlindGuidedMode  string        `yaml:"blind_guided_mode"`
	FallbackMode     string        `yaml:"fallback_mode"`
	ProtectedModes   []string      `yaml:"protected_modes"`
	LevelingDuration time.Duration `yaml:"leveling_duration"`
	NotifyEvery      time.Duration `yaml:"notify_every"`
	RecoveryDelay    time.Duration `yaml:"recovery_delay"`
	AuxEnabled       bool          `yaml:"aux_enabled"`
	Climb            ClimbConfig   `yaml:"climb"`
}

type ClimbConfig struct {
	FullBelowM     float64 `yaml:"full_below_m"`
	ZeroAboveM     float64 `yaml:"zero_above_m"`
	FullRateMps    float64 `yaml:"full_rate_mps"`
	TrickleRateMps float64 `yaml:"trickle_rate_mps"`
}

type SimConfig struct {
	Enable      bool     `yaml:"enable"`
	ScriptPath  string   `yaml:"script_path"`
	InitialMode string   `yaml:"initial_mode"`
	RejectModes []string `yaml:"reject_modes"`
}

type RCLinkConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// AuxChannel is the 1-based SBUS channel watched for the distress
	// threshold. Zero disables the channel-based aux signal.
	AuxChannel   int           `yaml:"aux_channel"`
	AuxThreshold int           `yaml:"aux_threshold"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type DistressConfig struct {
	Enable     bool   `yaml:"enable"`
	Chip       string `yaml:"chip"`
	Line       int    `yaml:"line"`
	ActiveHigh bool   `yaml:"active_high"`
}

type NotifyConfig struct {
	MQTT notify.MQTTConfig `yaml:"mqtt"`
}

type EventLogConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type BeaconConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	// Mode names are validated up front so a typo fails at startup, not in
	// the air when the failsafe first needs them.
	if _, err := cfg.Failsafe.Controller(); err != nil {
		return Config{}, err
	}

	if cfg.Sim.Enable {
		if cfg.Sim.ScriptPath == "" {
			return Config{}, fmt.Errorf("sim.script_path is required when sim.enable is true")
		}
		if cfg.Sim.InitialMode == "" {
			cfg.Sim.InitialMode = mode.Loiter.String()
		}
		if _, err := mode.Parse(cfg.Sim.InitialMode); err != nil {
			return Config{}, fmt.Errorf("sim.initial_mode: %w", err)
		}
		for _, m := range cfg.Sim.RejectModes {
			if _, err := mode.Parse(m); err != nil {
				return Config{}, fmt.Errorf("sim.reject_modes: %w", err)
			}
		}
	}

	if cfg.RCLink.Enable {
		if cfg.RCLink.Device == "" {
			return Config{}, fmt.Errorf("rc_link.device is required when rc_link.enable is true")
		}
		if cfg.RCLink.Baud <= 0 {
			cfg.RCLink.Baud = 100000
		}
		if cfg.RCLink.AuxChannel < 0 || cfg.RCLink.AuxChannel > 16 {
			return Config{}, fmt.Errorf("rc_link.aux_channel must be in 0..16")
		}
		if cfg.RCLink.AuxChannel > 0 && cfg.RCLink.AuxThreshold <= 0 {
			cfg.RCLink.AuxThreshold = 1500
		}
		if cfg.RCLink.StaleAfter <= 0 {
			cfg.RCLink.StaleAfter = 500 * time.Millisecond
		}
	}

	if cfg.Distress.Enable {
		if cfg.Distress.Chip == "" {
			cfg.Distress.Chip = "gpiochip0"
		}
		if cfg.Distress.Line < 0 {
			return Config{}, fmt.Errorf("distress.line must be >= 0")
		}
	}

	if cfg.Notify.MQTT.Enable && cfg.Notify.MQTT.Broker == "" {
		return Config{}, fmt.Errorf("notify.mqtt.broker is required when notify.mqtt.enable is true")
	}

	if cfg.EventLog.Enable && cfg.EventLog.Path == "" {
		return Config{}, fmt.Errorf("event_log.path is required when event_log.enable is true")
	}

	if cfg.Web.Enable && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8099"
	}

	if cfg.Beacon.Enable {
		if cfg.Beacon.Dest == "" {
			return Config{}, fmt.Errorf("beacon.dest is required when beacon.enable is true")
		}
		if cfg.Beacon.Interval <= 0 {
			cfg.Beacon.Interval = 1 * time.Second
		}
	}

	return cfg, nil
}

// Controller maps the YAML tuning onto the runtime controller config.
// Unset mode names resolve to the controller defaults.
func (fc FailsafeConfig) Controller() (failsafe.Config, error) {
	out := failsafe.Config{
		Enable:           fc.Enable,
		TickInterval:     fc.TickInterval,
		ActivationAltM:   fc.ActivationAltM,
		LeanAngleDeg:     fc.LeanAngleDeg,
		Timeout:          fc.Timeout,
		NextMode:         mode.Unset,
		LevelingDuration: fc.LevelingDuration,
		NotifyEvery:      fc.NotifyEvery,
		Climb: failsafe.ClimbProfile{
			FullBelowM:     fc.Climb.FullBelowM,
			ZeroAboveM:     fc.Climb.ZeroAboveM,
			FullRateMps:    fc.Climb.FullRateMps,
			TrickleRateMps: fc.Climb.TrickleRateMps,
		},
		Health: health.Config{
			AuxEnabled:    fc.AuxEnabled,
			RecoveryDelay: fc.RecoveryDelay,
		},
	}

	if fc.NextMode != "" {
		id, err := mode.Parse(fc.NextMode)
		if err != nil {
			return failsafe.Config{}, fmt.Errorf("failsafe.next_mode: %w", err)
		}
		out.NextMode = id
	}
	if fc.BlindGuidedMode != "" {
		id, err := mode.Parse(fc.BlindGuidedMode)
		if err != nil {
			return failsafe.Config{}, fmt.Errorf("failsafe.blind_guided_mode: %w", err)
		}
		out.BlindGuidedMode = id
	}
	if fc.FallbackMode != "" {
		id, err := mode.Parse(fc.FallbackMode)
		if err != nil {
			return failsafe.Config{}, fmt.Errorf("failsafe.fallback_mode: %w", err)
		}
		out.FallbackMode = id
	}
	if len(fc.ProtectedModes) > 0 {
		ids := make([]mode.ID, 0, len(fc.ProtectedModes))
		for _, m := range fc.ProtectedModes {
			id, err := mode.Parse(m)
			if err != nil {
				return failsafe.Config{}, fmt.Errorf("failsafe.protected_modes: %w", err)
			}
			ids = append(ids, id)
		}
		out.Protected = mode.NewSet(ids...)
	}
	return out, nil
}
