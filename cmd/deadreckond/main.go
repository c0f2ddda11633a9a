package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deadreckon/internal/config"
	"deadreckon/internal/distress"
	"deadreckon/internal/eventlog"
	"deadreckon/internal/failsafe"
	"deadreckon/internal/mode"
	"deadreckon/internal/notify"
	"deadreckon/internal/rclink"
	"deadreckon/internal/sim"
	"deadreckon/internal/udp"
	"deadreckon/internal/vehicle"
	"deadreckon/internal/web"
)

func main() {
	var configPath string
	var exitWhenDone bool
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.BoolVar(&exitWhenDone, "exit-when-done", false, "Exit when the sim flight script finishes")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctrlCfg, err := cfg.Failsafe.Controller()
	if err != nil {
		log.Fatalf("failsafe config invalid: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !cfg.Sim.Enable {
		log.Fatalf("no vehicle source configured: sim.enable is the only supported source")
	}
	script, err := sim.LoadFlightScript(cfg.Sim.ScriptPath)
	if err != nil {
		log.Fatalf("flight script load failed: %v", err)
	}
	flight, err := sim.NewFlight(script)
	if err != nil {
		log.Fatalf("flight script invalid: %v", err)
	}
	initialMode := mode.Loiter
	if cfg.Sim.InitialMode != "" {
		initialMode, _ = mode.Parse(cfg.Sim.InitialMode)
	}
	reject := mode.Set{}
	if len(cfg.Sim.RejectModes) > 0 {
		ids := make([]mode.ID, 0, len(cfg.Sim.RejectModes))
		for _, name := range cfg.Sim.RejectModes {
			id, _ := mode.Parse(name)
			ids = append(ids, id)
		}
		reject = mode.NewSet(ids...)
	}
	start := time.Now()
	simVeh := sim.NewVehicle(flight, start, initialMode, reject)

	// External signal sources override the scripted ones when configured.
	var linkFn, auxFn vehicle.SignalFunc
	if cfg.RCLink.Enable {
		link, err := rclink.Open(rclink.Config{
			Device:       cfg.RCLink.Device,
			Baud:         cfg.RCLink.Baud,
			AuxChannel:   cfg.RCLink.AuxChannel,
			AuxThreshold: cfg.RCLink.AuxThreshold,
			StaleAfter:   cfg.RCLink.StaleAfter,
		})
		if err != nil {
			log.Fatalf("rc link init failed: %v", err)
		}
		defer link.Close()
		linkFn = func() bool { return link.LinkValid(time.Now()) }
		if cfg.RCLink.AuxChannel > 0 {
			auxFn = func() bool { return link.AuxDistress(time.Now()) }
		}
		log.Printf("rc link device=%s baud=%d aux_channel=%d", cfg.RCLink.Device, cfg.RCLink.Baud, cfg.RCLink.AuxChannel)
	}
	if cfg.Distress.Enable {
		input, err := distress.Open(distress.Config{
			Chip:       cfg.Distress.Chip,
			Line:       cfg.Distress.Line,
			ActiveHigh: cfg.Distress.ActiveHigh,
		})
		if err != nil {
			log.Fatalf("distress input init failed: %v", err)
		}
		defer input.Close()
		prevAux := auxFn
		auxFn = func() bool {
			if prevAux != nil && prevAux() {
				return true
			}
			return input.Asserted()
		}
		log.Printf("distress input chip=%s line=%d active_high=%v", cfg.Distress.Chip, cfg.Distress.Line, cfg.Distress.ActiveHigh)
	}
	veh := vehicle.WithSignalOverrides(simVeh, linkFn, auxFn)

	notifyFns := []notify.Func{notify.Logger()}
	if cfg.Notify.MQTT.Enable {
		sink, err := notify.NewMQTTSink(cfg.Notify.MQTT)
		if err != nil {
			log.Fatalf("mqtt sink init failed: %v", err)
		}
		defer sink.Close()
		notifyFns = append(notifyFns, sink.Func())
		log.Printf("mqtt notify broker=%s topic=%s", cfg.Notify.MQTT.Broker, cfg.Notify.MQTT.Topic)
	}

	ctrl := failsafe.New(ctrlCfg, veh, notify.Fanout(notifyFns...))

	var events *eventlog.Store
	if cfg.EventLog.Enable {
		events, err = eventlog.Open(ctx, cfg.EventLog.Path)
		if err != nil {
			log.Fatalf("event log init failed: %v", err)
		}
		defer events.Close()
		ctrl.SetEventFunc(func(ev failsafe.Event) {
			rec := eventlog.Record{
				At:        ev.At,
				Kind:      ev.Kind.String(),
				StageFrom: ev.From.String(),
				StageTo:   ev.To.String(),
				Detail:    ev.Detail,
			}
			if ev.Mode != mode.Unset {
				rec.Mode = ev.Mode.String()
			}
			events.Append(rec)
		})
		log.Printf("event log path=%s session=%s", cfg.EventLog.Path, events.SessionID())
	}

	var feed *web.Feed
	if cfg.Web.Enable {
		feed = web.NewFeed()
		go func() {
			err := web.Serve(ctx, cfg.Web.Listen, ctrl.Snapshot, feed, events)
			if err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
		log.Printf("web listen=%s", cfg.Web.Listen)
	}

	var beacon *udp.Broadcaster
	if cfg.Beacon.Enable {
		beacon, err = udp.NewBroadcaster(cfg.Beacon.Dest)
		if err != nil {
			log.Fatalf("beacon init failed: %v", err)
		}
		defer beacon.Close()
		log.Printf("beacon dest=%s interval=%s", cfg.Beacon.Dest, cfg.Beacon.Interval)
	}

	log.Printf("deadreckond starting enabled=%v activation_alt_m=%v timeout=%s",
		ctrlCfg.Enable, ctrlCfg.ActivationAltM, ctrlCfg.Timeout)

	run(ctx, runDeps{
		cfg:          cfg,
		ctrl:         ctrl,
		simVeh:       simVeh,
		veh:          veh,
		events:       events,
		feed:         feed,
		beacon:       beacon,
		exitWhenDone: exitWhenDone,
	})

	log.Printf("deadreckond stopping")
}

type runDeps struct {
	cfg          config.Config
	ctrl         *failsafe.Controller
	simVeh       *sim.Vehicle
	veh          vehicle.Vehicle
	events       *eventlog.Store
	feed         *web.Feed
	beacon       *udp.Broadcaster
	exitWhenDone bool
}

// run drives the controller tick loop. Tick returns the interval until the
// next tick; a timer rather than a ticker keeps the cadence honest when a
// tick overruns.
func run(ctx context.Context, d runDeps) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	var lastBeacon time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		d.simVeh.Advance(now)

		// Rotate the journal session before the tick so events emitted on
		// the arming tick already carry the new session id.
		if d.events != nil {
			if err := d.events.ObserveArmed(ctx, d.veh.Armed()); err != nil {
				log.Printf("event log session rotate err=%v", err)
			}
		}

		next := d.ctrl.Tick(now)
		snap := d.ctrl.Snapshot()

		if d.feed != nil {
			roll, pitch, yaw := d.veh.Attitude()
			d.feed.Publish(web.FeedFrame{
				Stage:        snap.Stage,
				Degraded:     snap.Degraded,
				Armed:        snap.Armed,
				RollDeg:      roll,
				PitchDeg:     pitch,
				YawDeg:       yaw,
				AltAboveHome: snap.AltAboveHomeM,
				Command:      snap.LastCommand,
				AtUTC:        now.UTC().Format(time.RFC3339Nano),
			})
		}

		if d.beacon != nil && now.Sub(lastBeacon) >= d.cfg.Beacon.Interval {
			if err := d.beacon.SendStatus(snap); err != nil {
				log.Printf("beacon send err=%v", err)
			}
			lastBeacon = now
		}

		if d.exitWhenDone && d.simVeh.Done(now) {
			log.Printf("flight script complete")
			return
		}

		timer.Reset(next)
	}
}
