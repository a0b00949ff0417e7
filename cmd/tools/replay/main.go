// Command replay feeds a recorded session's raw frames back through a
// freshly constructed pipeline, printing the stabilised intent stream.
// Useful for reproducing stabilisation decisions offline and for
// comparing tuning candidates against the same capture.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/config"
	"github.com/handwave-data/handwave/internal/hand"
	"github.com/handwave-data/handwave/internal/monitoring"
	"github.com/handwave-data/handwave/internal/pipeline"
	"github.com/handwave-data/handwave/internal/store"
)

var (
	dbFile     = flag.String("db", "handwave.db", "Session recorder database")
	session    = flag.String("session", "", "Session ID (defaults to the most recent)")
	configFile = flag.String("config", "", "Tuning config JSON (defaults when empty)")
	quiet      = flag.Bool("quiet", false, "Suppress per-event output, print summary only")
)

func main() {
	flag.Parse()
	monitoring.SetLogger(nil)

	db, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	id := *session
	if id == "" {
		sessions, err := db.ListSessions()
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("No recorded sessions")
		}
		id = sessions[0].ID
	}

	frames, err := db.FramesForSession(id)
	if err != nil {
		log.Fatalf("Failed to load frames: %v", err)
	}
	if len(frames) == 0 {
		log.Fatalf("Session %s has no raw frames (was record_raw_frames enabled?)", id)
	}

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(len(frames) * 2)
	engine := pipeline.New(tuning, b, nil)

	// Group frames into ticks by timestamp: hands sharing a timestamp
	// arrived in the same sensor callback.
	var tick []hand.Frame
	flush := func() {
		if len(tick) == 0 {
			return
		}
		engine.ProcessFrames(tick[0].TimestampMs, tick)
		tick = tick[:0]
	}
	for _, f := range frames {
		if len(tick) > 0 && f.TimestampMs != tick[0].TimestampMs {
			flush()
		}
		tick = append(tick, f)
	}
	flush()
	b.Close()

	events := 0
	for ev := range sub.C {
		events++
		if *quiet {
			continue
		}
		tag := " "
		if ev.Synthetic {
			tag = "*"
		}
		fmt.Printf("%10.1f %s hand=%d pinch=%-5v %-11s conf=%.2f (%.3f, %.3f)\n",
			ev.TimestampMs, tag, ev.HandID, ev.IsPinching, ev.Gesture, ev.Confidence, ev.X, ev.Y)
	}

	m := engine.MetricsSnapshot()
	fmt.Printf("replayed %d frames -> %d intents (%d synthetic releases, %d coast timeouts)\n",
		len(frames), events, m.SyntheticReleases, m.CoastTimeouts)
}
