// Command session-report renders an HTML report for a recorded session:
// per-hand confidence timelines, pinch spans, and summary statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/handwave-data/handwave/internal/hand"
	"github.com/handwave-data/handwave/internal/store"
)

var (
	dbFile  = flag.String("db", "handwave.db", "Session recorder database")
	session = flag.String("session", "", "Session ID (defaults to the most recent)")
	outFile = flag.String("out", "session-report.html", "Output HTML file")
)

func main() {
	flag.Parse()

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

	intents, err := db.IntentsForSession(id)
	if err != nil {
		log.Fatalf("Failed to load intents: %v", err)
	}
	if len(intents) == 0 {
		log.Fatalf("Session %s has no intent events", id)
	}

	out, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer out.Close()

	line := buildTimeline(id, intents)
	if err := line.Render(out); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}

	printSummary(id, intents)
	log.Printf("Report written to %s", *outFile)
}

// buildTimeline plots confidence over time per hand, with pinch state as
// a step series so drag spans are visible at a glance.
func buildTimeline(session string, intents []hand.Intent) *charts.Line {
	byHand := make(map[int][]hand.Intent)
	for _, ev := range intents {
		if ev.Synthetic {
			continue
		}
		byHand[ev.HandID] = append(byHand[ev.HandID], ev)
	}
	handIDs := make([]int, 0, len(byHand))
	for id := range byHand {
		handIDs = append(handIDs, id)
	}
	sort.Ints(handIDs)

	t0 := intents[0].TimestampMs

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Session Report", Theme: "dark", Width: "1200px", Height: "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Intent Timeline",
			Subtitle: fmt.Sprintf("session=%s events=%d", session, len(intents)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "confidence"}),
	)

	var axis []string
	for _, ev := range byHand[handIDs[0]] {
		axis = append(axis, fmt.Sprintf("%.1f", (ev.TimestampMs-t0)/1000))
	}
	line.SetXAxis(axis)

	for _, handID := range handIDs {
		events := byHand[handID]
		conf := make([]opts.LineData, 0, len(events))
		pinch := make([]opts.LineData, 0, len(events))
		for _, ev := range events {
			conf = append(conf, opts.LineData{Value: ev.Confidence})
			v := 0.0
			if ev.IsPinching {
				v = 1.0
			}
			pinch = append(pinch, opts.LineData{Value: v})
		}
		line.AddSeries(fmt.Sprintf("hand %d confidence", handID), conf)
		line.AddSeries(fmt.Sprintf("hand %d pinching", handID), pinch,
			charts.WithLineChartOpts(opts.LineChart{Step: "end"}))
	}
	return line
}

// printSummary writes aggregate stats to stdout: confidence quantiles,
// pinch duty cycle, and synthetic release count.
func printSummary(session string, intents []hand.Intent) {
	confs := make([]float64, 0, len(intents))
	pinchFrames, syntheticReleases := 0, 0
	for _, ev := range intents {
		if ev.Synthetic {
			syntheticReleases++
			continue
		}
		confs = append(confs, ev.Confidence)
		if ev.IsPinching {
			pinchFrames++
		}
	}
	sort.Float64s(confs)

	fmt.Printf("session %s\n", session)
	fmt.Printf("  events:             %d\n", len(intents))
	fmt.Printf("  confidence p50/p95: %.2f / %.2f\n",
		stat.Quantile(0.50, stat.Empirical, confs, nil),
		stat.Quantile(0.95, stat.Empirical, confs, nil))
	fmt.Printf("  pinch duty cycle:   %.1f%%\n", 100*float64(pinchFrames)/float64(len(confs)))
	fmt.Printf("  synthetic releases: %d\n", syntheticReleases)
}
