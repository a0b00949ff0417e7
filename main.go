// Command handwaved runs the hand-intent stabilisation daemon: it accepts
// landmark frames from a camera-side producer over websocket, stabilises
// them into pointer intent, and broadcasts the result to consumers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/handwave-data/handwave/internal/api"
	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/config"
	"github.com/handwave-data/handwave/internal/pipeline"
	"github.com/handwave-data/handwave/internal/store"
)

var (
	listen     = flag.String("listen", "127.0.0.1:8750", "Listen address")
	dbFile     = flag.String("db", "handwave.db", "Session recorder database (empty disables recording)")
	configFile = flag.String("config", "", "Tuning config JSON (watched for changes; defaults when empty)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	// Tuning: defaults, or a watched file when one is given.
	tuning := config.DefaultTuningConfig()
	var watcher *config.Watcher
	if *configFile != "" {
		var err error
		watcher, err = config.NewWatcher(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
		tuning = watcher.Current()
	}

	// Recorder: optional.
	var recorder pipeline.Recorder
	var db *store.Store
	if *dbFile != "" {
		var err error
		db, err = store.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open recorder database: %v", err)
		}
		defer db.Close()
		recorder = db
	}

	b := bus.New()
	defer b.Close()

	engine := pipeline.New(tuning, b, recorder)
	if db != nil {
		if err := db.CreateSession(engine.Session()); err != nil {
			log.Fatalf("Failed to register session: %v", err)
		}
	}
	log.Printf("Session %s", engine.Session())

	if watcher != nil {
		watcher.OnChange(engine.ApplyTuning)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to watch config: %v", err)
		}
		defer watcher.Stop()
	}

	server := api.NewServer(engine, b)
	httpServer := &http.Server{
		Addr:    *listen,
		Handler: server.ServeMux(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", *listen)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
