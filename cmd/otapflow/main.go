// Package main provides the otapflow pipeline runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otapflow/otapflow/internal/infrastructure/logging"
	"github.com/otapflow/otapflow/pkg/otapflow"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("otapflow %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		return
	}

	configPath := flag.String("config", "pipeline.yaml", "path to pipeline configuration")
	debugAddr := flag.String("debug-addr", "", "listen address for /debug/vars and /debug/pprof (disabled when empty)")
	flag.Parse()

	if err := run(*configPath, *debugAddr); err != nil {
		fmt.Fprintf(os.Stderr, "otapflow: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, debugAddr string) error {
	log := logging.With(logging.Default(), "component", "main")

	eng, err := otapflow.Load(configPath)
	if err != nil {
		return err
	}
	log.Info("pipeline loaded", "config", configPath, "run_id", eng.RunID())

	if debugAddr != "" {
		http.DefaultServeMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprint(w, "ok")
		})
		http.DefaultServeMux.HandleFunc("/metrics", promMetricsHandler)
		go func() {
			// expvar and pprof register themselves on the default mux
			log.Info("debug server listening", "addr", debugAddr)
			if err := http.ListenAndServe(debugAddr, nil); err != nil {
				log.Warn("debug server stopped", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(context.Background()) }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		log.Info("pipeline finished")
		return nil
	case sig := <-sigs:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := eng.Shutdown(ctx, "signal "+sig.String()); err != nil {
			log.Warn("graceful shutdown failed, killing", "error", err)
			if err := eng.Kill(ctx, "forced"); err != nil {
				return err
			}
		}
		select {
		case err := <-runErr:
			if err != nil {
				return fmt.Errorf("pipeline failed during shutdown: %w", err)
			}
			log.Info("pipeline drained cleanly")
			return nil
		case <-ctx.Done():
			return fmt.Errorf("pipeline did not stop before deadline")
		}
	}
}
