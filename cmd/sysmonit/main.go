// Package main provides the CLI wrapper for sysMonit.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juanpfsti/sysMonit/internal/config"
	"github.com/juanpfsti/sysMonit/pkg/detector"
	"github.com/juanpfsti/sysMonit/pkg/store"
	"github.com/juanpfsti/sysMonit/pkg/sysmonit"
)

var version = "0.1.0"

// defaultVehicleClasses is the class-name order the bundled ONNX model
// is expected to emit; it feeds sysmonit's fixed class-name to Category
// mapping (spec.md §6).
var defaultVehicleClasses = []string{"car", "motorcycle", "moto", "motor", "truck", "bus"}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	rtspURL := flag.String("rtsp-url", "", "RTSP stream URL (overrides config)")
	modelPath := flag.String("model", "", "Path to ONNX detector model (overrides config)")
	countingMode := flag.String("counting-mode", "", "\"line\" or \"zone\" (overrides config)")
	dataDir := flag.String("data-dir", ".", "Directory for counters.db and queue.db")
	verbose := flag.Bool("verbose", false, "Enable verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sysMonit - RTSP traffic camera vehicle counting and queue telemetry\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -config config.json           # Run with a config file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -rtsp-url rtsp://cam/stream   # Override the stream URL\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -verbose                      # Log pipeline status updates\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("sysMonit version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *rtspURL != "" {
		cfg.RTSPURL = *rtspURL
	}
	if *modelPath != "" {
		cfg.Model = *modelPath
	}
	if *countingMode != "" {
		cfg.CountingMode = *countingMode
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if *verbose {
		log.Printf("Configuration:")
		log.Printf("  RTSP: %s", cfg.RTSPURL)
		log.Printf("  Counting mode: %s", cfg.CountingMode)
		log.Printf("  Confidence min: %.2f", cfg.ConfidenceMin)
		log.Printf("  Queue threshold: %.0fs, min wait: %.0fs",
			cfg.QueueConfig.ThresholdSeconds, cfg.QueueConfig.MinWaitSeconds)
	}

	pipelineCfg := cfg.ToPipelineConfig()

	var det detector.Detector
	if cfg.Model != "" {
		onnx, err := detector.NewONNXDetector(detector.ONNXConfig{
			ModelPath:  cfg.Model,
			ClassNames: defaultVehicleClasses,
		})
		if err != nil {
			log.Printf("Error: Model: %v (pipeline will run without detection)", err)
		} else {
			det = onnx
		}
	}

	counterStore, err := store.OpenCounterStore(filepath.Join(*dataDir, "counters.db"))
	if err != nil {
		log.Printf("counters.db unavailable, continuing with in-memory counters only: %v", err)
		counterStore = nil
	}
	queueStore, err := store.OpenQueueStore(filepath.Join(*dataDir, "queue.db"))
	if err != nil {
		log.Printf("queue.db unavailable, continuing without queue history: %v", err)
		queueStore = nil
	}

	supervisor := sysmonit.NewPipelineSupervisor(pipelineCfg, det, counterStore, queueStore)
	supervisor.SetMonitoringActive(true)
	supervisor.SetQueueActive(cfg.QueueConfig.Enabled)

	var updateCh <-chan sysmonit.PipelineUpdate
	if *verbose {
		updateCh, _ = supervisor.Subscribe()
	}

	if err := supervisor.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	log.Println("Pipeline started. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *verbose && updateCh != nil {
		for {
			select {
			case sig := <-sigCh:
				log.Printf("Received signal %v, shutting down...", sig)
				shutdown(supervisor)
				return
			case update, ok := <-updateCh:
				if !ok {
					shutdown(supervisor)
					return
				}
				log.Printf("status=%s fps=%.1f forward=%d return=%d queue=%d",
					update.Status, update.FPS,
					update.Counters.Total(sysmonit.DirectionForward),
					update.Counters.Total(sysmonit.DirectionReturn),
					update.QueueStats.WaitingCount)
			}
		}
	}

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)
	shutdown(supervisor)
}

// shutdown signals the pipeline to stop (Stop returns promptly, spec.md
// §8 property 6) and then blocks in Close until the background finalizer
// has released every resource.
func shutdown(p *sysmonit.PipelineSupervisor) {
	if err := p.Stop(); err != nil {
		log.Printf("stop: %v", err)
	}
	if err := p.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}
