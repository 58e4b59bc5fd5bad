package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vaamb/gaia"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("gaia %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to runtime configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := gaia.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := gaia.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}

	// Also parse the environment definition the config points at, so
	// a bad hardware address or unknown model fails here instead of
	// at startup.
	snap, err := gaia.ValidateEnvironment(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("config %s looks good: %d ecosystem(s)\n", *cfgPath, len(snap.Ecosystems))
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"gaia_measurements_total":      0,
		"gaia_events_dispatched_total": 0,
		"gaia_queue_length":            0,
		"gaia_journal_size_bytes":      0,
		"gaia_driver_faults_total":     0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] measurements=%.0f dispatched=%.0f queue=%.0f journal_bytes=%.0f faults=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["gaia_measurements_total"],
		targets["gaia_events_dispatched_total"],
		targets["gaia_queue_length"],
		targets["gaia_journal_size_bytes"],
		targets["gaia_driver_faults_total"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`gaia CLI

Usage:
  gaia <command> [flags]

Commands:
  run        Start the controller using the provided config
  validate   Load and validate the config and environment definition
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  gaia run -config ./data/config.yaml
  gaia validate -config ./data/config.yaml
  gaia stats -url http://localhost:9100/metrics -interval 1s
`)
}
