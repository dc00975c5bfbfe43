// ============================================================================
// scancore CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface driving internal/scan.Engine.
//          Grounded on the teacher's internal/cli (Cobra root command +
//          YAML --config flag + signal-driven graceful shutdown), retargeted
//          from distributed job-queue semantics (master/worker/gRPC) to the
//          module execution core: run the engine against a seed event and a
//          set of registered modules, report status, version.
//
// Command Structure:
//   scancore                        # Root command
//   ├── run                         # Start the scan engine
//   │   ├── --config, -c           # Config file (default configs/default.yaml)
//   │   └── --seed-type            # Event type to seed the scan with
//   ├── status                      # Show effective configuration
//   ├── --version
//   └── --help
//
// run Command:
//   1. Load config (internal/config)
//   2. Build internal/metrics.Collector, internal/dedup.BloomDeduplicator
//   3. Start the Prometheus metrics HTTP server, if enabled
//   4. Register every module built by the ModuleFactory passed to BuildCLI
//   5. Seed the engine and run it to quiescence
//   6. Listen for SIGINT/SIGTERM and cancel the run context early
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scancore/scancore/internal/config"
	"github.com/scancore/scancore/internal/dedup"
	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/internal/metrics"
	"github.com/scancore/scancore/internal/module"
	"github.com/scancore/scancore/internal/scan"
	"github.com/scancore/scancore/pkg/types"
)

// ModuleFactory builds the set of modules a scan registers into the engine.
// The core itself owns no concrete scanning modules (spec.md §1 Non-goals);
// a binary embedding this CLI supplies one, e.g. from cmd/scancore/main.go.
type ModuleFactory func(ctrl scan.Controller, log *logging.Logger) []*module.Module

var (
	configFile string
	seedType   string
	modules    ModuleFactory
)

// BuildCLI constructs the root "scancore" command. moduleFactory supplies the
// concrete module set the run command registers; pass nil to get a CLI
// that runs the engine with no modules registered (a no-op scan, useful
// for exercising the ambient stack without any domain modules wired in).
func BuildCLI(moduleFactory ModuleFactory) *cobra.Command {
	modules = moduleFactory

	rootCmd := &cobra.Command{
		Use:   "scancore",
		Short: "scancore: an event-driven module execution core",
		Long: `scancore runs an event-driven scan: modules consume events from
a private incoming queue, emit new events onto a private outgoing queue, and
the engine routes outgoing events to every module watching that event type
until the scan reaches quiescence.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scan engine and run it to quiescence",
		Long:  "Load config, register modules, seed the scan, and run until every module has finished.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&seedType, "seed-type", "SEED", "event type the scan is seeded with")

	return cmd
}

func runScan(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(nil)

	mc := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := mc.StartServer(ctx, cfg.Metrics.Port); err != nil {
				log.Warning(err, "metrics server stopped")
			}
		}()
	}

	var dd dedup.Deduplicator
	if cfg.Dedup.Enabled {
		dd = dedup.New(cfg.Dedup.Window(), cfg.Dedup.Capacity, cfg.Dedup.FPRate, log)
	}

	engine := scan.NewEngine(scan.EngineConfig{
		ScopeSearchDistance: cfg.Scan.ScopeSearchDistance,
		PollInterval:        cfg.Quiescence.PollInterval(),
		ResampleWindow:      cfg.Quiescence.ResampleWindow(),
	}, mc, dd, log)

	if modules != nil {
		for _, mod := range modules(engine, log) {
			engine.RegisterModule(mod)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info("received shutdown signal, stopping scan")
			cancel()
		case <-runCtx.Done():
		}
	}()

	engine.Seed(&types.Event{Type: types.EventType(seedType), Priority: 3, Tags: map[types.Tag]struct{}{types.TagTarget: {}}})

	log.Info("scan started")
	if err := engine.Run(runCtx); err != nil {
		return fmt.Errorf("scan run: %w", err)
	}
	log.Info("scan finished")
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the effective scan configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("scancore configuration")
	fmt.Printf("  config file:           %s\n", configFile)
	fmt.Printf("  scope search distance: %d\n", cfg.Scan.ScopeSearchDistance)
	fmt.Println()

	fmt.Println("dedup:")
	fmt.Printf("  enabled:  %t\n", cfg.Dedup.Enabled)
	fmt.Printf("  window:   %s\n", cfg.Dedup.Window())
	fmt.Printf("  capacity: %d\n", cfg.Dedup.Capacity)
	fmt.Printf("  fp rate:  %g\n", cfg.Dedup.FPRate)
	fmt.Println()

	fmt.Println("metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  disabled")
	}
	fmt.Println()

	fmt.Println("quiescence:")
	fmt.Printf("  poll interval:    %s\n", cfg.Quiescence.PollInterval())
	fmt.Printf("  resample window:  %s\n", cfg.Quiescence.ResampleWindow())
	if len(cfg.Modules) > 0 {
		fmt.Println()
		fmt.Println("module overrides:")
		for name := range cfg.Modules {
			fmt.Printf("  - %s\n", name)
		}
	}

	return nil
}
