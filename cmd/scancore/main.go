// ============================================================================
// scancore - Main Entry Point
// ============================================================================
//
// File: cmd/scancore/main.go
// Purpose: Application entry point and CLI initialization, grounded on the
//          teacher's cmd/queue/main.go: build-time version injection, a
//          global panic recovery wrapper, Cobra command execution.
//
// Usage:
//   ./scancore --help
//   ./scancore --version
//   ./scancore run              # run the built-in example module pair
//   ./scancore status           # show effective configuration
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/scancore/scancore/internal/cli"
	"github.com/scancore/scancore/internal/examplemodule"
	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/internal/module"
	"github.com/scancore/scancore/internal/scan"
)

// Build-time version injection via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// exampleModules registers the built-in discoverer/reporter pair (see
// internal/examplemodule) so `scancore run` demonstrates event routing
// end to end without requiring a concrete scanning module. A real scan
// binary replaces this factory with its own module set.
func exampleModules(ctrl scan.Controller, log *logging.Logger) []*module.Module {
	discoverer := &examplemodule.Discoverer{}
	discovererMod := module.New(examplemodule.DiscoveryConfig("discoverer"), ctrl, discoverer, log)
	discoverer.BindModule(discovererMod)

	reporter := &examplemodule.Reporter{}
	reporterMod := module.New(examplemodule.ReporterConfig("reporter"), ctrl, reporter, log)

	return []*module.Module{discovererMod, reporterMod}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI(exampleModules)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
