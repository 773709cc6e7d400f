// The main package for the sitecrawl orchestrator executable.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/cmd"
	"github.com/sitecrawl/orchestrator/internal/logging"
)

// main is the entry point. It defers all execution to the Cobra CLI
// library, exiting 1 on fatal error and 2 on usage error per spec.md
// Section 6's exit code contract.
func main() {
	bootstrap, err := logging.New(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build bootstrap logger:", err)
		os.Exit(1)
	}
	logging.Bootstrap(bootstrap)

	if err := cmd.Execute(); err != nil {
		if usageErr, ok := err.(cmd.UsageError); ok {
			bootstrap.Error("usage error", zap.Error(usageErr))
			os.Exit(2)
		}
		bootstrap.Error("fatal error", zap.Error(err))
		os.Exit(1)
	}
}
