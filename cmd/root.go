// Package cmd defines and implements the CLI commands for the sitecrawl
// orchestrator executable, grounded on the teacher's cmd/root.go +
// cmd/crawl.go split between a persistent root command and per-purpose
// subcommands.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitecrawl",
		Short: "Distributed, filesystem-coordinated web crawl orchestrator.",
		Long: `sitecrawl discovers, fetches, and validates meta-content for a target
website using cooperating worker processes that coordinate through the
filesystem alone, with no shared database required.`,
	}

	cobra.OnInitialize(initConfig)
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.* in ., /etc/sitecrawl/ or $HOME/.sitecrawl/)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newWorkerCmd())
	return root
}

func initConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/sitecrawl/")
	viper.AddConfigPath("$HOME/.sitecrawl")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.Default().Debug("config file not found; using flags, env, and defaults")
		} else {
			logging.Default().Warn("error reading config file", zap.Error(err))
		}
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
