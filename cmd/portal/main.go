// Command portal runs the citizen intelligence portal and offers a few
// operator commands against the leads API.
package main

import (
	"fmt"
	"os"

	"github.com/citizenintel/portal/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	apiURLFlag string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:           "portal",
	Short:         "Citizen intelligence portal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if apiURLFlag != "" {
			cfg.APIURL = apiURLFlag
		}
		if debugFlag {
			cfg.Debug = true
		}
		logger, err = newLogger(cfg.Debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "leads API base URL (overrides PORTAL_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "development logging")

	rootCmd.AddCommand(serveCmd, feedCmd, trackCmd)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
