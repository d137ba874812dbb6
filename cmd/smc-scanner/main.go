// Command smc-scanner is the entrypoint for the structure scanner daemon
// and CLI: it loads configuration, builds the cobra command tree, and maps
// returned errors to process exit codes.
package main

import (
	"fmt"
	"os"

	"smc-scanner/internal/cli"
	"smc-scanner/internal/config"
	appErrors "smc-scanner/internal/errors"
	"smc-scanner/internal/logging"
)

// Exit codes: 0 normal, 64 config invalid, 69 provider authentication
// required, 70 unexpected internal error.
const (
	exitOK            = 0
	exitConfigInvalid = 64
	exitAuthRequired  = 69
	exitSoftware      = 70
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.NewLogger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Error().Err(err).Msg("configuration error")
		var configErr *appErrors.ConfigError
		if appErrors.As(err, &configErr) {
			fmt.Fprintln(os.Stderr, err)
			return exitConfigInvalid
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigInvalid
	}

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		var authErr *appErrors.CandleSourceAuth
		if appErrors.As(err, &authErr) {
			fmt.Fprintln(os.Stderr, err)
			return exitAuthRequired
		}
		var configErr *appErrors.ConfigError
		if appErrors.As(err, &configErr) {
			fmt.Fprintln(os.Stderr, err)
			return exitConfigInvalid
		}
		fmt.Fprintln(os.Stderr, err)
		return exitSoftware
	}

	return exitOK
}
