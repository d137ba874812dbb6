// Package cli provides the command-line interface for the structure
// scanner: a cobra command tree over a fully wired App of candle source,
// store, scheduler, alert generator, and subscription bus.
package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smc-scanner/internal/aggregator"
	"smc-scanner/internal/alerts"
	"smc-scanner/internal/analyzer"
	"smc-scanner/internal/bus"
	"smc-scanner/internal/candlesource"
	"smc-scanner/internal/config"
	"smc-scanner/internal/fvg"
	"smc-scanner/internal/logging"
	"smc-scanner/internal/metrics"
	"smc-scanner/internal/models"
	"smc-scanner/internal/scheduler"
	"smc-scanner/internal/store"
	"smc-scanner/internal/structure"
)

// Version information.
const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// App holds the wired application dependencies shared across subcommands.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Source    candlesource.CandleSource
	Store     *store.SignalStore
	Alias     *store.AliasTable
	Bus       *bus.Bus
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Alerts    *alerts.Generator
}

// NewRootCmd creates the root command for the CLI, wiring the candle
// source, signal store, alert generator, subscription bus, and scheduler
// from cfg before the command tree is built, so every subcommand shares
// the same dependencies.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	if cfg.IsLive() {
		live := candlesource.NewLive(candlesource.LiveConfig{
			APIKey:      cfg.Credentials.Zerodha.APIKey,
			APISecret:   cfg.Credentials.Zerodha.APISecret,
			AccessToken: cfg.Credentials.Zerodha.AccessToken,
		})
		app.Source = live
		logger.Debug().Msg("live Kite Connect candle source initialized")
	} else {
		app.Source = candlesource.NewMock()
		logger.Debug().Msg("mock candle source initialized")
	}

	aliasPath := filepath.Join(config.DefaultConfigDir(), "aliases.db")
	if alias, err := store.NewAliasTable(aliasPath); err != nil {
		logger.Warn().Err(err).Msg("failed to open alias table, symbol search falls back to substring match")
	} else {
		app.Alias = alias
	}

	if cfg.Server.MetricsOn {
		app.Metrics = metrics.New()
	}

	app.Store = store.New(3*cfg.Scan.ScanInterval(), app.Alias)
	app.Bus = bus.New()
	app.Bus.OnOverflow(func(err error) {
		logger.Warn().Err(err).Msg("alert bus overflow")
		if app.Metrics != nil {
			app.Metrics.BusDrops.Inc()
		}
	})

	app.Alerts = alerts.New(alerts.Config{
		ProximityNearPct: cfg.Scan.ProximityNearPct,
		ProximityFarPct:  cfg.Scan.ProximityFarPct,
		DedupeWindow:     alerts.DefaultDedupeWindow,
	})

	schedCfg := scheduler.Config{
		ScanInterval:         cfg.Scan.ScanInterval(),
		MaxConcurrentSymbols: cfg.Scan.MaxConcurrentSymbols,
		CandleFetchTimeout:   5 * time.Second,
		Aggregator: aggregator.Config{
			Analyzer: analyzer.Config{
				Structure: structure.Config{
					BOSThresholdPct:         cfg.Scan.BOSThresholdPct,
					CHOCHThresholdPct:       cfg.Scan.CHOCHThresholdPct,
					MinStructureDistancePct: cfg.Scan.MinStructureDistancePct,
					StructureLockBars:       cfg.Scan.StructureLockBars,
				},
				FVG: fvg.Config{
					MinFVGSizePct: cfg.Scan.MinFVGSizePct,
					PruneBars:     cfg.Scan.FVGPruneBars,
				},
				BaseLookback: cfg.Scan.BaseLookback,
			},
			MinMatches:     cfg.Scan.MinMatchingTimeframes,
			CandleLookback: 200,
		},
	}
	app.Scheduler = scheduler.New(schedCfg, app.Source, app.Store, cfg.Symbols.Watchlist, logger)
	app.Scheduler.OnPublish(func(sig models.InstrumentSignal) {
		for _, a := range app.Alerts.Diff(sig, sig.GeneratedAt) {
			logging.LogAlert(logger, a.ID, a.Symbol, string(a.Type))
			app.Bus.Publish(a)
			if app.Metrics != nil {
				app.Metrics.AlertsEmitted.WithLabelValues(string(a.Type)).Inc()
			}
		}
	})
	app.Scheduler.OnTick(func(symbols int, duration time.Duration, errs int) {
		if app.Metrics == nil {
			return
		}
		app.Metrics.ScanDuration.Observe(duration.Seconds())
		app.Metrics.ScanErrors.Add(float64(errs))
		app.Metrics.SymbolsScanned.Set(float64(symbols))
		app.Metrics.StoreSize.Set(float64(app.Store.Size()))
	})

	rootCmd := &cobra.Command{
		Use:   "smc-scanner",
		Short: "Smart money structure scanner",
		Long: `smc-scanner analyzes multi-timeframe candlestick structure for a
symbol watchlist: swing highs/lows, break of structure, change of character,
and fair value gaps, publishing alerts over HTTP and WebSocket.

Use 'smc-scanner help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory; not read: configuration always loads from ~/.config/smc-scanner")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newRescanCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version, "build_date": BuildDate})
				return
			}
			output.Printf("smc-scanner v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
				return
			}
			output.Println(config.DefaultConfigDir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
				return nil
			}
			output.Success("configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Scan Configuration")
	output.Printf("  Source:                 %s\n", cfg.Scan.Source)
	output.Printf("  Scan interval:          %ds\n", cfg.Scan.ScanIntervalSeconds)
	output.Printf("  Max concurrent symbols: %d\n", cfg.Scan.MaxConcurrentSymbols)
	output.Printf("  Min matching timeframes: %d\n", cfg.Scan.MinMatchingTimeframes)
	output.Printf("  BOS threshold:          %.2f%%\n", cfg.Scan.BOSThresholdPct)
	output.Printf("  CHOCH threshold:        %.2f%%\n", cfg.Scan.CHOCHThresholdPct)
	output.Println()

	output.Bold("Server Configuration")
	output.Printf("  Listen addr:  %s\n", cfg.Server.ListenAddr)
	output.Printf("  Metrics:      %v\n", cfg.Server.MetricsOn)
	output.Println()

	output.Bold("Watchlist")
	output.Println(fmt.Sprintf("  %v", cfg.Symbols.Watchlist))

	return nil
}
