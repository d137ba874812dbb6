package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appErrors "smc-scanner/internal/errors"
	"smc-scanner/internal/httpapi"
)

// newServeCmd starts the scan scheduler and the HTTP/WebSocket surface,
// running until SIGINT/SIGTERM.
func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan scheduler and HTTP/WebSocket server",
		Long:  "Starts the periodic scan loop and serves signals, alerts, and metrics over HTTP until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Config.IsLive() && !app.Source.IsReady() {
				return appErrors.NewCandleSourceAuth("kiteconnect", fmt.Errorf("access token missing; set it in credentials.toml or ZERODHA_ACCESS_TOKEN"))
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				output.Println()
				output.Info("shutting down...")
				cancel()
			}()

			router := httpapi.NewRouter(httpapi.Deps{
				Store:     app.Store,
				Bus:       app.Bus,
				Metrics:   app.Metrics,
				Scheduler: app.Scheduler,
				Favorites: app.Config.Symbols.Favorites,
				Rescan: func() {
					rescanCtx, rescanCancel := context.WithTimeout(ctx, 30*time.Second)
					defer rescanCancel()
					app.Scheduler.RunOnce(rescanCtx)
				},
			})
			server := &http.Server{Addr: app.Config.Server.ListenAddr, Handler: router}

			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			schedErr := make(chan error, 1)
			go func() { schedErr <- app.Scheduler.Run(ctx) }()

			output.Success("scanner listening on %s", app.Config.Server.ListenAddr)
			output.Dim("press Ctrl+C to stop")

			select {
			case err := <-serverErr:
				output.Error("http server failed: %v", err)
				cancel()
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				output.Warning("http server shutdown: %v", err)
			}
			app.Bus.Drain()
			if app.Alias != nil {
				_ = app.Alias.Close()
			}

			<-schedErr
			output.Success("scanner stopped")
			return nil
		},
	}
}

// newRescanCmd is a thin HTTP client that triggers an out-of-band scan on
// a running server via POST /rescan.
func newRescanCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Trigger an immediate scan on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			url := fmt.Sprintf("http://%s/rescan", addr)
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				output.Error("rescan request failed: %v", err)
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				output.Error("server returned %s", resp.Status)
				return fmt.Errorf("unexpected status %s", resp.Status)
			}
			output.Success("rescan triggered")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address of a running smc-scanner server")
	return cmd
}
