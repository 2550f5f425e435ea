package cmd

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // For pprof profiling
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"amm_go/internal/app"
)

var pprofAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine, sequencer and HTTP API",
	Long: `Recover state from the command log, then serve pool queries, quotes,
commands, the notification stream and metrics until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if pprofAddr != "" {
			go func() {
				slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
				if err := http.ListenAndServe(pprofAddr, nil); err != nil {
					slog.Error("Pprof server failed", slog.Any("error", err))
				}
			}()
		}

		// Graceful Shutdown Context
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bootstrap := app.NewBootstrap(cfg)
		if err := bootstrap.Initialize(ctx); err != nil {
			slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
			return err
		}
		defer bootstrap.Close()

		return bootstrap.Run(ctx)
	},
}

func init() {
	// Localhost only by default
	serveCmd.Flags().StringVar(&pprofAddr, "pprof", "", "pprof listen address, e.g. localhost:6060 (disabled when empty)")
	rootCmd.AddCommand(serveCmd)
}
