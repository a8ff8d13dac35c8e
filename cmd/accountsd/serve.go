package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/persistence"
	"github.com/goliatone/go-accounts/web"
)

var noSweep bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the accounts HTTP API",
	Long: `Starts the accounts HTTP API together with the retention sweeper. Usage:

	accountsd serve --config config.yaml
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := newLogger(cfg.Env)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := persistence.Migrate(ctx, a.db); err != nil {
			return err
		}

		if !noSweep {
			sweeper := accounts.NewRetentionSweeper(a.lifecycle, cfg.Accounts.SweepInterval)
			join := background(ctx, sweeper.Run)
			// registered after a.Close so it runs first
			defer func() {
				stop()
				join()
			}()
		}

		controller := web.NewController(a.lifecycle,
			web.WithLogger(a.logger),
			web.WithGatherer(a.registry),
		)
		server := web.NewApp(controller, fiber.Config{
			AppName:               "accountsd",
			ReadTimeout:           cfg.HTTPServer.ReadTimeout,
			WriteTimeout:          cfg.HTTPServer.WriteTimeout,
			IdleTimeout:           cfg.HTTPServer.IdleTimeout,
			DisableStartupMessage: true,
		})

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting server", "address", cfg.HTTPServer.Address, "env", cfg.Env)
			errCh <- server.Listen(cfg.HTTPServer.Address)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down server")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// background runs fn in its own goroutine and returns a func that blocks
// until fn has returned.
func background(ctx context.Context, fn func(context.Context) error) (join func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fn(ctx)
	}()
	return func() { <-done }
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the retention sweeper")
}
