package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harlequingg/taskd/internal/api"
	"github.com/harlequingg/taskd/internal/config"
	"github.com/harlequingg/taskd/internal/mailer"
	"github.com/harlequingg/taskd/internal/storage"
)

const shutdownTimeout = 20 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the task API server",
		Long: `Start the task API server.

Examples:
  taskd serve --db-driver sqlite3 --db-dsn ./tasks.db --migrate
  DB_DSN=postgres://taskd@localhost/taskd?sslmode=disable taskd serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")

	return cmd
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func openStorage(cfg *config.Config, opts ...storage.Option) (*storage.Storage, error) {
	db, err := storage.OpenDB(storage.DBConfig{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		MaxOpenConnections: cfg.DB.MaxOpenConns,
		MaxIdleConnections: cfg.DB.MaxIdleConns,
		MaxIdleTime:        cfg.DB.MaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	opts = append([]storage.Option{storage.WithQueryTimeout(cfg.DB.QueryTimeout)}, opts...)
	return storage.New(db, cfg.DB.Driver, opts...), nil
}

// serve runs the API until ctx is cancelled, then drains in-flight requests
// and pending notifications.
func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := newLogger()

	var (
		notifier  *mailer.Notifier
		storeOpts []storage.Option
	)
	if cfg.SMTP.Host != "" {
		m := mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)
		notifier = mailer.NewNotifier(m, logger)
		storeOpts = append(storeOpts, storage.WithProvisionHook(notifier.AccountProvisioned))
	}

	store, err := openStorage(cfg, storeOpts...)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Println("established a connection with database")

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Println("database schema is up to date")
	}
	if cfg.JWT.Secret == "" {
		logger.Println("jwt secret not set, serving unauthenticated requests only")
	}

	app := api.New(cfg, store, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.Routes(),
		ErrorLog:     logger,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting %s server on port %d\n", cfg.Env, cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Println("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	if notifier != nil {
		notifier.Wait()
	}
	logger.Println("stopped server")
	return nil
}
