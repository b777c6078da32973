package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/braindump/internal/app"
	"github.com/loykin/braindump/internal/config"
	"github.com/loykin/braindump/internal/keepalive"
	"github.com/loykin/braindump/internal/migrate"
	"github.com/loykin/braindump/internal/store"
	"github.com/loykin/braindump/internal/store/factory"
	"github.com/loykin/braindump/internal/store/rest"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func createServeCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config]",
		Short: "Start the API server",
		Long: `Start the HTTP API. The server comes up even when the database is
unreachable; reads and writes answer 503 until a reconnection succeeds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			ctx, stop := signalContext()
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return a.Run(ctx)
}

// KeepAliveFlags override the keepalive section of the config.
type KeepAliveFlags struct {
	URL      string
	Interval string
}

func createKeepAliveCommand(global *GlobalFlags) *cobra.Command {
	flags := &KeepAliveFlags{}
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Ping the health endpoint on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			kc := keepalive.Config{URL: cfg.KeepAlive.URL, Interval: cfg.KeepAlive.Interval, Timeout: cfg.KeepAlive.Timeout}
			if flags.URL != "" {
				kc.URL = flags.URL
			}
			if flags.Interval != "" {
				d, err := parseDuration(flags.Interval)
				if err != nil {
					return err
				}
				kc.Interval = d
			}
			log, closer, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()
			kc.Logger = log

			d, err := keepalive.New(kc)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := d.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			d.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.URL, "url", "", "health URL to ping (default from config)")
	cmd.Flags().StringVar(&flags.Interval, "interval", "", "ping interval, e.g. 60s (default from config)")
	return cmd
}

func createMigrateCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy all posts from the hosted REST table into the configured database",
		Long: `Fetch every post from the hosted REST table (rest.url, rest.api_key) and
replace the contents of the configured database with them. Creation times are
preserved and posts without a category become "thought".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			log, closer, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			ctx, stop := signalContext()
			defer stop()
			return runMigrate(ctx, cfg, cmd, log)
		},
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, cmd *cobra.Command, log *slog.Logger) error {
	if cfg.REST.URL == "" || cfg.REST.APIKey == "" {
		return fmt.Errorf("rest.url and rest.api_key (SUPABASE_URL, SUPABASE_ANON_KEY) must be set")
	}
	src, err := rest.New(cfg.RESTStoreConfig(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := factory.New(ctx, cfg.StoreConfig(), true)
	if err != nil {
		if dst != nil {
			_ = dst.Close()
		}
		return fmt.Errorf("open target: %w", err)
	}
	defer func() { _ = dst.Close() }()
	imp, ok := dst.(store.Importer)
	if !ok {
		return fmt.Errorf("database type %q does not support import", cfg.Database.Type)
	}

	res, err := migrate.Run(ctx, src, imp, migrate.Options{Logger: log})
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Migration failed:", err)
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Found %d posts to migrate\n", res.Migrated)
	for _, t := range res.Titles {
		_, _ = fmt.Fprintf(out, "Migrated: %s\n", t)
	}
	_, _ = fmt.Fprintln(out, "Migration completed successfully!")
	return nil
}
