package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fiscalhost/ledger/internal/api/handlers"
	"github.com/fiscalhost/ledger/internal/config"
	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/engine"
	"github.com/fiscalhost/ledger/internal/jobs"
	"github.com/fiscalhost/ledger/internal/logger"
	"github.com/fiscalhost/ledger/internal/publicid"
	"github.com/fiscalhost/ledger/internal/source"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Fiscal-sponsorship ledger reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), serveCmd(), workerCmd(), nightlyCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return fmt.Errorf("mkdir db dir: %w", err)
			}
			return database.RunMigrations(cfg.Database.Path)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the public read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, log, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			codec, err := publicid.New(cfg.PublicID.Salt)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           handlers.NewServer(db, codec, log).Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("api listening")
			return srv.ListenAndServe()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background reconciliation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, log, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			nightly := &engine.Nightly{DB: db, Feeds: registeredFeeds(), Log: log}

			w := &jobs.Worker{
				Queue:        jobs.NewQueue(db),
				PollInterval: time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
				Log:          log,
			}
			w.Register(jobs.JobTypeNightly, func(ctx context.Context, _ jobs.Job) error {
				return nightly.Run(ctx)
			})
			w.Register(jobs.JobTypeSyncSource, syncHandler(nightly))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Info().Msg("worker started")
			err = w.Start(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func nightlyCmd() *cobra.Command {
	enqueue := false
	cmd := &cobra.Command{
		Use:   "nightly",
		Short: "Run one full reconciliation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, log, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			if enqueue {
				id, err := jobs.NewQueue(db).Enqueue(cmd.Context(), jobs.JobTypeNightly, struct{}{}, cfg.Worker.MaxRetries)
				if err != nil {
					return err
				}
				log.Info().Str("job_id", id).Msg("nightly job enqueued")
				return nil
			}

			nightly := &engine.Nightly{DB: db, Feeds: registeredFeeds(), Log: log}
			return nightly.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "enqueue for the worker instead of running inline")
	return cmd
}

func setup() (config.Config, *sql.DB, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, zerolog.Logger{}, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return config.Config{}, nil, zerolog.Logger{}, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return config.Config{}, nil, zerolog.Logger{}, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return config.Config{}, nil, zerolog.Logger{}, fmt.Errorf("open db: %w", err)
	}
	return cfg, db, log, nil
}

// syncHandler resolves the feed named in the job payload. Feeds are
// registered by the provider subsystems at build time; an unknown source
// fails the job.
func syncHandler(n *engine.Nightly) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		var p jobs.SyncSourcePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("sync payload: %w", err)
		}
		for _, f := range n.Feeds {
			if string(f.Source()) == p.Source {
				return database.WithTx(n.DB, func(tx *sql.Tx) error {
					_, err := engine.NewIngestor(tx, n.Log).Sync(ctx, f)
					return err
				})
			}
		}
		return fmt.Errorf("no feed registered for source %q", p.Source)
	}
}

// registeredFeeds is the hook where provider clients plug in. The core
// ships none; deployments link their own implementations of source.Feed.
func registeredFeeds() []source.Feed {
	return nil
}
