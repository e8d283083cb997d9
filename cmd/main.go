package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/ledger-engine/internal/config"
	"github.com/tinoosan/ledger-engine/internal/dictionary"
	httpapi "github.com/tinoosan/ledger-engine/internal/httpapi/v1"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/platform/cache"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
	"github.com/tinoosan/ledger-engine/internal/storage/memory"
	pgstore "github.com/tinoosan/ledger-engine/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Double-entry general ledger engine",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newAuditCommand(), newTrialBalanceCommand(), newSeedCommand())
	return root
}

// store is everything the services need from a storage backend.
type store interface {
	account.Repo
	account.Writer
	journal.Repo
	journal.Writer
	posting.Store
	report.Repo
	Ready(ctx context.Context) error
}

// app holds the wired services for one command run.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store
	accounts account.Service
	journal  journal.Service
	poster   *posting.Poster
	reports  *report.Service
	closers  []func()
}

// open loads configuration and wires storage and services. Postgres is used
// when DATABASE_URL is set, otherwise everything lives in memory.
func open(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, log: logger}
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.store = pg
		logger.Info("storage backend: postgres")
	} else {
		a.store = memory.New()
		logger.Info("storage backend: memory")
	}

	reportOpts := []report.Option{report.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		reportOpts = append(reportOpts, report.WithCache(cache.NewJSON(client, "ledger:", cfg.ReportCacheTTL)))
		logger.Info("trial balance cache: redis", "addr", cfg.RedisAddr)
	}

	locks := keylock.New()
	a.accounts = account.New(a.store, a.store, locks)
	a.journal = journal.New(a.store, a.store, locks)
	a.poster = posting.New(a.store, locks, posting.WithLogger(logger))
	a.reports = report.New(a.store, reportOpts...)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// migrate applies the Postgres schema; the memory store needs none.
func (a *app) migrate(ctx context.Context) error {
	pg, ok := a.store.(*pgstore.Store)
	if !ok {
		return nil
	}
	applied, err := pg.Migrate(ctx)
	if err != nil {
		return err
	}
	a.log.Info("migrations applied", "count", len(applied), "names", applied)
	return nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.migrate(ctx); err != nil {
				return err
			}
			if a.cfg.DevSeed {
				created, err := dictionary.Seed(ctx, a.accounts, dictionary.DefaultChart())
				if err != nil {
					return fmt.Errorf("dev seed: %w", err)
				}
				a.log.Info("DEV seed", "accounts_created", len(created))
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	api := httpapi.New(httpapi.Deps{
		Accounts:  a.accounts,
		Journal:   a.journal,
		Poster:    a.poster,
		Reports:   a.reports,
		Ready:     a.store,
		Currency:  a.cfg.Currency(),
		RateLimit: a.cfg.RateLimitPerMinute,
		Logger:    a.log,
	})
	srv := &http.Server{
		Addr:              a.cfg.AppAddr,
		Handler:           api.Handler(),
		ReadTimeout:       a.cfg.AppReadTimeout,
		ReadHeaderTimeout: a.cfg.AppReadTimeout,
		WriteTimeout:      a.cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("ledger service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), a.cfg.AppShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			a.log.Error("server shutdown error", "err", err)
			return err
		}
		return nil
	case err := <-errCh:
		a.log.Error("server error", "err", err)
		return err
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.DatabaseURL == "" {
				return errors.New("migrate: DATABASE_URL is not set")
			}
			return a.migrate(cmd.Context())
		},
	}
}

func newAuditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute balances from the general ledger and report drift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			drift, err := a.reports.Audit(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range drift {
				fmt.Fprintf(out, "%s\t%s\tstored=%s\treplayed=%s\n", d.Code, d.AccountID, d.Stored, d.Replayed)
			}
			if len(drift) > 0 {
				return fmt.Errorf("audit: %d account(s) out of agreement with the general ledger", len(drift))
			}
			fmt.Fprintln(out, "audit: all balances agree with the general ledger")
			return nil
		},
	}
}

func newTrialBalanceCommand() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var at *time.Time
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				at = &t
			}
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			tb, err := a.reports.TrialBalance(cmd.Context(), at)
			if ie, ok := report.IsImbalance(err); ok {
				a.log.Error("trial balance out of balance", "total_debit", ie.TotalDebit.String(), "total_credit", ie.TotalCredit.String(), "difference", ie.Difference.String())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range tb.Rows {
				fmt.Fprintf(out, "%-12s %-32s %14s %14s\n", r.Code, r.Name, r.Debit, r.Credit)
			}
			fmt.Fprintf(out, "%-12s %-32s %14s %14s\n", "", "Total", tb.TotalDebit, tb.TotalCredit)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "report date (YYYY-MM-DD); live balances when empty")
	return cmd
}

func newSeedCommand() *cobra.Command {
	var chartPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create chart of accounts entries from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chart := dictionary.DefaultChart()
			if chartPath != "" {
				c, err := dictionary.LoadChart(chartPath)
				if err != nil {
					return err
				}
				chart = c
			}
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			created, err := dictionary.Seed(cmd.Context(), a.accounts, chart)
			for _, acc := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", acc.Code, acc.ID, acc.Name)
			}
			if err != nil {
				return err
			}
			a.log.Info("chart seeded", "accounts", chart.Size(), "created", len(created))
			return nil
		},
	}
	cmd.Flags().StringVar(&chartPath, "chart", "", "chart YAML file; the built-in default chart when empty")
	return cmd
}
