package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"paydesk/internal/app/server"
	"paydesk/internal/domain/audit"
	"paydesk/internal/platform/config"
	"paydesk/internal/platform/fakedata"
	"paydesk/internal/platform/jobs"
)

type seedOptions struct {
	Count               int
	BatchSize           int
	Workers             int
	SuppressSideEffects bool
}

var (
	seedOpts seedOptions
	colaRate string
)

var rootCmd = &cobra.Command{
	Use:           "paydeskctl",
	Short:         "Maintenance commands for a paydesk database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and the seed data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), true, func(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert generated employees, spread over the existing departments.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedOpts.Count <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		return withPool(cmd.Context(), false, func(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
			details, err := seedEmployees(ctx, cfg, pool, seedOpts)
			printJSON(cmd, details)
			return err
		})
	},
}

var colaCmd = &cobra.Command{
	Use:   "cola",
	Short: "Raise every active salary by a cost-of-living rate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, err := decimal.NewFromString(colaRate)
		if err != nil || !rate.IsPositive() {
			return fmt.Errorf("--rate must be a positive decimal, got %q", colaRate)
		}
		return withPool(cmd.Context(), false, func(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
			services := server.NewServices(cfg, pool, nil, nil)
			details, err := jobs.New(pool, 1).RunNow(ctx, jobs.JobCostOfLiving, func(ctx context.Context) (any, error) {
				return services.Employees.ApplyCostOfLivingAdjustment(ctx, audit.System, rate)
			})
			printJSON(cmd, details)
			return err
		})
	},
}

func init() {
	seedCmd.Flags().IntVarP(&seedOpts.Count, "count", "n", 50, "Number of employees to create")
	seedCmd.Flags().IntVarP(&seedOpts.BatchSize, "batch-size", "b", 100, "Employees per transaction")
	seedCmd.Flags().IntVarP(&seedOpts.Workers, "workers", "w", 4, "Batches inserted concurrently")
	seedCmd.Flags().BoolVar(&seedOpts.SuppressSideEffects, "suppress-side-effects", true, "Skip user accounts and welcome mail")
	colaCmd.Flags().StringVarP(&colaRate, "rate", "r", "", "Adjustment rate, e.g. 0.03")
	_ = colaCmd.MarkFlagRequired("rate")

	rootCmd.AddCommand(migrateCmd, seedCmd, colaCmd)
}

// withPool loads the configuration and opens the database. migrate forces
// the schema migrations regardless of RUN_MIGRATIONS.
func withPool(parent context.Context, migrate bool, fn func(context.Context, config.Config, *pgxpool.Pool) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if migrate {
		cfg.RunMigrations = true
	}
	pool, err := server.Prepare(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

// seedEmployees splits the generated drafts into batches and inserts them
// in parallel, each batch in its own transaction. The run is recorded in
// job_runs.
func seedEmployees(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, opts seedOptions) (any, error) {
	services := server.NewServices(cfg, pool, nil, nil)
	departments, err := services.Employees.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(departments))
	for _, d := range departments {
		ids = append(ids, d.ID)
	}
	drafts := fakedata.Employees(opts.Count, fakedata.Options{Departments: ids, Now: time.Now()})
	batchSize := max(opts.BatchSize, 1)

	return jobs.New(pool, 1).RunNow(ctx, jobs.JobSeed, func(ctx context.Context) (any, error) {
		var created atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(opts.Workers, 1))
		for start := 0; start < len(drafts); start += batchSize {
			batch := drafts[start:min(start+batchSize, len(drafts))]
			g.Go(func() error {
				res, err := services.Employees.BulkCreate(gctx, audit.System, batch, opts.SuppressSideEffects)
				if err != nil {
					return err
				}
				created.Add(int64(res.Created))
				return nil
			})
		}
		err := g.Wait()
		return map[string]any{"requested": len(drafts), "created": created.Load()}, err
	})
}

func printJSON(cmd *cobra.Command, v any) {
	if v == nil {
		return
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
