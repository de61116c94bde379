package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/frontier"
	"github.com/cdubventures/spec-harvester/runner"
)

// newRunOnceCmd drives a single identity through Runner.Run, exiting 3 on
// an identity gate rejection and 130 on a signal_terminated stop reason.
func newRunOnceCmd() *cobra.Command {
	var category, brand, model, variant string

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Harvest and validate specifications for one product",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sql, files, err := openStores(cfg)
			if err != nil {
				return withExitCode(1, err)
			}
			defer sql.Close()

			deps, err := buildRunnerDeps(cfg, category, sql, files, nil)
			if err != nil {
				return withExitCode(1, err)
			}

			r := runner.New(deps)
			identity := harvester.Identity{Category: category, Brand: brand, Model: model, Variant: variant}

			outcome, err := r.Run(ctx, identity)
			if err != nil {
				if errors.Is(err, harvester.ErrIdentityRejected) {
					return withExitCode(3, err)
				}
				return withExitCode(1, err)
			}

			if outcome.StopReason == frontier.StopSignalTerminated {
				return withExitCode(130, fmt.Errorf("harvest interrupted: %w", harvester.ErrSignalTerminated))
			}

			fmt.Printf("product_id=%s stop_reason=%s\n", identity.ProductID(), outcome.StopReason)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "product category (required)")
	cmd.Flags().StringVar(&brand, "brand", "", "product brand (required)")
	cmd.Flags().StringVar(&model, "model", "", "product model (required)")
	cmd.Flags().StringVar(&variant, "variant", "", "product variant")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("brand")
	cmd.MarkFlagRequired("model")
	return cmd
}

// newRunDaemonCmd sweeps every catalog row for a category through Runner.Run
// with cfg.DaemonConcurrency workers, draining in-flight work on SIGINT/
// SIGTERM before returning, per SPEC_FULL.md §5.1's graceful shutdown.
func newRunDaemonCmd() *cobra.Command {
	var category string
	var drainTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run-daemon",
		Short: "Harvest every cataloged product in a category in one concurrent sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sql, files, err := openStores(cfg)
			if err != nil {
				return withExitCode(1, err)
			}
			defer sql.Close()

			deps, err := buildRunnerDeps(cfg, category, sql, files, nil)
			if err != nil {
				return withExitCode(1, err)
			}
			r := runner.New(deps)

			rows := deps.Catalog.AllRows()
			if len(rows) == 0 {
				return withExitCode(1, fmt.Errorf("no catalog rows for category %q", category))
			}

			concurrency := cfg.DaemonConcurrency
			if concurrency <= 0 {
				concurrency = 1
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for _, row := range rows {
				row := row
				g.Go(func() error {
					identity := harvester.Identity{Category: row.Category, Brand: row.Brand, Model: row.Model, Variant: row.Variant}
					outcome, err := r.Run(gctx, identity)
					if err != nil {
						if errors.Is(err, harvester.ErrIdentityRejected) {
							return nil // skip rejected rows, don't abort the sweep
						}
						return err
					}
					fmt.Printf("product_id=%s stop_reason=%s\n", identity.ProductID(), outcome.StopReason)
					return nil
				})
			}

			// g.Wait() itself is the drain: each worker's r.Run observes
			// gctx's cancellation and stops at its next round boundary, so
			// waiting on the group bounds how long shutdown takes. drainTimeout,
			// counted from the shutdown signal, is a hard backstop in case a
			// worker never checks ctx.
			waitDone := make(chan error, 1)
			go func() { waitDone <- g.Wait() }()

			var runErr error
			select {
			case runErr = <-waitDone:
			case <-ctx.Done():
				select {
				case runErr = <-waitDone:
				case <-time.After(drainTimeout):
					slog.Warn("run-daemon: drain timeout exceeded, exiting without waiting for stragglers")
				}
			}

			if ctx.Err() != nil {
				return withExitCode(130, harvester.ErrSignalTerminated)
			}
			if runErr != nil {
				return withExitCode(1, runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "product category (required)")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "grace period to finish in-flight work after a shutdown signal")
	cmd.MarkFlagRequired("category")
	return cmd
}
