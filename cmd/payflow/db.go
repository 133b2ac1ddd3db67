package main

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-payflow/pkg/transactions"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the transactions table migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required")
			}
			return transactions.RunMigrations(cfg.Postgres.DSN, logger)
		},
	}
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	seedCfg := transactions.DefaultSeedConfig()
	var migrate bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample transaction rows for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required")
			}
			if migrate {
				if err := transactions.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			pool, err := transactions.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			store, err := transactions.NewPostgresStore(pool, transactions.QueryStrategy(cfg.Poller.QueryStrategy), logger)
			if err != nil {
				return err
			}
			n, err := transactions.NewSeeder(store, logger).Seed(ctx, seedCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d transaction(s)\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&seedCfg.Unprocessed, "unprocessed", seedCfg.Unprocessed, "number of UNPROCESSED rows")
	cmd.Flags().IntVar(&seedCfg.Processed, "processed", seedCfg.Processed, "number of PROCESSED rows")
	cmd.Flags().BoolVar(&seedCfg.Random, "random", false, "generate random amounts and ids")
	cmd.Flags().Int64Var(&seedCfg.Seed, "seed", 0, "random seed, 0 for time based")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before seeding")
	return cmd
}
