package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-qris-store.git/internal/config"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/postgres"
)

var Version = "dev"

// app dibuka sekali di PersistentPreRunE dan dipakai semua subcommand.
type app struct {
	db    *pgxpool.Pool
	repo  *orders.Repo
	stock *orders.StockRepo
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "storeadmin",
		Short:         "Admin operations for the QRIS store (catalog, stock, balances, revenue)",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(a.productCmd())
	rootCmd.AddCommand(a.stockCmd())
	rootCmd.AddCommand(a.balanceCmd())
	rootCmd.AddCommand(a.revenueCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.close()
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	a.db = db
	a.repo = &orders.Repo{DB: db}
	a.stock = &orders.StockRepo{DB: db}
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := postgres.Migrate(cmd.Context(), a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
