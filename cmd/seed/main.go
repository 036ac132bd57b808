// Command seed loads user and match fixtures into the document store.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vettly/match-explainer/internal/adapter/observability"
	"github.com/vettly/match-explainer/internal/adapter/repo/postgres"
	"github.com/vettly/match-explainer/internal/config"
	"github.com/vettly/match-explainer/internal/seed"
)

var seedFlags struct {
	file   string
	dryRun bool
}

var rootCmd = &cobra.Command{
	Use:          "seed",
	Short:        "Load user and match fixtures into the document store",
	Long:         "seed upserts users and matches from a YAML file into PostgreSQL\nand prints the data quality score of every match.",
	SilenceUsage: true,
	RunE:         runSeed,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&seedFlags.file, "file", "f", "", "fixtures YAML file (required)")
	f.BoolVar(&seedFlags.dryRun, "dry-run", false, "validate and score fixtures without writing")
	_ = rootCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	fixtures, err := seed.LoadFile(seedFlags.file)
	if err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	out := cmd.OutOrStdout()
	if seedFlags.dryRun {
		r := seed.Summarize(fixtures)
		r.DryRun = true
		seed.Render(out, r)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	ctx := cmd.Context()
	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	r, err := seed.Apply(ctx, fixtures, postgres.NewUserRepo(pool), postgres.NewMatchRepo(pool))
	if err != nil {
		return err
	}
	slog.Info("fixtures seeded", slog.Int("users", r.Users), slog.Int("matches", len(r.Matches)))
	seed.Render(out, r)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
