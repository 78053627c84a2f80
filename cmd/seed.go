package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/knowledge"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest the built-in starter documents",
	Long: `Ingest the built-in starter corpus so a fresh knowledge base is
immediately searchable. Documents already present are skipped, so seeding
is safe to repeat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, runSeed)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(ctx context.Context, a *app) error {
	seeder := knowledge.NewSeeder(a.Manager, a.Logger)
	count, err := seeder.SeedAll(ctx)
	if err != nil {
		return err
	}

	s := defaultStyles()
	if count == 0 {
		fmt.Println(s.Muted.Render("All starter documents already present."))
		return nil
	}
	fmt.Println(s.Success.Render(fmt.Sprintf("Seeded %d document(s)", count)))
	return nil
}
