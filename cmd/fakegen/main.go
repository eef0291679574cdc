package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siqueiraa/RecipeFlow/pkg/duck"
	"github.com/siqueiraa/RecipeFlow/pkg/faker"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Fatalf("[Fakegen] %v", err)
	}
}

func rootCommand() *cobra.Command {
	var (
		g       faker.Generator
		parquet bool
	)

	cmd := &cobra.Command{
		Use:   "fakegen [output-file]",
		Short: "Write a synthetic classification dataset as CSV, or Parquet through DuckDB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := args[0]
			csvPath := out
			if parquet {
				csvPath = strings.TrimSuffix(out, ".parquet") + ".csv"
			}
			if err := writeCSV(g, csvPath); err != nil {
				return err
			}
			if parquet {
				if err := toParquet(cmd.Context(), csvPath, out); err != nil {
					return err
				}
			}
			log.Printf("[Fakegen] Wrote %d sample(s), %d feature(s), %d class(es) to %s", g.Samples, g.Features, g.Classes, out)
			return nil
		},
	}
	cmd.Flags().IntVar(&g.Classes, "classes", 3, "number of classes")
	cmd.Flags().IntVar(&g.Features, "features", 4, "number of features")
	cmd.Flags().IntVar(&g.Samples, "samples", 1000, "number of samples")
	cmd.Flags().Float64Var(&g.Spread, "spread", 0.5, "standard deviation around each class center")
	cmd.Flags().Int64Var(&g.Seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&parquet, "parquet", false, "also convert the CSV to Parquet")
	return cmd
}

func writeCSV(g faker.Generator, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := g.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func toParquet(ctx context.Context, csvPath, out string) error {
	engine, err := duck.NewDuckDBEngine("")
	if err != nil {
		return err
	}
	defer engine.Cleanup()

	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	stmt := fmt.Sprintf("COPY (SELECT * FROM read_csv_auto(%s)) TO %s (FORMAT PARQUET)", quote(csvPath), quote(out))
	return engine.Exec(ctx, stmt)
}
