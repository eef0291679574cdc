package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siqueiraa/RecipeFlow/pkg/app"
	"github.com/siqueiraa/RecipeFlow/pkg/config"
	"github.com/siqueiraa/RecipeFlow/pkg/engine"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Exit codes
const (
	exitPassed = 0
	exitFailed = 1 // a metric missed its threshold
	exitError  = 2 // configuration or collaborator error
)

// errMetricsFailed marks a run that completed but did not pass.
var errMetricsFailed = errors.New("recipe did not pass")

func main() {
	os.Exit(run())
}

func run() int {
	err := rootCommand().Execute()
	switch {
	case err == nil:
		return exitPassed
	case errors.Is(err, errMetricsFailed):
		return exitFailed
	default:
		log.Printf("[Recipe] %v", err)
		return exitError
	}
}

func rootCommand() *cobra.Command {
	var configPath, recipePath, resume string

	cmd := &cobra.Command{
		Use:           "recipe",
		Short:         "Run a training recipe and check its metrics against their thresholds",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecipe(ctx, configPath, recipePath, resume)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "application config file")
	cmd.Flags().StringVarP(&recipePath, "recipe", "r", "", "recipe file")
	cmd.Flags().StringVar(&resume, "resume", "", "start from the latest checkpoint of this run id")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func runRecipe(ctx context.Context, configPath, recipePath, resume string) error {
	cfg := config.Default()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if cfg, err = config.Parse(configPath); err != nil {
				return err
			}
		} else {
			log.Printf("[Recipe] No config at %s, using defaults", configPath)
		}
	}
	if resume != "" {
		if !cfg.Checkpoint.Enabled {
			return fmt.Errorf("--resume needs checkpoint.enabled in %s", configPath)
		}
		cfg.Checkpoint.Resume = resume
	}

	file, err := recipe.LoadFromFile(recipePath)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("[Recipe] Failed to close backends: %v", err)
		}
	}()

	rep, err := engine.NewEngine(a.Registry, a.Loop).RunFile(ctx, file)
	if err != nil {
		return err
	}
	for i, m := range rep.Result.Metrics {
		log.Printf("[Recipe] %s = %g", m.Name(), rep.Result.Values[i])
	}
	if !rep.Verdict.Passed {
		return errMetricsFailed
	}
	return nil
}
