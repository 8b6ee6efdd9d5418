package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
)

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write a snapshot of all tiers to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("save: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			if err := eng.SaveSnapshot(); err != nil {
				return fmt.Errorf("save: %w", err)
			}

			fmt.Printf("Snapshot written to %s\n", cfg.Store.DataDir)
			return nil
		},
	}
}
