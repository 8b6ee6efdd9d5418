package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
)

func factCmd() *cobra.Command {
	var (
		confidence float64
		source     string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "fact [content]",
		Short: "Store a standalone fact in semantic memory",
		Long:  "Stores a piece of standalone knowledge directly in the semantic tier, bypassing interaction capture and consolidation. Confidence becomes the record's importance.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("fact: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			id, err := eng.StoreFact(cmd.Context(), args[0], confidence, source)
			if err != nil {
				return fmt.Errorf("fact: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(map[string]any{
					"id":     id,
					"stored": true,
				}, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("fact: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Stored fact %s\n", id)
			return nil
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", 0.9, "confidence in the fact, 0.0 to 1.0")
	cmd.Flags().StringVar(&source, "source", "cli", "where the fact came from")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
