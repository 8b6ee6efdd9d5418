package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
)

func statusCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-tier record counts and consolidation progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("status: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			st := eng.Status()

			if outputJSON {
				out, marshalErr := json.MarshalIndent(st, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("status: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Println("Tier occupancy:")
			fmt.Printf("  %-12s %d\n", "short_term", st.ShortTerm)
			fmt.Printf("  %-12s %d\n", "long_term", st.LongTerm)
			fmt.Printf("  %-12s %d\n", "episodic", st.Episodic)
			fmt.Printf("  %-12s %d\n", "semantic", st.Semantic)
			fmt.Printf("  %-12s %d\n", "working", st.Working)

			fmt.Printf("\nConsolidation queue: %d\n", st.ConsolidationQueueDepth)
			if !st.LastConsolidation.IsZero() {
				fmt.Printf("Last consolidation:  %s\n", st.LastConsolidation.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
