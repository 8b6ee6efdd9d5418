package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/retrieval"
	"github.com/avensora/strata/pkg/tokenizer"
)

func retrieveCmd() *cobra.Command {
	var (
		maxResults int
		minSim     float64
		budget     int
		tiers      []string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Retrieve memories similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("retrieve: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			var searchTiers []models.Tier
			for _, t := range tiers {
				tier := models.Tier(t)
				if !tier.IsValid() {
					return fmt.Errorf("retrieve: invalid tier %q", t)
				}
				searchTiers = append(searchTiers, tier)
			}

			result, err := eng.Retrieve(cmd.Context(), args[0], retrieval.Options{
				MaxResults:    maxResults,
				MinSimilarity: minSim,
				Tiers:         searchTiers,
			})
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(result, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("retrieve: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			entries := make([]string, 0, len(result.Memories))
			for _, v := range result.Memories {
				entries = append(entries, fmt.Sprintf("[%s, similarity %.2f] %s", v.Tier, v.Similarity, v.Payload.Input))
			}
			output, count := tokenizer.FormatWithBudget(entries, budget)

			fmt.Printf("Retrieved %d of %d memories (budget: %d tokens, %dms):\n\n", count, result.TotalFound, budget, result.QueryTimeMs)
			fmt.Println(output)
			if result.TimedOut {
				fmt.Println("\n(partial results: query deadline expired mid-scan)")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "limit", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&minSim, "min-similarity", 0, "minimum cosine similarity (default from config)")
	cmd.Flags().IntVar(&budget, "budget", 2000, "token budget")
	cmd.Flags().StringSliceVar(&tiers, "tiers", nil, "tiers to search (default: short_term,long_term,semantic)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
