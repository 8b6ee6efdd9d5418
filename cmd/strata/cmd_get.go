package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/store"
)

func getCmd() *cobra.Command {
	var (
		tierName   string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "get [record-id]",
		Short: "Retrieve a single record by ID",
		Long:  "Looks up one record by ID. With --tier the lookup is restricted to that tier; otherwise every tier is checked in order and the first hit wins.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("get: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			tiers := models.ValidTiers
			if tierName != "" {
				tiers = []models.Tier{models.Tier(tierName)}
			}

			var view *models.RecordView
			for _, tier := range tiers {
				view, err = eng.Get(args[0], tier)
				if err == nil {
					break
				}
				if !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("get: %w", err)
				}
			}
			if view == nil {
				return fmt.Errorf("get: %w: %s", store.ErrNotFound, args[0])
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(view, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("get: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("ID:         %s\n", view.ID)
			fmt.Printf("Tier:       %s\n", view.Tier)
			if view.SessionID != "" {
				fmt.Printf("Session:    %s\n", view.SessionID)
			}
			if view.Source != "" {
				fmt.Printf("Source:     %s\n", view.Source)
			}
			fmt.Printf("Importance: %.2f\n", view.Importance)
			fmt.Printf("Timestamp:  %s\n", view.Timestamp.Format("2006-01-02 15:04:05"))
			fmt.Printf("\nInput:\n%s\n", view.Payload.Input)
			if view.Payload.Response != "" {
				fmt.Printf("\nResponse:\n%s\n", view.Payload.Response)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tierName, "tier", "", "tier to search (short_term, long_term, episodic, semantic, working); empty checks all")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
