package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
)

func recentCmd() *cobra.Command {
	var (
		n          int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent interactions from the episodic log",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("recent: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			views := eng.GetRecent(n)

			if outputJSON {
				out, marshalErr := json.MarshalIndent(views, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("recent: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			if len(views) == 0 {
				fmt.Println("No interactions recorded.")
				return nil
			}
			for _, v := range views {
				fmt.Printf("%s  %.2f  %s\n",
					v.Timestamp.Format("2006-01-02 15:04:05"),
					v.Importance,
					truncate(v.Payload.Input, 70))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&n, "n", 10, "number of interactions to show")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
