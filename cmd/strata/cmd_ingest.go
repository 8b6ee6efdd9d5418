package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
)

func ingestCmd() *cobra.Command {
	var (
		response           string
		sessionID          string
		emotion            string
		intensity          float64
		decisionType       string
		decisionConfidence float64
		satisfaction       float64
		processingMs       int
		outputJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [input]",
		Short: "Store one interaction in tiered memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("ingest: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			in := models.Interaction{
				Input:            args[0],
				Response:         response,
				SessionID:        sessionID,
				Source:           "cli",
				ProcessingTimeMs: processingMs,
			}
			if emotion != "" {
				in.Emotion = &models.Emotion{Primary: emotion, Intensity: intensity}
			}
			if decisionType != "" {
				in.Decision = &models.Decision{Type: decisionType, Confidence: decisionConfidence}
			}
			if satisfaction >= 0 {
				in.Feedback = &models.Feedback{Satisfaction: satisfaction}
			}

			id, warning, err := eng.Ingest(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if warning != nil {
				logger.Warn("stored without embedding", "error", warning)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(map[string]any{"id": id, "stored": true}, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("ingest: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Stored %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&response, "response", "", "assistant response paired with the input")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (generated when omitted)")
	cmd.Flags().StringVar(&emotion, "emotion", "", "primary emotion tag")
	cmd.Flags().Float64Var(&intensity, "intensity", 0, "emotional intensity 0.0-1.0")
	cmd.Flags().StringVar(&decisionType, "decision", "", "decision type")
	cmd.Flags().Float64Var(&decisionConfidence, "confidence", 0, "decision confidence 0.0-1.0")
	cmd.Flags().Float64Var(&satisfaction, "satisfaction", -1, "user satisfaction 0.0-1.0")
	cmd.Flags().IntVar(&processingMs, "processing-ms", 0, "upstream processing latency in milliseconds")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
