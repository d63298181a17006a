package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anonydoc/anonydoc/pii"
	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

var statsSpans string

// documentStats is the per-document YAML report printed by the stats
// command.
type documentStats struct {
	Document string         `yaml:"document"`
	Total    int            `yaml:"total"`
	Density  float64        `yaml:"density"`
	ByLabel  map[string]int `yaml:"by_label"`
	Ranking  []rankingRow   `yaml:"ranking"`
}

type rankingRow struct {
	Label string `yaml:"label"`
	Count int    `yaml:"count"`
}

// statsCmd reports what a pseudonymization run would substitute, without
// writing any output document or touching the mapping file.
var statsCmd = &cobra.Command{
	Use:   "stats [files...]",
	Short: "Report detected entity counts per document",
	Long: `Stats runs detection and span resolution over each document and prints a
per-document summary: total substitutions, substitutions per byte, counts
per entity type and a frequency ranking. Nothing is written; the mapping
file is not consulted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		detector, err := buildDetector(cfg, statsSpans)
		if err != nil {
			return err
		}
		defer func() { _ = detectors.CloseDetector(detector) }()

		engine := pii.NewEngine(cfg.ContextWindow)
		encoder := yaml.NewEncoder(os.Stdout)
		defer func() { _ = encoder.Close() }()

		return runBatch(args, func(path string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			text, resolved, err := detectAndResolve(ctx, detector, cfg, path)
			if err != nil {
				return err
			}

			// Throwaway mapping: tokens are minted only to drive the
			// record and are discarded afterwards.
			scratch := pii.NewMapping()
			result, err := engine.Pseudonymize(ctx, text, resolved, scratch)
			if err != nil {
				return err
			}

			stats := pii.Summarize(result.Record)
			report := documentStats{
				Document: path,
				Total:    stats.Total,
				Density:  stats.Density(len(text)),
				ByLabel:  stats.ByLabel,
				Ranking:  make([]rankingRow, 0, len(stats.Ranking)),
			}
			for _, r := range stats.Ranking {
				report.Ranking = append(report.Ranking, rankingRow{Label: r.Label, Count: r.Count})
			}

			if err := encoder.Encode(report); err != nil {
				return fmt.Errorf("failed to render stats for %s: %w", path, err)
			}
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsSpans, "spans", "", "JSON file with pre-computed detector output")

	rootCmd.AddCommand(statsCmd)
}
