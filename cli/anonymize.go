package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anonydoc/anonydoc/pii"
	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

var (
	anonOut          string
	anonSpans        string
	anonLabelSpecs   []string
	anonDefaultLabel string
)

// anonymizeCmd replaces entities with fixed, type-derived labels.
var anonymizeCmd = &cobra.Command{
	Use:   "anonymize [files...]",
	Short: "Replace detected entities with fixed labels (irreversible)",
	Long: `Anonymize replaces every detected entity with a fixed label derived
from its type, e.g. all person names become [PERSON]. The replacement is
irreversible; no correspondence table is written.

Labels are supplied as TYPE=LABEL pairs:

  anonydoc anonymize --label 'PERSON=[PERSON]' --label 'LOC=[LOC]' report.txt

A document whose detected types have no label and no --default-label fails
before any output is written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if anonDefaultLabel == "" {
			anonDefaultLabel = cfg.DefaultLabel
		}

		labels, err := parseLabelSpecs(anonLabelSpecs)
		if err != nil {
			return err
		}
		table := pii.LabelTable{Labels: labels, Default: anonDefaultLabel}

		detector, err := buildDetector(cfg, anonSpans)
		if err != nil {
			return err
		}
		defer func() { _ = detectors.CloseDetector(detector) }()

		engine := pii.NewEngine(cfg.ContextWindow)
		single := len(args) == 1

		return runBatch(args, func(path string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			text, resolved, err := detectAndResolve(ctx, detector, cfg, path)
			if err != nil {
				return err
			}

			result, err := engine.Anonymize(text, resolved, table)
			if err != nil {
				return err
			}

			if cfg.Logging.LogSubstitutions {
				log.Printf("%s: anonymized %d entities", path, len(result.Record))
			}
			return writeDocument(outputPath(path, anonOut, ".anon", single), result.Text)
		})
	},
}

// parseLabelSpecs converts repeated TYPE=LABEL flags into a label map.
func parseLabelSpecs(specs []string) (map[string]string, error) {
	labels := make(map[string]string, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid label spec %q (want TYPE=LABEL)", spec)
		}
		labels[parts[0]] = parts[1]
	}
	return labels, nil
}

func init() {
	anonymizeCmd.Flags().StringVarP(&anonOut, "out", "o", "", "output file (single input only; '-' for stdout)")
	anonymizeCmd.Flags().StringVar(&anonSpans, "spans", "", "JSON file with pre-computed detector output")
	anonymizeCmd.Flags().StringArrayVar(&anonLabelSpecs, "label", nil, "TYPE=LABEL pair (repeatable)")
	anonymizeCmd.Flags().StringVar(&anonDefaultLabel, "default-label", "", "label for types without a specific one")

	rootCmd.AddCommand(anonymizeCmd)
}
