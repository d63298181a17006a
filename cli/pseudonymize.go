package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anonydoc/anonydoc/pii"
	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

var (
	pseuOut     string
	pseuSpans   string
	pseuMapping string
)

// pseudonymizeCmd replaces entities with reversible substitute tokens.
var pseudonymizeCmd = &cobra.Command{
	Use:   "pseudonymize [files...]",
	Short: "Replace detected entities with reversible substitute tokens",
	Long: `Pseudonymize replaces every detected entity with a unique substitute
token and records the correspondence in a mapping file. Occurrences sharing
the same normalized text and type share one token, across all documents of
the run and across runs reusing the same mapping file.

The mapping file is loaded if it exists and rewritten atomically at the end
of the run. With DB_ENABLED=true the mapping is also persisted to the
configured database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if pseuMapping == "" {
			pseuMapping = cfg.MappingPath
		}

		mapping, err := openMapping(cmd.Context(), cfg, pseuMapping)
		if err != nil {
			return err
		}
		defer func() { _ = mapping.Close() }()

		detector, err := buildDetector(cfg, pseuSpans)
		if err != nil {
			return err
		}
		defer func() { _ = detectors.CloseDetector(detector) }()

		engine := pii.NewEngine(cfg.ContextWindow)
		single := len(args) == 1

		batchErr := runBatch(args, func(path string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			text, resolved, err := detectAndResolve(ctx, detector, cfg, path)
			if err != nil {
				return err
			}

			result, err := engine.Pseudonymize(ctx, text, resolved, mapping)
			if err != nil {
				return err
			}

			if cfg.Logging.LogSubstitutions {
				log.Printf("%s: pseudonymized %d entities (%d mappings total)", path, len(result.Record), mapping.Len())
			}
			if cfg.Logging.LogVerbose {
				for _, sub := range result.Record {
					log.Printf("  %s -> %s", sub.Entity.Text, sub.Replacement)
				}
			}
			return writeDocument(outputPath(path, pseuOut, ".pseu", single), result.Text)
		})

		// Persist whatever succeeded even when some documents failed;
		// tokens already written into output files must not be lost.
		if err := pii.SaveMappingFile(mapping, pseuMapping); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Mapping saved to %s (%d entries)\n", pseuMapping, mapping.Len())
		}

		return batchErr
	},
}

func init() {
	pseudonymizeCmd.Flags().StringVarP(&pseuOut, "out", "o", "", "output file (single input only; '-' for stdout)")
	pseudonymizeCmd.Flags().StringVar(&pseuSpans, "spans", "", "JSON file with pre-computed detector output")
	pseudonymizeCmd.Flags().StringVarP(&pseuMapping, "mapping", "m", "", "mapping file path (default from config)")

	rootCmd.AddCommand(pseudonymizeCmd)
}
