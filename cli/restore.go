package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/anonydoc/anonydoc/extract"
	"github.com/anonydoc/anonydoc/pii"
)

var (
	restoreOut     string
	restoreMapping string
)

// restoreCmd reverses a pseudonymization using the mapping file.
var restoreCmd = &cobra.Command{
	Use:   "restore [files...]",
	Short: "Replace substitute tokens with the original entity text",
	Long: `Restore scans pseudonymized documents for substitute tokens and splices
the original text back in, using the mapping produced by a previous
pseudonymize run. Token-shaped strings that the mapping does not know are
left untouched and reported on stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if restoreMapping == "" {
			restoreMapping = cfg.MappingPath
		}

		mapping, err := pii.LoadMappingFile(restoreMapping)
		if err != nil {
			return err
		}

		engine := pii.NewEngine(cfg.ContextWindow)
		single := len(args) == 1

		return runBatch(args, func(path string) error {
			text, err := extract.Text(path)
			if err != nil {
				return err
			}

			result, err := engine.Depseudonymize(text, mapping)
			if err != nil {
				return err
			}

			for _, unresolved := range result.Unresolved {
				log.Printf("⚠️ %s: %v", path, unresolved)
			}
			if cfg.Logging.LogSubstitutions {
				log.Printf("%s: restored %d tokens", path, result.Restored)
			}

			return writeDocument(outputPath(path, restoreOut, ".restored", single), result.Text)
		})
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreOut, "out", "o", "", "output file (single input only; '-' for stdout)")
	restoreCmd.Flags().StringVarP(&restoreMapping, "mapping", "m", "", "mapping file path (default from config)")

	rootCmd.AddCommand(restoreCmd)
}
