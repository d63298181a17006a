package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/anonydoc/anonydoc/pii"
	"github.com/anonydoc/anonydoc/server"
)

var serveMapping string

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pseudonymization HTTP API",
	Long: `Serve exposes the engine over HTTP: /v1/anonymize, /v1/pseudonymize and
/v1/restore, plus mapping management under /api. The mapping store is shared
across all requests, so identical entities receive the same token for the
lifetime of the server (and beyond it when a database is configured).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if serveMapping == "" {
			serveMapping = cfg.MappingPath
		}

		mapping, err := openMapping(cmd.Context(), cfg, serveMapping)
		if err != nil {
			return err
		}
		defer func() { _ = mapping.Close() }()

		detector, err := buildDetector(cfg, "")
		if err != nil {
			return err
		}

		log.Printf("Mapping store ready with %d entries", mapping.Len())
		srv := server.NewServer(cfg, detector, mapping)
		if err := srv.Start(); err != nil {
			return err
		}

		// Start only returns once the listener shuts down; persist the
		// mapping so the next run can restore what this one produced.
		return pii.SaveMappingFile(mapping, serveMapping)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveMapping, "mapping", "m", "", "mapping file path (default from config)")

	rootCmd.AddCommand(serveCmd)
}
