package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anonydoc/anonydoc/config"
	"github.com/anonydoc/anonydoc/extract"
	"github.com/anonydoc/anonydoc/pii"
	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

// loadConfig assembles the effective configuration: defaults overridden by
// environment variables (the .env file is loaded in main).
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)
	return cfg
}

// buildDetector picks the detector: a span-file replay when --spans is
// given, the remote NER service otherwise.
func buildDetector(cfg *config.Config, spansPath string) (detectors.Detector, error) {
	if spansPath != "" {
		return detectors.NewFileDetector(spansPath)
	}
	return detectors.NewRemoteDetector(
		cfg.Detector.BaseURL,
		time.Duration(cfg.Detector.TimeoutSeconds)*time.Second,
		cfg.Detector.Threshold,
		cfg.Detector.Labels,
		time.Duration(cfg.Detector.CacheTTLMinutes)*time.Minute,
	), nil
}

// detectAndResolve extracts the document text, runs detection, and resolves
// the span conflicts.
func detectAndResolve(ctx context.Context, detector detectors.Detector, cfg *config.Config, path string) (string, pii.ResolvedSpans, error) {
	text, err := extract.Text(path)
	if err != nil {
		return "", nil, err
	}

	output, err := detector.Detect(ctx, detectors.DetectorInput{
		Text:          text,
		AllowedLabels: cfg.Detector.Labels,
	})
	if err != nil {
		return "", nil, fmt.Errorf("detection failed for %s: %w", path, err)
	}

	resolved, err := pii.ResolveSpans(text, output.Entities)
	if err != nil {
		return "", nil, err
	}
	return text, resolved, nil
}

// outputPath derives the output file for an input document. An explicit
// --out wins when processing a single file.
func outputPath(in, explicit, suffix string, single bool) string {
	if explicit != "" && single {
		return explicit
	}
	ext := ".txt"
	if i := strings.LastIndex(in, "."); i > 0 {
		ext = in[i:]
	}
	return strings.TrimSuffix(in, ext) + suffix + ext
}

// writeDocument writes transformed text, or prints it when path is "-".
func writeDocument(path, text string) error {
	if path == "-" {
		fmt.Println(text)
		return nil
	}
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// openMappingDB opens the configured persistence backend.
func openMappingDB(ctx context.Context, cfg *config.Config) (pii.MappingDB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return pii.NewPostgresMappingDB(pii.PostgresConfig{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			Database:     cfg.Database.Database,
			Username:     cfg.Database.Username,
			Password:     cfg.Database.Password,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			MaxLifetime:  time.Duration(cfg.Database.MaxLifetime) * time.Second,
		})
	case "sqlite", "":
		return pii.NewSQLiteMappingDB(ctx, pii.DatabaseConfig{Path: cfg.Database.Path})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openMapping builds the mapping store for a run: database-backed when
// enabled, seeded from the mapping file when one exists.
func openMapping(ctx context.Context, cfg *config.Config, path string) (*pii.Mapping, error) {
	var mapping *pii.Mapping
	if cfg.Database.Enabled {
		db, err := openMappingDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Database.CleanupHours > 0 {
			olderThan := time.Duration(cfg.Database.CleanupHours) * time.Hour
			if removed, err := db.CleanupOldMappings(ctx, olderThan); err != nil {
				log.Printf("Warning: mapping cleanup failed: %v", err)
			} else if removed > 0 {
				log.Printf("Cleaned up %d mappings older than %s", removed, olderThan)
			}
		}
		mapping = pii.NewMappingWithDB(db)
		if err := mapping.Preload(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else {
		mapping = pii.NewMapping()
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := pii.LoadMappingFileInto(mapping, path); err != nil {
				_ = mapping.Close()
				return nil, err
			}
		}
	}

	return mapping, nil
}

// runBatch applies process to each input document. A malformed document
// (invalid spans, unreadable file) is fatal to that document only; the
// batch continues and the failure count is reported at the end.
func runBatch(inputs []string, process func(path string) error) error {
	var failed int
	for _, path := range inputs {
		if err := process(path); err != nil {
			var spanErr *pii.InvalidSpanError
			if errors.As(err, &spanErr) {
				log.Printf("❌ %s: %v (document skipped)", path, err)
				failed++
				continue
			}
			var labelErr *pii.UnknownLabelError
			var corruptErr *pii.CorruptMappingError
			if errors.As(err, &labelErr) || errors.As(err, &corruptErr) {
				// Configuration problems abort the whole run before more
				// output is written.
				return err
			}
			log.Printf("❌ %s: %v (document skipped)", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(inputs))
	}
	return nil
}
