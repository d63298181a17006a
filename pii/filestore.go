package pii

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// fileEntry is the persisted shape of one mapping row. The file is a JSON
// object keyed by substitute token; the token itself is the key, not a
// field, so the store round-trips as a mapping rather than a sequence.
type fileEntry struct {
	Original         string `json:"original_text"`
	Label            string `json:"entity_type"`
	FirstSeenContext string `json:"first_seen_context"`
}

// SaveMappingFile writes the full correspondence table to path using
// write-to-temp-then-rename so a crash can never leave a truncated file.
func SaveMappingFile(m *Mapping, path string) error {
	doc := make(map[string]fileEntry, m.Len())
	for token, entry := range m.Entries() {
		doc[token] = fileEntry{
			Original:         entry.Original,
			Label:            entry.Label,
			FirstSeenContext: entry.FirstSeenContext,
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create mapping directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close mapping file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace mapping file: %w", err)
	}

	return nil
}

// LoadMappingFile reads a persisted correspondence table in full. Malformed
// data, duplicate substitute tokens and duplicate identities all abort the
// load with CorruptMappingError; duplicates indicate a corrupted or
// hand-edited file and must not be silently merged.
func LoadMappingFile(path string) (*Mapping, error) {
	// #nosec G304 - Mapping path comes from the operator's configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	m := NewMapping()
	if err := loadMappingInto(m, path, data); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadMappingFileInto merges a persisted table into an existing mapping,
// typically one already backed by a database. The same corruption rules
// apply; a token or identity colliding with an entry already in m aborts
// the load.
func LoadMappingFileInto(m *Mapping, path string) error {
	// #nosec G304 - Mapping path comes from the operator's configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mapping file: %w", err)
	}
	return loadMappingInto(m, path, data)
}

// loadMappingInto decodes the document token by token. encoding/json would
// silently collapse duplicate object keys, so the top-level object is walked
// with a Decoder to catch them.
func loadMappingInto(m *Mapping, source string, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return &CorruptMappingError{Source: source, Reason: "not a JSON document: " + err.Error()}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &CorruptMappingError{Source: source, Reason: "top-level value is not an object"}
	}

	seen := make(map[string]bool)
	m.mu.Lock()
	defer m.mu.Unlock()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &CorruptMappingError{Source: source, Reason: "malformed object key: " + err.Error()}
		}
		token, ok := keyTok.(string)
		if !ok {
			return &CorruptMappingError{Source: source, Reason: "object key is not a string"}
		}
		if token == "" {
			return &CorruptMappingError{Source: source, Reason: "empty substitute token"}
		}
		if seen[token] {
			return &CorruptMappingError{Source: source, Reason: "duplicate substitute token " + token}
		}
		seen[token] = true

		var fe fileEntry
		if err := dec.Decode(&fe); err != nil {
			return &CorruptMappingError{Source: source, Reason: "malformed entry for token " + token + ": " + err.Error()}
		}
		if fe.Original == "" || fe.Label == "" {
			return &CorruptMappingError{Source: source, Reason: "entry for token " + token + " is missing original_text or entity_type"}
		}

		entry := MappingEntry{
			Token:            token,
			Original:         fe.Original,
			Label:            fe.Label,
			FirstSeenContext: fe.FirstSeenContext,
		}
		if err := m.insertLocked(entry, source); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return &CorruptMappingError{Source: source, Reason: "unterminated object: " + err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &CorruptMappingError{Source: source, Reason: "trailing data after mapping object"}
	}

	return nil
}
