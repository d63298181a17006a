package pii

import (
	"context"
	"log"
	"sort"
	"sync"
)

// MappingEntry is one row of the correspondence table: the substitute token,
// the original value it replaced, its entity type and the context in which
// the identity was first seen.
type MappingEntry struct {
	Token            string `json:"token"`
	Original         string `json:"original_text"`
	Label            string `json:"entity_type"`
	FirstSeenContext string `json:"first_seen_context"`
}

// Mapping is the bidirectional correspondence table between substitute
// tokens and original entity values. It keeps a dual in-memory index
// (token -> entry and identity -> token) and optionally writes through to a
// persistent MappingDB backend.
//
// A Mapping is owned by one run: constructed, grown during pseudonymization,
// persisted, and discarded. It is safe for concurrent use across documents;
// the lookup-or-create step holds one exclusive lock so two documents can
// never mint different tokens for the same identity.
type Mapping struct {
	mu         sync.RWMutex
	byToken    map[string]MappingEntry
	byIdentity map[string]string
	generator  *Generator
	db         MappingDB
}

// NewMapping creates an empty in-memory mapping.
func NewMapping() *Mapping {
	return &Mapping{
		byToken:    make(map[string]MappingEntry),
		byIdentity: make(map[string]string),
		generator:  NewGenerator(),
	}
}

// NewMappingWithDB creates a mapping that writes through to db.
func NewMappingWithDB(db MappingDB) *Mapping {
	m := NewMapping()
	m.db = db
	return m
}

// Preload loads the full persisted table into the in-memory indexes.
// Depseudonymization requires the complete mapping; a backend that yields
// duplicate tokens or duplicate identities is corrupt and the load aborts.
func (m *Mapping) Preload(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	entries, err := m.db.LoadAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if err := m.insertLocked(entry, "database"); err != nil {
			return err
		}
	}
	return nil
}

// insertLocked adds an entry to both indexes, rejecting duplicates. An
// entry exactly matching one already present (same token, same identity)
// is a no-op so that a mapping file and a database holding the same run
// can be merged. Caller holds the write lock.
func (m *Mapping) insertLocked(entry MappingEntry, source string) error {
	idKey := IdentityOf(entry.Original, entry.Label).key()
	existingToken, idExists := m.byIdentity[idKey]
	if _, tokenExists := m.byToken[entry.Token]; tokenExists {
		if idExists && existingToken == entry.Token {
			return nil
		}
		return &CorruptMappingError{
			Source: source,
			Reason: "duplicate substitute token " + entry.Token,
		}
	}
	if idExists {
		return &CorruptMappingError{
			Source: source,
			Reason: "two tokens map to the same identity (" + entry.Original + ", " + entry.Label + ")",
		}
	}
	m.byToken[entry.Token] = entry
	m.byIdentity[idKey] = entry.Token
	return nil
}

// LookupOrCreate returns the substitute token for the entity value, minting
// and recording a new one on first encounter. firstSeenContext is stored
// only when the identity is new.
func (m *Mapping) LookupOrCreate(ctx context.Context, original, label, firstSeenContext string) (string, error) {
	id := IdentityOf(original, label)

	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.byIdentity[id.key()]; ok {
		return token, nil
	}

	// The identity may exist in the backend from an earlier run sharing
	// the same store.
	if m.db != nil {
		token, found, err := m.db.GetToken(ctx, id.Norm, id.Label)
		if err != nil {
			log.Printf("[Mapping] Failed to query backend for identity: %v", err)
		} else if found {
			entry, found, err := m.db.GetEntry(ctx, token)
			if err != nil || !found {
				entry = MappingEntry{Token: token, Original: original, Label: label, FirstSeenContext: firstSeenContext}
			}
			m.byToken[token] = entry
			m.byIdentity[id.key()] = token
			return token, nil
		}
	}

	token := m.generateLocked(ctx, id)
	entry := MappingEntry{
		Token:            token,
		Original:         original,
		Label:            label,
		FirstSeenContext: firstSeenContext,
	}
	m.byToken[token] = entry
	m.byIdentity[id.key()] = token

	if m.db != nil {
		if err := m.db.StoreMapping(ctx, entry); err != nil {
			// Keep going on the in-memory indexes; the run can still be
			// persisted via SaveMappingFile.
			log.Printf("[Mapping] Failed to persist mapping for token %s: %v", token, err)
		}
	}

	return token, nil
}

// generateLocked mints a token unused in memory and, when a backend is
// attached, unused in the backend as well. Caller holds the write lock.
func (m *Mapping) generateLocked(ctx context.Context, id Identity) string {
	taken := make(map[string]struct{}, len(m.byToken))
	for t := range m.byToken {
		taken[t] = struct{}{}
	}
	for {
		token := m.generator.Generate(id, taken)
		if m.db == nil {
			return token
		}
		_, found, err := m.db.GetEntry(ctx, token)
		if err != nil {
			log.Printf("[Mapping] Backend uniqueness check failed: %v", err)
			return token
		}
		if !found {
			return token
		}
		taken[token] = struct{}{}
	}
}

// LookupToken returns the entry for a substitute token.
func (m *Mapping) LookupToken(token string) (MappingEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byToken[token]
	return entry, ok
}

// LookupIdentity returns the token already assigned to (text, label).
func (m *Mapping) LookupIdentity(text, label string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.byIdentity[IdentityOf(text, label).key()]
	return token, ok
}

// Len returns the number of entries held in memory.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}

// Count returns the persisted entry count when a backend is attached,
// falling back to the in-memory index. The backend can hold entries from
// earlier runs that were never loaded into memory.
func (m *Mapping) Count(ctx context.Context) (int, error) {
	if m.db != nil {
		return m.db.GetMappingsCount(ctx)
	}
	return m.Len(), nil
}

// Entries returns a copy of the token-keyed table.
func (m *Mapping) Entries() map[string]MappingEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make(map[string]MappingEntry, len(m.byToken))
	for token, entry := range m.byToken {
		entries[token] = entry
	}
	return entries
}

// TokensLongestFirst returns all known tokens ordered by decreasing length
// (ties broken lexicographically). Restoration scans in this order so a
// token that is a prefix of another can never steal its occurrences.
func (m *Mapping) TokensLongestFirst() []string {
	m.mu.RLock()
	tokens := make([]string, 0, len(m.byToken))
	for token := range m.byToken {
		tokens = append(tokens, token)
	}
	m.mu.RUnlock()

	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
	return tokens
}

// Clear drops all entries from memory and from the backend if attached.
func (m *Mapping) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byToken = make(map[string]MappingEntry)
	m.byIdentity = make(map[string]string)
	if m.db != nil {
		return m.db.ClearMappings(ctx)
	}
	return nil
}

// Close releases the backend if one is attached.
func (m *Mapping) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
