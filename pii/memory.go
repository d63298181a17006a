package pii

import (
	"context"
	"sync"
	"time"
)

// InMemoryMappingDB implements MappingDB with process-local maps. It backs
// tests and cache-only runs where nothing should touch disk.
type InMemoryMappingDB struct {
	mu         sync.RWMutex
	byToken    map[string]MappingEntry
	byIdentity map[string]string
	createdAt  map[string]time.Time
}

// NewInMemoryMappingDB creates an empty in-memory backend.
func NewInMemoryMappingDB() *InMemoryMappingDB {
	return &InMemoryMappingDB{
		byToken:    make(map[string]MappingEntry),
		byIdentity: make(map[string]string),
		createdAt:  make(map[string]time.Time),
	}
}

func (m *InMemoryMappingDB) StoreMapping(ctx context.Context, entry MappingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idKey := IdentityOf(entry.Original, entry.Label).key()
	if existing, ok := m.byIdentity[idKey]; ok {
		// Upsert semantics: the identity keeps its first token.
		entry.Token = existing
		m.byToken[existing] = entry
		return nil
	}
	m.byToken[entry.Token] = entry
	m.byIdentity[idKey] = entry.Token
	m.createdAt[entry.Token] = time.Now()
	return nil
}

func (m *InMemoryMappingDB) GetToken(ctx context.Context, norm, label string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.byIdentity[Identity{Norm: norm, Label: label}.key()]
	return token, ok, nil
}

func (m *InMemoryMappingDB) GetEntry(ctx context.Context, token string) (MappingEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byToken[token]
	return entry, ok, nil
}

func (m *InMemoryMappingDB) LoadAll(ctx context.Context) ([]MappingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]MappingEntry, 0, len(m.byToken))
	for _, entry := range m.byToken {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (m *InMemoryMappingDB) DeleteMapping(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.byToken[token]; ok {
		delete(m.byIdentity, IdentityOf(entry.Original, entry.Label).key())
		delete(m.byToken, token)
		delete(m.createdAt, token)
	}
	return nil
}

func (m *InMemoryMappingDB) CleanupOldMappings(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var removed int64
	for token, created := range m.createdAt {
		if created.Before(cutoff) {
			if entry, ok := m.byToken[token]; ok {
				delete(m.byIdentity, IdentityOf(entry.Original, entry.Label).key())
			}
			delete(m.byToken, token)
			delete(m.createdAt, token)
			removed++
		}
	}
	return removed, nil
}

func (m *InMemoryMappingDB) ClearMappings(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byToken = make(map[string]MappingEntry)
	m.byIdentity = make(map[string]string)
	m.createdAt = make(map[string]time.Time)
	return nil
}

func (m *InMemoryMappingDB) GetMappingsCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken), nil
}

func (m *InMemoryMappingDB) Close() error {
	return nil
}
