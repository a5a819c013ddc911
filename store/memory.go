package store

import (
	"sort"
	"sync"
)

// MemoryStore keeps every collection in process memory. Data is lost on
// restart. Safe for concurrent use.
//
// Records are deep-copied in and out and keep their Go value types: an int
// or a time.Time put in comes back as the same int or time.Time.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	schemas     map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		schemas:     make(map[string]map[string]any),
	}
}

func (m *MemoryStore) GetAll(collection string) (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]
	result := make(map[string]map[string]any, len(coll))
	for k, v := range coll {
		result[k] = Copy(v)
	}
	return result, nil
}

func (m *MemoryStore) Get(collection, key string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.collections[collection][key]
	if !ok {
		return nil, nil
	}
	return Copy(record), nil
}

func (m *MemoryStore) Put(collection, key string, record map[string]any) error {
	stored := Copy(record)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(collection)[key] = stored
	return nil
}

func (m *MemoryStore) Delete(collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false, nil
	}
	if _, exists := coll[key]; !exists {
		return false, nil
	}
	delete(coll, key)
	return true, nil
}

func (m *MemoryStore) CreateCollection(collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(collection)
	return nil
}

// ensure must be called with m.mu held for writing.
func (m *MemoryStore) ensure(collection string) map[string]map[string]any {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	return coll
}

func (m *MemoryStore) ListCollections() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) GetSchema(collection string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[collection]
	if !ok {
		return nil, nil
	}
	return Copy(s), nil
}

func (m *MemoryStore) PutSchema(collection string, schema map[string]any) error {
	stored := Copy(schema)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[collection] = stored
	return nil
}

func (m *MemoryStore) DeleteSchema(collection string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[collection]; !ok {
		return false, nil
	}
	delete(m.schemas, collection)
	return true, nil
}

func (m *MemoryStore) ListSchemas() (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]map[string]any, len(m.schemas))
	for k, v := range m.schemas {
		result[k] = Copy(v)
	}
	return result, nil
}
