// Package store holds records in named collections.
//
// A Store is the plain key/value mapping underneath the datastore: it knows
// nothing about queries, models or merging. Implementations hand out copies
// so callers can never mutate what is stored.
package store

// Store maps collection name -> record key -> record.
type Store interface {
	// GetAll returns every record of a collection as key -> record.
	// An unknown collection yields an empty map.
	GetAll(collection string) (map[string]map[string]any, error)

	// Get returns a single record by key, or nil if not found.
	Get(collection, key string) (map[string]any, error)

	// Put inserts or replaces a record.
	Put(collection, key string, record map[string]any) error

	// Delete removes a record. Returns true if it existed.
	Delete(collection, key string) (bool, error)

	// CreateCollection makes an empty collection if it does not exist yet.
	CreateCollection(collection string) error

	// ListCollections returns the names of all collections, sorted.
	ListCollections() ([]string, error)

	// GetSchema returns the JSON Schema for a collection, or nil.
	GetSchema(collection string) (map[string]any, error)

	// PutSchema stores a JSON Schema for a collection.
	PutSchema(collection string, schema map[string]any) error

	// DeleteSchema removes the schema for a collection. Returns true if it existed.
	DeleteSchema(collection string) (bool, error)

	// ListSchemas returns all schemas as collection name -> schema.
	ListSchemas() (map[string]map[string]any, error)
}
