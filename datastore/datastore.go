// Package datastore is the record store behind the object-model layer.
//
// It resolves models to named collections, merges saved records over the
// stored ones, and answers searches by compiling a query tree once and
// filtering every record of the collection with it.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stevemurr/recordstore/query"
	"github.com/stevemurr/recordstore/schema"
	"github.com/stevemurr/recordstore/store"
)

// ErrMissingKey is returned when an operation needs a primary key and
// none was given.
var ErrMissingKey = errors.New("datastore: missing primary key")

// Datastore serializes every operation behind one mutex: Save is a
// read-merge-write and Search must see a consistent collection.
type Datastore struct {
	mu      sync.Mutex
	backend store.Store
	namer   CollectionNamer
	log     *slog.Logger
	known   map[string]struct{}
}

type options struct {
	namer  CollectionNamer
	seed   map[string]map[string]map[string]any
	logger *slog.Logger
}

// Option configures a Datastore.
type Option func(*options)

// WithCollectionNamer overrides DefaultCollectionName.
func WithCollectionNamer(fn CollectionNamer) Option {
	return func(o *options) { o.namer = fn }
}

// WithSeedData loads collection -> key -> record into the backend when the
// Datastore is created.
func WithSeedData(seed map[string]map[string]map[string]any) Option {
	return func(o *options) { o.seed = seed }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns a Datastore over backend.
func New(backend store.Store, opts ...Option) (*Datastore, error) {
	o := options{namer: DefaultCollectionName, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Datastore{
		backend: backend,
		namer:   o.namer,
		log:     o.logger.With("component", "datastore"),
		known:   make(map[string]struct{}),
	}
	for collection, records := range o.seed {
		if err := d.ensure(collection); err != nil {
			return nil, err
		}
		for key, record := range records {
			if err := backend.Put(collection, key, record); err != nil {
				return nil, fmt.Errorf("seed %s/%s: %w", collection, key, err)
			}
		}
	}
	return d, nil
}

// SearchResult is the outcome of a search. Page is always nil: results are
// never paginated.
type SearchResult struct {
	Instances []map[string]any `json:"instances"`
	Page      any              `json:"page"`
}

// collection must be called with d.mu held.
func (d *Datastore) collection(model Model) (string, error) {
	name := d.namer(model)
	if name == "" {
		return "", fmt.Errorf("datastore: model %q maps to an empty collection name", model.Name())
	}
	return name, d.ensure(name)
}

func (d *Datastore) ensure(name string) error {
	if _, ok := d.known[name]; ok {
		return nil
	}
	if err := d.backend.CreateCollection(name); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	d.known[name] = struct{}{}
	return nil
}

// Retrieve returns the record stored under key, or nil when there is none.
// A missing record is not an error.
func (d *Datastore) Retrieve(ctx context.Context, model Model, key any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := requireKey(key)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	collection, err := d.collection(model)
	if err != nil {
		return nil, err
	}
	return d.backend.Get(collection, k)
}

// Save upserts the instance's record: new top-level fields overwrite the
// stored ones, untouched fields survive. An instance without a primary key
// gets a new UUID. The stored representation is returned.
func (d *Datastore) Save(ctx context.Context, inst Instance) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, stored, err := d.save(ctx, inst.Model(), inst)
	return stored, err
}

func (d *Datastore) save(ctx context.Context, model Model, inst Instance) (string, map[string]any, error) {
	data, err := inst.ToObject(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("serialize record: %w", err)
	}
	pk, err := inst.PrimaryKey(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("resolve primary key: %w", err)
	}
	key, err := keyString(pk)
	if err != nil {
		return "", nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	if key == "" {
		key = uuid.NewString()
		data[model.PrimaryKeyName()] = key
	}

	collection, err := d.collection(model)
	if err != nil {
		return key, nil, err
	}
	existing, err := d.backend.Get(collection, key)
	if err != nil {
		return key, nil, err
	}
	merged := make(map[string]any, len(existing)+len(data))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}

	sch, err := d.backend.GetSchema(collection)
	if err != nil {
		return key, nil, err
	}
	if err := schema.Validate(sch, merged); err != nil {
		return key, nil, err
	}

	if err := d.backend.Put(collection, key, merged); err != nil {
		return key, nil, err
	}
	// Read back what the backend kept: the file and SQLite backends store
	// JSON, the memory backend keeps Go values.
	stored, err := d.backend.Get(collection, key)
	if err != nil {
		return key, nil, err
	}
	return key, stored, nil
}

// Delete removes the record stored under key. Deleting a missing record
// succeeds.
func (d *Datastore) Delete(ctx context.Context, model Model, key any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.delete(model, key)
	return err
}

func (d *Datastore) delete(model Model, key any) (string, error) {
	k, err := requireKey(key)
	if err != nil {
		return "", err
	}
	collection, err := d.collection(model)
	if err != nil {
		return k, err
	}
	_, err = d.backend.Delete(collection, k)
	return k, err
}

// Search compiles s once and returns every record of the model's
// collection it matches, ordered by primary key.
func (d *Datastore) Search(ctx context.Context, model Model, s query.Search) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := query.ValidateSearch(s); err != nil {
		return nil, err
	}
	match, err := query.Compile(s.Query)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	collection, err := d.collection(model)
	if err != nil {
		return nil, err
	}
	records, err := d.backend.GetAll(collection)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &SearchResult{Instances: make([]map[string]any, 0)}
	for _, k := range keys {
		if match(records[k]) {
			result.Instances = append(result.Instances, records[k])
		}
	}
	d.log.Debug("search", "collection", collection, "scanned", len(records), "matched", len(result.Instances))
	return result, nil
}

// Count returns the number of records in the model's collection.
func (d *Datastore) Count(ctx context.Context, model Model) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	collection, err := d.collection(model)
	if err != nil {
		return 0, err
	}
	records, err := d.backend.GetAll(collection)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Dump returns the whole mapping, collection -> key -> record. Intended
// for tests and debugging.
func (d *Datastore) Dump(ctx context.Context) (map[string]map[string]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	names, err := d.backend.ListCollections()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]map[string]any, len(names))
	for _, name := range names {
		records, err := d.backend.GetAll(name)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", name, err)
		}
		out[name] = records
	}
	return out, nil
}

func requireKey(key any) (string, error) {
	k, err := keyString(key)
	if err != nil {
		return "", err
	}
	if k == "" {
		return "", ErrMissingKey
	}
	return k, nil
}
