package datastore_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stevemurr/recordstore/datastore"
	"github.com/stevemurr/recordstore/query"
	"github.com/stevemurr/recordstore/schema"
	"github.com/stevemurr/recordstore/store"
)

const namespace = "recordstore"

var test1Models = datastore.NewModel("Test1Models", "id")

func namespaced(m datastore.Model) string {
	return namespace + "/" + m.Name()
}

func seedData1() map[string]map[string]map[string]any {
	return map[string]map[string]map[string]any{
		namespace + "/Test1Models": {
			"29a766b5-e77b-4099-a7f2-61cda0a29cc3": {"id": "29a766b5-e77b-4099-a7f2-61cda0a29cc3", "name": "my-name-1"},
			"032c282c-b367-4d15-b19a-01c855b38f44": {"id": "032c282c-b367-4d15-b19a-01c855b38f44", "name": "my-name-2"},
			"49dd6b5b-cb33-4331-8224-98cc4fd4595a": {"id": "49dd6b5b-cb33-4331-8224-98cc4fd4595a", "name": "my-name-3"},
		},
	}
}

func setup(t *testing.T, opts ...datastore.Option) (*datastore.Datastore, store.Store) {
	t.Helper()
	backend := store.NewMemoryStore()
	opts = append([]datastore.Option{datastore.WithCollectionNamer(namespaced)}, opts...)
	d, err := datastore.New(backend, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d, backend
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t, datastore.WithSeedData(seedData1()))

	t.Run("seeded key", func(t *testing.T) {
		got, err := d.Retrieve(ctx, test1Models, "032c282c-b367-4d15-b19a-01c855b38f44")
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]any{"id": "032c282c-b367-4d15-b19a-01c855b38f44", "name": "my-name-2"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("unknown key is not an error", func(t *testing.T) {
		got, err := d.Retrieve(ctx, test1Models, "b9143f12-a2b1-45d1-83c2-9ecc9ac8d142")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := d.Retrieve(ctx, test1Models, nil); !errors.Is(err, datastore.ErrMissingKey) {
			t.Fatalf("expected ErrMissingKey, got %v", err)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)

	record := map[string]any{
		"id":      "k1",
		"name":    "another-name",
		"age":     3,
		"created": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"tags":    []any{"a"},
	}
	saved, err := d.Save(ctx, datastore.NewInstance(test1Models, record))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(saved, record) {
		t.Fatalf("expected %v, got %v", record, saved)
	}
	got, err := d.Retrieve(ctx, test1Models, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, record) {
		t.Fatalf("expected %v, got %v", record, got)
	}
}

func TestSaveMerges(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)

	if _, err := d.Save(ctx, datastore.NewInstance(test1Models, map[string]any{"id": "k1", "name": "a", "age": float64(1)})); err != nil {
		t.Fatal(err)
	}
	saved, err := d.Save(ctx, datastore.NewInstance(test1Models, map[string]any{"id": "k1", "name": "b"}))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": "k1", "name": "b", "age": float64(1)}
	if !reflect.DeepEqual(saved, want) {
		t.Fatalf("expected %v, got %v", want, saved)
	}
}

func TestSaveNumericKey(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)
	model := datastore.NewModel("Numbers", "")

	if _, err := d.Save(ctx, datastore.NewInstance(model, map[string]any{"id": 7, "v": "x"})); err != nil {
		t.Fatal(err)
	}
	for _, key := range []any{7, "7", float64(7), int8(7), int16(7), uint8(7), uint16(7), float32(7)} {
		got, err := d.Retrieve(ctx, model, key)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got["v"] != "x" {
			t.Fatalf("key %#v: expected record, got %v", key, got)
		}
	}
}

func TestSaveGeneratesKey(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)

	saved, err := d.Save(ctx, datastore.NewInstance(test1Models, map[string]any{"name": "my-name"}))
	if err != nil {
		t.Fatal(err)
	}
	id, ok := saved["id"].(string)
	if !ok || len(id) != 36 {
		t.Fatalf("expected a generated uuid, got %#v", saved["id"])
	}
	got, err := d.Retrieve(ctx, test1Models, id)
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "my-name" {
		t.Fatalf("unexpected record %v", got)
	}
}

type brokenInstance struct{}

func (brokenInstance) Model() datastore.Model { return test1Models }
func (brokenInstance) ToObject(context.Context) (map[string]any, error) {
	return nil, errors.New("cannot serialize")
}
func (brokenInstance) PrimaryKey(context.Context) (any, error) { return "broken", nil }

func TestSaveSerializerFailure(t *testing.T) {
	d, _ := setup(t)
	if _, err := d.Save(context.Background(), brokenInstance{}); err == nil {
		t.Fatal("expected serializer error")
	}
}

func TestSaveValidatesSchema(t *testing.T) {
	ctx := context.Background()
	d, backend := setup(t)
	err := backend.PutSchema(namespace+"/Test1Models", map[string]any{
		"type":     "object",
		"required": []any{"name"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Save(ctx, datastore.NewInstance(test1Models, map[string]any{"id": "k1"}))
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n, _ := d.Count(ctx, test1Models); n != 0 {
		t.Fatalf("invalid record was stored, count=%d", n)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t, datastore.WithSeedData(seedData1()))
	const key = "032c282c-b367-4d15-b19a-01c855b38f44"

	if err := d.Delete(ctx, test1Models, key); err != nil {
		t.Fatal(err)
	}
	got, err := d.Retrieve(ctx, test1Models, key)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %v", got)
	}
	if err := d.Delete(ctx, test1Models, key); err != nil {
		t.Fatalf("deleting an absent key should succeed: %v", err)
	}
	if n, _ := d.Count(ctx, test1Models); n != 2 {
		t.Fatalf("expected 2 live records, got %d", n)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t, datastore.WithSeedData(seedData1()))

	t.Run("single match", func(t *testing.T) {
		got, err := d.Search(ctx, test1Models, query.Build().Property("name", "my-name-3").Compile())
		if err != nil {
			t.Fatal(err)
		}
		want := &datastore.SearchResult{
			Instances: []map[string]any{{"id": "49dd6b5b-cb33-4331-8224-98cc4fd4595a", "name": "my-name-3"}},
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("ordered by key", func(t *testing.T) {
		got, err := d.Search(ctx, test1Models, query.Build().Property("name", "my-name", query.StartsWith()).Compile())
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Instances) != 3 {
			t.Fatalf("expected 3 results, got %d", len(got.Instances))
		}
		if got.Instances[0]["name"] != "my-name-2" || got.Instances[2]["name"] != "my-name-3" {
			t.Fatalf("unexpected order %v", got.Instances)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		bad := query.Search{Query: query.Tokens{query.Property{Key: "name", Value: "x"}, query.Or}}
		_, err := d.Search(ctx, test1Models, bad)
		var mqe *query.MalformedQueryError
		if !errors.As(err, &mqe) {
			t.Fatalf("expected MalformedQueryError, got %v", err)
		}
	})

	t.Run("empty collection", func(t *testing.T) {
		got, err := d.Search(ctx, datastore.NewModel("Other", ""), query.Build().Property("name", "x").Compile())
		if err != nil {
			t.Fatal(err)
		}
		if got.Instances == nil || len(got.Instances) != 0 || got.Page != nil {
			t.Fatalf("expected empty result, got %#v", got)
		}
	})

	t.Run("records are not mutated", func(t *testing.T) {
		before, err := d.Dump(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.Search(ctx, test1Models, query.Build().Property("name", nil).Compile()); err != nil {
			t.Fatal(err)
		}
		after, err := d.Dump(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Fatal("search changed stored records")
		}
	})
}

func TestSearchDateProperty(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 5, 0, 0, 0, time.FixedZone("", 5*3600))
	record := map[string]any{"id": "k", "at": at}
	s := query.Build().Property("at", "2025-01-01T05", query.WithType(query.Date), query.StartsWith()).Compile()

	filtered, err := query.Filter(s, []map[string]any{record})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected Filter to match, got %d", len(filtered))
	}

	backends := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return store.NewMemoryStore() },
		"json": func(t *testing.T) store.Store {
			b, err := store.NewJsonFileStore(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return b
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			d, err := datastore.New(open(t))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := d.Save(ctx, datastore.NewInstance(test1Models, record)); err != nil {
				t.Fatal(err)
			}
			got, err := d.Search(ctx, test1Models, s)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Instances) != 1 {
				t.Fatalf("expected Search to agree with Filter, got %d", len(got.Instances))
			}
		})
	}
}

func TestCount(t *testing.T) {
	ctx := context.Background()

	d, _ := setup(t, datastore.WithSeedData(seedData1()))
	if n, err := d.Count(ctx, test1Models); err != nil || n != 3 {
		t.Fatalf("expected 3, got %d (%v)", n, err)
	}

	empty, _ := setup(t)
	if n, err := empty.Count(ctx, test1Models); err != nil || n != 0 {
		t.Fatalf("expected 0, got %d (%v)", n, err)
	}
}

func TestCollectionsAreCreatedLazily(t *testing.T) {
	ctx := context.Background()
	d, backend := setup(t)

	if _, err := d.Count(ctx, test1Models); err != nil {
		t.Fatal(err)
	}
	names, err := backend.ListCollections()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != namespace+"/Test1Models" {
		t.Fatalf("expected the collection to exist, got %v", names)
	}
	dump, err := d.Dump(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if records, ok := dump[namespace+"/Test1Models"]; !ok || len(records) != 0 {
		t.Fatalf("expected an empty collection in dump, got %v", dump)
	}
}

func TestDefaultCollectionName(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	d, err := datastore.New(backend)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Save(ctx, datastore.NewInstance(test1Models, map[string]any{"id": "k"})); err != nil {
		t.Fatal(err)
	}
	got, err := backend.Get("Test1Models", "k")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected record in collection named after the model")
	}
}

func TestCancelledContext(t *testing.T) {
	d, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Count(ctx, test1Models); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
