package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stevemurr/recordstore/datastore"
	"github.com/stevemurr/recordstore/handler"
	"github.com/stevemurr/recordstore/store"
)

func setup(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	d, err := datastore.New(s)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(handler.New(d, s))
	t.Cleanup(ts.Close)
	return ts, s
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func decodeJSONArray(t *testing.T, r io.Reader) []any {
	t.Helper()
	var v []any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if raw, ok := body.(string); ok {
		r = bytes.NewReader([]byte(raw))
	} else if body != nil {
		r = bytes.NewReader(mustJSON(t, body))
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func TestRootAndHealth(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/", nil)
	expectStatus(t, resp, 200)
	body := decodeJSON(t, resp.Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}

	expectStatus(t, do(t, "GET", ts.URL+"/health", nil), 200)
	expectStatus(t, do(t, "GET", ts.URL+"/nope", nil), 404)
}

func TestItemsCRUD(t *testing.T) {
	ts, _ := setup(t)
	base := ts.URL + "/collections/tasks/items"

	resp := do(t, "GET", base, nil)
	expectStatus(t, resp, 200)
	if items := decodeJSONArray(t, resp.Body); len(items) != 0 {
		t.Fatalf("expected empty list, got %v", items)
	}

	resp = do(t, "PUT", base+"/t1", map[string]any{"title": "Buy milk", "done": false})
	expectStatus(t, resp, 200)
	saved := decodeJSON(t, resp.Body)
	if saved["id"] != "t1" || saved["title"] != "Buy milk" {
		t.Fatalf("unexpected saved record %v", saved)
	}

	// Partial update keeps the other fields.
	resp = do(t, "PUT", base+"/t1", map[string]any{"done": true, "id": "ignored"})
	expectStatus(t, resp, 200)
	saved = decodeJSON(t, resp.Body)
	if saved["title"] != "Buy milk" || saved["done"] != true || saved["id"] != "t1" {
		t.Fatalf("expected merged record, got %v", saved)
	}

	resp = do(t, "GET", base+"/t1", nil)
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["done"] != true {
		t.Fatalf("unexpected record %v", got)
	}

	resp = do(t, "GET", ts.URL+"/collections/tasks/count", nil)
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["count"] != float64(1) {
		t.Fatalf("expected count=1, got %v", got)
	}

	expectStatus(t, do(t, "DELETE", base+"/t1", nil), 200)
	expectStatus(t, do(t, "DELETE", base+"/t1", nil), 200)
	expectStatus(t, do(t, "GET", base+"/t1", nil), 404)
}

func TestCreateItemGeneratesKey(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "POST", ts.URL+"/collections/tasks/items", map[string]any{"title": "new"})
	expectStatus(t, resp, 201)
	saved := decodeJSON(t, resp.Body)
	id, _ := saved["id"].(string)
	if len(id) != 36 {
		t.Fatalf("expected a generated uuid, got %v", saved["id"])
	}
	expectStatus(t, do(t, "GET", ts.URL+"/collections/tasks/items/"+id, nil), 200)
}

func TestInvalidJSON(t *testing.T) {
	ts, _ := setup(t)
	expectStatus(t, do(t, "PUT", ts.URL+"/collections/tasks/items/t1", "{not json"), 400)
	expectStatus(t, do(t, "POST", ts.URL+"/collections/tasks/bulk", "[]"), 400)
}

func TestListCollections(t *testing.T) {
	ts, _ := setup(t)

	do(t, "PUT", ts.URL+"/collections/b/items/1", map[string]any{"x": 1})
	do(t, "GET", ts.URL+"/collections/a/count", nil)

	resp := do(t, "GET", ts.URL+"/collections", nil)
	expectStatus(t, resp, 200)
	names := decodeJSONArray(t, resp.Body)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected [a b], got %v", names)
	}
}

func seedPeople(t *testing.T, ts *httptest.Server) {
	t.Helper()
	for _, p := range []map[string]any{
		{"id": "p1", "name": "Alice", "age": 31, "updatedAt": "2024-01-01T00:00:00Z"},
		{"id": "p2", "name": "alfred", "age": 45, "updatedAt": "2024-06-01T00:00:00Z"},
		{"id": "p3", "name": "Bob", "age": 27, "updatedAt": "2024-09-01T00:00:00Z"},
	} {
		expectStatus(t, do(t, "PUT", ts.URL+"/collections/people/items/"+p["id"].(string), p), 200)
	}
}

func TestSearch(t *testing.T) {
	ts, _ := setup(t)
	seedPeople(t, ts)
	url := ts.URL + "/collections/people/search"

	t.Run("starts with", func(t *testing.T) {
		resp := do(t, "POST", url, `{"query": [
			{"type": "property", "key": "name", "value": "al", "options": {"startsWith": true}}
		]}`)
		expectStatus(t, resp, 200)
		result := decodeJSON(t, resp.Body)
		instances := result["instances"].([]any)
		if len(instances) != 2 {
			t.Fatalf("expected 2 matches, got %v", instances)
		}
		if page, ok := result["page"]; !ok || page != nil {
			t.Fatalf("expected page=null, got %v", result["page"])
		}
	})

	t.Run("or chain", func(t *testing.T) {
		resp := do(t, "POST", url, `{"query": [
			{"type": "property", "key": "age", "value": 30, "valueType": "number", "equalitySymbol": "<"},
			"OR",
			{"type": "property", "key": "age", "value": 40, "valueType": "number", "equalitySymbol": ">"}
		]}`)
		expectStatus(t, resp, 200)
		instances := decodeJSON(t, resp.Body)["instances"].([]any)
		if len(instances) != 2 {
			t.Fatalf("expected 2 matches, got %v", instances)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		resp := do(t, "POST", url, `{"query": [{"type": "property", "key": "name", "value": "a"}, "XOR"]}`)
		expectStatus(t, resp, 400)
		if detail := decodeJSON(t, resp.Body)["detail"]; detail == nil {
			t.Fatal("expected detail in error body")
		}
	})

	t.Run("bad operator", func(t *testing.T) {
		resp := do(t, "POST", url, `{"query": [
			{"type": "property", "key": "name", "value": "a", "equalitySymbol": ">"}
		]}`)
		expectStatus(t, resp, 400)
	})
}

func TestGetItemsSince(t *testing.T) {
	ts, _ := setup(t)
	seedPeople(t, ts)

	resp := do(t, "GET", ts.URL+"/collections/people/items/since/2024-03-01T00:00:00Z", nil)
	expectStatus(t, resp, 200)
	if items := decodeJSONArray(t, resp.Body); len(items) != 2 {
		t.Fatalf("expected 2 items since March, got %d", len(items))
	}

	resp = do(t, "GET", ts.URL+"/collections/people/items/since/2024-01-01T00:00:00Z?field=updatedAt", nil)
	expectStatus(t, resp, 200)
	if items := decodeJSONArray(t, resp.Body); len(items) != 2 {
		t.Fatalf("the boundary is exclusive, expected 2 items, got %d", len(items))
	}

	expectStatus(t, do(t, "GET", ts.URL+"/collections/people/items/since/yesterday", nil), 400)
}

func TestBulk(t *testing.T) {
	ts, s := setup(t)
	s.PutSchema("people", map[string]any{
		"type":     "object",
		"required": []any{"name"},
	})

	resp := do(t, "POST", ts.URL+"/collections/people/bulk", map[string]any{"items": []any{
		map[string]any{"id": "p1", "name": "Alice"},
		map[string]any{"id": "p2"},
		map[string]any{"id": "p3", "name": "Bob"},
	}})
	expectStatus(t, resp, 207)
	body := decodeJSON(t, resp.Body)
	failed := body["failed"].([]any)
	if len(failed) != 1 || body["total"] != float64(3) {
		t.Fatalf("expected 1 of 3 failures, got %v", body)
	}
	if item := failed[0].(map[string]any); item["index"] != float64(1) || item["key"] != "p2" {
		t.Fatalf("unexpected failure %v", item)
	}

	resp = do(t, "GET", ts.URL+"/collections/people/count", nil)
	if got := decodeJSON(t, resp.Body); got["count"] != float64(2) {
		t.Fatalf("expected count=2, got %v", got)
	}

	resp = do(t, "POST", ts.URL+"/collections/people/bulk-delete", map[string]any{"keys": []any{"p1", "p3", "missing"}})
	expectStatus(t, resp, 200)

	resp = do(t, "GET", ts.URL+"/collections/people/count", nil)
	if got := decodeJSON(t, resp.Body); got["count"] != float64(0) {
		t.Fatalf("expected count=0, got %v", got)
	}
}

func TestSchemaCRUD(t *testing.T) {
	ts, _ := setup(t)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "number"},
		},
		"required": []any{"name"},
	}

	expectStatus(t, do(t, "PUT", ts.URL+"/schemas/users", schema), 200)

	resp := do(t, "GET", ts.URL+"/schemas/users", nil)
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["type"] != "object" {
		t.Fatalf("expected type=object, got %v", got["type"])
	}

	resp = do(t, "GET", ts.URL+"/schemas", nil)
	if _, ok := decodeJSON(t, resp.Body)["users"]; !ok {
		t.Fatal("expected 'users' in schema list")
	}

	expectStatus(t, do(t, "DELETE", ts.URL+"/schemas/users", nil), 200)
	expectStatus(t, do(t, "GET", ts.URL+"/schemas/users", nil), 404)
	expectStatus(t, do(t, "DELETE", ts.URL+"/schemas/users", nil), 404)
}

func TestPutInvalidSchema(t *testing.T) {
	ts, _ := setup(t)
	expectStatus(t, do(t, "PUT", ts.URL+"/schemas/users", map[string]any{"type": "nonsense"}), 400)
}

func TestSchemaValidationOnPut(t *testing.T) {
	ts, s := setup(t)

	s.PutSchema("users", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	})

	expectStatus(t, do(t, "PUT", ts.URL+"/collections/users/items/u1", map[string]any{"name": "Alice"}), 200)
	expectStatus(t, do(t, "PUT", ts.URL+"/collections/users/items/u2", map[string]any{"age": 30}), 422)
	expectStatus(t, do(t, "PUT", ts.URL+"/collections/users/items/u3", map[string]any{"name": 123}), 422)

	// A partial update is checked after the merge.
	expectStatus(t, do(t, "PUT", ts.URL+"/collections/users/items/u1", map[string]any{"age": 30}), 200)
}

func TestCORS(t *testing.T) {
	s := store.NewMemoryStore()
	d, err := datastore.New(s)
	if err != nil {
		t.Fatal(err)
	}
	h := handler.CORS(handler.New(d, s), []string{"https://app.example.com"})

	req := httptest.NewRequest("OPTIONS", "/collections", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin, got %q", got)
	}
}
