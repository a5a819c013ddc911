// Package handler exposes the record store over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stevemurr/recordstore/datastore"
	"github.com/stevemurr/recordstore/query"
	"github.com/stevemurr/recordstore/schema"
	"github.com/stevemurr/recordstore/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	data       *datastore.Datastore
	store      store.Store
	primaryKey string
	log        *slog.Logger
	mux        *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithPrimaryKey sets the record field used as the key of every
// collection. Defaults to "id".
func WithPrimaryKey(field string) Option {
	return func(h *Handler) { h.primaryKey = field }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New creates a Handler and wires up all routes. Records go through d;
// schemas and the collection list are read from s, the backend under d.
func New(d *datastore.Datastore, s store.Store, opts ...Option) *Handler {
	h := &Handler{data: d, store: s, primaryKey: "id", log: slog.Default(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "http")
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("GET /collections", h.listCollections)
	h.mux.HandleFunc("GET /collections/{collection}/items", h.getAllItems)
	h.mux.HandleFunc("POST /collections/{collection}/items", h.createItem)
	h.mux.HandleFunc("GET /collections/{collection}/items/since/{timestamp}", h.getItemsSince)
	h.mux.HandleFunc("GET /collections/{collection}/items/{key}", h.getItem)
	h.mux.HandleFunc("PUT /collections/{collection}/items/{key}", h.upsertItem)
	h.mux.HandleFunc("DELETE /collections/{collection}/items/{key}", h.deleteItem)
	h.mux.HandleFunc("POST /collections/{collection}/search", h.search)
	h.mux.HandleFunc("GET /collections/{collection}/count", h.count)
	h.mux.HandleFunc("POST /collections/{collection}/bulk", h.bulkInsert)
	h.mux.HandleFunc("POST /collections/{collection}/bulk-delete", h.bulkDelete)

	h.mux.HandleFunc("GET /schemas", h.listSchemas)
	h.mux.HandleFunc("GET /schemas/{collection}", h.getSchema)
	h.mux.HandleFunc("PUT /schemas/{collection}", h.putSchema)
	h.mux.HandleFunc("DELETE /schemas/{collection}", h.deleteSchema)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps datastore errors onto HTTP status codes.
func statusFor(err error) int {
	var mqe *query.MalformedQueryError
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &mqe), errors.Is(err, datastore.ErrMissingKey):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func (h *Handler) model(r *http.Request) datastore.Model {
	return datastore.NewModel(r.PathValue("collection"), h.primaryKey)
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Record Store",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collections ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListCollections()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) getAllItems(w http.ResponseWriter, r *http.Request) {
	h.writeSearch(w, r, query.Search{Query: query.Tokens{}})
}

func (h *Handler) getItemsSince(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "updatedAt"
	}
	s := query.Build().DatesAfter(field, r.PathValue("timestamp"), false).Compile()
	h.writeSearch(w, r, s)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := query.ValidateJSON(raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := query.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid search: "+err.Error())
		return
	}
	result, err := h.data.Search(r.Context(), h.model(r), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeSearch(w http.ResponseWriter, r *http.Request, s query.Search) {
	result, err := h.data.Search(r.Context(), h.model(r), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Instances)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	n, err := h.data.Count(r.Context(), h.model(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// ---------- item CRUD ----------

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	doc, err := h.data.Retrieve(r.Context(), h.model(r), r.PathValue("key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) upsertItem(w http.ResponseWriter, r *http.Request) {
	var incoming map[string]any
	if err := readJSON(r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if incoming == nil {
		incoming = map[string]any{}
	}
	// The path names the record; a key in the body cannot move it.
	incoming[h.primaryKey] = r.PathValue("key")
	h.save(w, r, incoming, http.StatusOK)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var incoming map[string]any
	if err := readJSON(r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if incoming == nil {
		incoming = map[string]any{}
	}
	h.save(w, r, incoming, http.StatusCreated)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, record map[string]any, status int) {
	stored, err := h.data.Save(r.Context(), datastore.NewInstance(h.model(r), record))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, stored)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.data.Delete(r.Context(), h.model(r), key); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// ---------- bulk ----------

type itemFailure struct {
	Index  int    `json:"index"`
	Key    string `json:"key,omitempty"`
	Detail string `json:"detail"`
}

func (h *Handler) bulkInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []map[string]any `json:"items"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	model := h.model(r)
	instances := make([]datastore.Instance, len(req.Items))
	for i, item := range req.Items {
		instances[i] = datastore.NewInstance(model, item)
	}
	h.writeBulk(w, r, len(instances), h.data.BulkInsert(r.Context(), model, instances))
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []any `json:"keys"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.writeBulk(w, r, len(req.Keys), h.data.BulkDelete(r.Context(), h.model(r), req.Keys))
}

func (h *Handler) writeBulk(w http.ResponseWriter, r *http.Request, total int, err error) {
	var berr *datastore.BulkError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"total": total, "failed": []itemFailure{}})
	case errors.As(err, &berr):
		failed := make([]itemFailure, len(berr.Items))
		for i, item := range berr.Items {
			failed[i] = itemFailure{Index: item.Index, Key: item.Key, Detail: item.Err.Error()}
		}
		writeJSON(w, http.StatusMultiStatus, map[string]any{"total": total, "failed": failed})
	default:
		h.fail(w, r, err)
	}
}

// ---------- schema endpoints ----------

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.store.ListSchemas()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if schemas == nil {
		schemas = map[string]map[string]any{}
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	s, err := h.store.GetSchema(collection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for collection %q", collection))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var s map[string]any
	if err := readJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := schema.Check(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.PutSchema(collection, s); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	existed, err := h.store.DeleteSchema(collection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for collection %q", collection))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "collection": collection})
}
