package server

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"net/http"
	"reflect"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tailored-agentic-units/tabula/query"
	"github.com/tailored-agentic-units/tabula/store"
	"github.com/tailored-agentic-units/tabula/transform"
)

// DatasetInfo describes one dataset in GET /datasets.
type DatasetInfo struct {
	Key      string     `json:"key"`
	Loaded   bool       `json:"loaded"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
	Loading  bool       `json:"loading"`
	Rows     int        `json:"rows"`
}

// DatasetResponse is the body of GET /datasets/{key}.
type DatasetResponse struct {
	Key      string          `json:"key"`
	LoadedAt time.Time       `json:"loaded_at"`
	Options  map[string]any  `json:"options,omitempty"`
	Rows     []transform.Row `json:"rows"`
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	Keys query.Keys `json:"keys"`
	store.LoadOptions
}

// LoadResponse is the body of a successful POST /load.
type LoadResponse struct {
	ID   string   `json:"id"`
	Keys []string `json:"keys"`
}

// QueryRequest is the body of POST /query and of the Connect procedure.
// The keys in From are loaded before the query runs.
type QueryRequest struct {
	query.Spec
	Series *query.Mapping `json:"series,omitempty"`
}

// QueryResponse carries the filtered rows and their series grouping.
type QueryResponse struct {
	Values []transform.Row `json:"values"`
	Series []query.Series  `json:"series"`
}

// LoadErrorInfo is one entry of GET /errors.
type LoadErrorInfo struct {
	ID    string    `json:"id"`
	Keys  []string  `json:"keys"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"outstanding": s.store.Outstanding(),
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	entries := s.store.All()

	keys := slices.Collect(maps.Keys(entries))
	if s.lister != nil {
		listed, err := s.lister.List(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		keys = append(keys, listed...)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	out := make([]DatasetInfo, 0, len(keys))
	for _, key := range keys {
		info := DatasetInfo{Key: key}
		if e, ok := entries[key]; ok {
			info.Loaded = e.Meta.IsLoaded()
			info.Loading = e.Meta.Loading != nil
			info.Rows = len(e.Values)
			if info.Loaded {
				at := e.Meta.Loaded
				info.LoadedAt = &at
			}
		}
		out = append(out, info)
	}

	respondJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		respondError(w, r, fmt.Errorf("%w: missing dataset key", ErrBadRequest))
		return
	}

	if err := s.store.Load(r.Context(), []string{key}, nil).Wait(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}

	entry := s.store.Data(key)
	rows := entry.Values
	if r.URL.Query().Get("raw") == "true" {
		rows = entry.Raw
	}

	respondJSON(w, http.StatusOK, DatasetResponse{
		Key:      key,
		LoadedAt: entry.Meta.Loaded,
		Options:  sanitizeMap(entry.Meta.Options),
		Rows:     sanitizeRows(rows),
	})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	logged := s.store.Errors()
	out := make([]LoadErrorInfo, len(logged))
	for i, e := range logged {
		out[i] = LoadErrorInfo{ID: e.ID, Keys: e.Keys, Error: e.Err.Error(), At: e.At}
	}
	respondJSON(w, http.StatusOK, map[string]any{"errors": out})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if len(req.Keys) == 0 {
		respondError(w, r, fmt.Errorf("%w: keys is required", ErrBadRequest))
		return
	}

	l := s.store.Load(r.Context(), req.Keys, &req.LoadOptions)
	if err := l.Wait(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, LoadResponse{ID: l.ID(), Keys: l.Keys()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	resp, err := s.runQuery(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// runQuery loads the requested keys, evaluates the query, and groups the
// result. Shared by the JSON route and the Connect procedure.
func (s *Server) runQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if len(req.From) == 0 {
		return nil, fmt.Errorf("%w: from is required", ErrBadRequest)
	}

	opts := []query.Option{query.WithObserver(s.observer)}
	if req.Series != nil {
		opts = append(opts, query.WithMapping(*req.Series))
	}

	q, err := query.New(s.store, req.Spec, opts...)
	if err != nil {
		return nil, err
	}
	defer q.Dispose()

	if err := q.Load(ctx, nil).Wait(ctx); err != nil {
		return nil, err
	}

	values, err := q.Values(ctx)
	if err != nil {
		return nil, err
	}

	series := query.Group(values, q.Mapping())
	for i := range series {
		series[i].Values = sanitizeRows(series[i].Values)
	}

	return &QueryResponse{Values: sanitizeRows(values), Series: series}, nil
}

// sanitizeRows replaces values JSON cannot encode (NaN and infinities
// produced by numeric casts) with null and drops functions.
func sanitizeRows(rows []transform.Row) []transform.Row {
	out := make([]transform.Row, len(rows))
	for i, row := range rows {
		out[i] = transform.Row(sanitizeMap(row))
	}
	return out
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = nil
			continue
		}
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		out[k] = v
	}
	return out
}
