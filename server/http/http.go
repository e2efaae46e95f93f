// Package http implements tagcache's JSON API front-end (spec §6.2, C7) on
// top of gorilla/mux, the router osakka-entitydb also standardizes on for
// its REST surface. Route shapes and field names follow
// original_source/src/main.rs's axum handlers (put_handler, get_handler,
// keys_by_tag_handler, invalidate_key_handler, invalidate_tag_handler,
// stats_handler); auth, search, bulk and RESTful routes are additions
// SPEC_FULL.md layers on top (spec §6.2 "Supplemental routes").
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/internal/auth"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server wires the cache engine, auth guard, and router together.
type Server struct {
	cache         *cache.Cache
	guard         *auth.Guard
	log           *zap.Logger
	allowedOrigin string
	router        *mux.Router
}

// New builds a Server. guard may be nil to disable authentication entirely
// (spec §6.2: auth is optional and config-gated).
func New(c *cache.Cache, guard *auth.Guard, allowedOrigin string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cache: c, guard: guard, log: log, allowedOrigin: allowedOrigin}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler so Server can be passed straight to
// http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/put", s.auth(s.handlePut)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/get/{key}", s.auth(s.handleGet)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/keys-by-tag", s.auth(s.handleKeysByTag)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/invalidate-key", s.auth(s.handleInvalidateKey)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/invalidate-tag", s.auth(s.handleInvalidateTag)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/invalidate-tags", s.auth(s.handleInvalidateTags)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/invalidate-keys", s.auth(s.handleInvalidateKeys)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/flush", s.auth(s.handleFlush)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/stats", s.auth(s.handleStats)).Methods(http.MethodGet, http.MethodOptions)

	// RESTful surface (spec §6.2 "Supplemental routes"). The literal
	// /keys/bulk/* routes must be registered before the /keys/{key} wildcard
	// — gorilla/mux matches in registration order, and the wildcard would
	// otherwise swallow "bulk" as a key.
	r.HandleFunc("/keys/bulk/get", s.auth(s.handleBulkGet)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/keys/bulk/delete", s.auth(s.handleBulkDelete)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/keys/{key}", s.auth(s.handleGet)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/keys/{key}", s.auth(s.handlePutKey)).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/keys/{key}", s.auth(s.handleDeleteKey)).Methods(http.MethodDelete, http.MethodOptions)
	r.HandleFunc("/keys", s.auth(s.handleListKeys)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/search", s.auth(s.handleSearch)).Methods(http.MethodPost, http.MethodOptions)

	// Auth endpoints exist only when a guard is configured. /auth/login needs
	// no prior credentials (it is how a client obtains the bearer token in the
	// first place); the rest require an already-authenticated caller.
	if s.guard != nil {
		r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/auth/rotate", s.auth(s.handleRotate)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/auth/change_password", s.auth(s.handleChangePassword)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/auth/reset", s.auth(s.handleResetPassword)).Methods(http.MethodPost, http.MethodOptions)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.allowedOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auth wraps h to require either HTTP Basic credentials or a bearer token
// (spec §6.2, §7 Unauthorized). A nil guard means auth is disabled and every
// request passes through unchecked.
func (s *Server) auth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.guard == nil {
			h(w, r)
			return
		}
		if ok := s.authenticate(r); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticate(r *http.Request) bool {
	if user, pass, ok := r.BasicAuth(); ok {
		return s.guard.CheckBasic(r.Context(), user, pass)
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return s.guard.CheckBearer(strings.TrimPrefix(h, prefix))
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// --- core endpoints (shape grounded on original_source main.rs) ---

type putRequest struct {
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Tags       []string `json:"tags"`
	TTLSeconds *int64   `json:"ttl_seconds"`
	TTLMillis  *int64   `json:"ttl_ms"`
}

type putResponse struct {
	OK    bool   `json:"ok"`
	TTLMs *int64 `json:"ttl_ms,omitempty"`
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var ttl time.Duration
	switch {
	case req.TTLMillis != nil:
		ttl = time.Duration(*req.TTLMillis) * time.Millisecond
	case req.TTLSeconds != nil:
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	tags := make([]cache.Tag, len(req.Tags))
	for i, t := range req.Tags {
		tags[i] = cache.Tag(t)
	}

	if err := s.cache.Put(cache.Key(req.Key), []byte(req.Value), tags, ttl); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := putResponse{OK: true}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		resp.TTLMs = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePutKey is the RESTful mirror of handlePut: the key comes from the
// path instead of the JSON body.
func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var ttl time.Duration
	switch {
	case req.TTLMillis != nil:
		ttl = time.Duration(*req.TTLMillis) * time.Millisecond
	case req.TTLSeconds != nil:
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	tags := make([]cache.Tag, len(req.Tags))
	for i, t := range req.Tags {
		tags[i] = cache.Tag(t)
	}

	if err := s.cache.Put(cache.Key(key), []byte(req.Value), tags, ttl); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := putResponse{OK: true}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		resp.TTLMs = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGet mirrors original_source's get_handler: a miss is reported with
// HTTP 200 and {"error":"not_found"}, not a 404, per spec §9's resolved
// Open Question.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, ok := s.cache.Get(cache.Key(key))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": string(v)})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ok := s.cache.InvalidateKey(cache.Key(key))
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleKeysByTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	limit := parseLimit(r, "limit")
	keys := s.cache.KeysByTag(cache.Tag(tag), limit)
	writeJSON(w, http.StatusOK, map[string]any{"keys": toStrings(keys)})
}

type invalidateKeyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleInvalidateKey(w http.ResponseWriter, r *http.Request) {
	var req invalidateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ok := s.cache.InvalidateKey(cache.Key(req.Key))
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

type invalidateTagRequest struct {
	Tag string `json:"tag"`
}

func (s *Server) handleInvalidateTag(w http.ResponseWriter, r *http.Request) {
	var req invalidateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	n := s.cache.InvalidateTag(cache.Tag(req.Tag))
	writeJSON(w, http.StatusOK, map[string]any{"success": n > 0, "count": n})
}

type invalidateTagsRequest struct {
	Tags []string `json:"tags"`
	Mode string   `json:"mode"` // "any" or "all"
}

func (s *Server) handleInvalidateTags(w http.ResponseWriter, r *http.Request) {
	var req invalidateTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	tags := make([]cache.Tag, len(req.Tags))
	for i, t := range req.Tags {
		tags[i] = cache.Tag(t)
	}
	mode := cache.TagAny
	if strings.EqualFold(req.Mode, "all") {
		mode = cache.TagAll
	}
	n := s.cache.InvalidateTags(tags, mode)
	writeJSON(w, http.StatusOK, map[string]any{"success": n > 0, "count": n})
}

type invalidateKeysRequest struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleInvalidateKeys(w http.ResponseWriter, r *http.Request) {
	var req invalidateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	keys := make([]cache.Key, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = cache.Key(k)
	}
	n := s.cache.InvalidateKeys(keys)
	writeJSON(w, http.StatusOK, map[string]any{"success": n > 0, "count": n})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n := s.cache.Flush()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Snapshot()
	shardItems, shardBytes := s.cache.ShardCounts()
	writeJSON(w, http.StatusOK, map[string]any{
		"hits":          st.Hits,
		"misses":        st.Misses,
		"puts":          st.Puts,
		"invalidations": st.Invalidations,
		"hit_ratio":     st.HitRatio(),
		"items":         s.cache.Len(),
		"tags":          s.cache.TagCount(),
		"shard_items":   shardItems,
		"shard_bytes":   shardBytes,
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, "limit")
	writeJSON(w, http.StatusOK, map[string]any{"keys": toHits(s.cache.List(limit))})
}

type searchRequest struct {
	Q      string   `json:"q"`
	TagAny []string `json:"tag_any"`
	TagAll []string `json:"tag_all"`
	Limit  int      `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	query := cache.SearchQuery{
		Prefix: req.Q,
		Limit:  req.Limit,
		TagAll: toTags(req.TagAll),
		TagAny: toTags(req.TagAny),
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": toHits(s.cache.Search(query))})
}

type bulkGetRequest struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleBulkGet(w http.ResponseWriter, r *http.Request) {
	var req bulkGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	keys := make([]cache.Key, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = cache.Key(k)
	}
	values := s.cache.BulkGet(keys)
	items := make(map[string]string, len(values))
	for k, v := range values {
		items[string(k)] = string(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req invalidateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	keys := make([]cache.Key, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = cache.Key(k)
	}
	n := s.cache.BulkDelete(keys)
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

// --- auth endpoints ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	token, ok := s.guard.Login(r.Context(), req.Username, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	h := r.Header.Get("Authorization")
	tok := strings.TrimPrefix(h, "Bearer ")
	newTok, ok := s.guard.Rotate(tok)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": newTok})
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.guard.ChangePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusInternalServerError, "hash_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	pw, err := s.guard.Reset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"password": pw})
}

// --- helpers ---

func parseLimit(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func toTags(in []string) []cache.Tag {
	out := make([]cache.Tag, len(in))
	for i, t := range in {
		out[i] = cache.Tag(t)
	}
	return out
}

func toStrings(keys []cache.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

type hitView struct {
	Key       string   `json:"key"`
	TTLMillis int64    `json:"ttl_ms"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"created_ms"`
}

func toHits(hits []cache.Hit) []hitView {
	out := make([]hitView, len(hits))
	for i, h := range hits {
		tags := make([]string, len(h.Tags))
		for j, t := range h.Tags {
			tags[j] = string(t)
		}
		out[i] = hitView{
			Key:       string(h.Key),
			TTLMillis: h.TTLMillis,
			Tags:      tags,
			CreatedAt: h.CreatedMillis,
		}
	}
	return out
}

// Shutdown context is accepted for symmetry with the daemon's graceful
// shutdown sequencing even though Server itself holds no listener state
// beyond the router (http.Server owns the socket).
func (s *Server) Shutdown(_ context.Context) error { return nil }
