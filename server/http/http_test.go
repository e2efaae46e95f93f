package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/internal/auth"
)

func newTestServer(t *testing.T, guard *auth.Guard) *Server {
	t.Helper()
	return New(cache.New(cache.Options{Shards: 4}), guard, "*", nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestServer(t, nil)

	putRec := doJSON(t, s, http.MethodPost, "/put", putRequest{
		Key: "k1", Value: "v1", Tags: []string{"a", "b"},
	})
	if putRec.Code != http.StatusOK {
		t.Fatalf("/put status = %d, body=%s", putRec.Code, putRec.Body.String())
	}

	getRec := doJSON(t, s, http.MethodGet, "/get/k1", nil)
	var got map[string]string
	if err := json.NewDecoder(getRec.Body).Decode(&got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if got["value"] != "v1" {
		t.Fatalf("/get/k1 value = %q, want v1", got["value"])
	}
}

// handleGet must report a miss as HTTP 200 with {"error":"not_found"}, not a
// 404 — this mirrors original_source's get_handler.
func TestGet_MissReturns200WithErrorBody(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/get/nope", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("miss status = %d, want 200", rec.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["error"] != "not_found" {
		t.Fatalf("miss body = %+v, want error=not_found", got)
	}
}

func TestPutKey_RESTfulRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPut, "/keys/k2", putRequest{Value: "v2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /keys/k2 status = %d", rec.Code)
	}
	getRec := doJSON(t, s, http.MethodGet, "/keys/k2", nil)
	got := decode[map[string]string](t, getRec)
	if got["value"] != "v2" {
		t.Fatalf("GET /keys/k2 value = %q, want v2", got["value"])
	}
}

func TestInvalidateTag(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k1", Value: "v1", Tags: []string{"hot"}})
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k2", Value: "v2", Tags: []string{"hot"}})

	rec := doJSON(t, s, http.MethodPost, "/invalidate-tag", invalidateTagRequest{Tag: "hot"})
	resp := decode[map[string]any](t, rec)
	if count, _ := resp["count"].(float64); count != 2 {
		t.Fatalf("invalidate-tag count = %v, want 2", resp["count"])
	}

	getRec := doJSON(t, s, http.MethodGet, "/get/k1", nil)
	got := decode[map[string]string](t, getRec)
	if got["error"] != "not_found" {
		t.Fatalf("k1 must be gone after tag invalidation, got %+v", got)
	}
}

func TestSearch_TagAll(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "user:1", Value: "a", Tags: []string{"x", "y"}})
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "user:2", Value: "b", Tags: []string{"x"}})

	rec := doJSON(t, s, http.MethodPost, "/search", searchRequest{TagAll: []string{"x", "y"}})
	resp := decode[map[string]any](t, rec)
	keys, _ := resp["keys"].([]any)
	if len(keys) != 1 {
		t.Fatalf("search tag_all=[x,y] keys = %v, want 1 match", keys)
	}
	first, _ := keys[0].(map[string]any)
	if first["key"] != "user:1" {
		t.Fatalf("search match = %v, want user:1", first)
	}
	if _, ok := first["created_ms"]; !ok {
		t.Fatalf("search result must carry created_ms, got %v", first)
	}
}

func TestSearch_Prefix(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "user:1", Value: "a"})
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "other:1", Value: "b"})

	rec := doJSON(t, s, http.MethodPost, "/search", searchRequest{Q: "user:"})
	resp := decode[map[string]any](t, rec)
	keys, _ := resp["keys"].([]any)
	if len(keys) != 1 {
		t.Fatalf("search q=user: keys = %v, want 1 match", keys)
	}
}

func TestBulkGet_SkipsExpiredAndMissing(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k1", Value: "v1", TTLMillis: int64Ptr(10)})
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k2", Value: "v2"})
	time.Sleep(50 * time.Millisecond)

	rec := doJSON(t, s, http.MethodPost, "/keys/bulk/get", bulkGetRequest{Keys: []string{"k1", "k2", "k3"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /keys/bulk/get status = %d, body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]any](t, rec)
	items, _ := resp["items"].(map[string]any)
	if len(items) != 1 {
		t.Fatalf("bulk get items = %v, want exactly k2", items)
	}
	if _, ok := items["k2"]; !ok {
		t.Fatalf("bulk get items must contain k2, got %v", items)
	}
}

func TestBulkDelete(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k1", Value: "v1"})

	rec := doJSON(t, s, http.MethodPost, "/keys/bulk/delete", invalidateKeysRequest{Keys: []string{"k1", "missing"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /keys/bulk/delete status = %d, body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]any](t, rec)
	if count, _ := resp["count"].(float64); count != 1 {
		t.Fatalf("bulk delete count = %v, want 1", resp["count"])
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestAuth_RequiresCredentialsWhenGuardConfigured(t *testing.T) {
	guard, err := auth.New("admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	s := newTestServer(t, guard)

	rec := doJSON(t, s, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("/stats without credentials = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.SetBasicAuth("admin", "secret")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("/stats with valid basic auth = %d, want 200", rec2.Code)
	}
}

func TestAuth_LoginIssuesUsableBearerToken(t *testing.T) {
	guard, err := auth.New("admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	s := newTestServer(t, guard)

	loginRec := doJSON(t, s, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "secret"})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("/auth/login status = %d, body=%s", loginRec.Code, loginRec.Body.String())
	}
	tok := decode[map[string]string](t, loginRec)["token"]
	if tok == "" {
		t.Fatalf("/auth/login must return a non-empty token")
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/stats with bearer token = %d, want 200", rec.Code)
	}
}

func TestStats_ReportsInventoryAndResetsAfterFlush(t *testing.T) {
	s := newTestServer(t, nil)
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k1", Value: "v1", Tags: []string{"a"}})
	doJSON(t, s, http.MethodPost, "/put", putRequest{Key: "k2", Value: "v2", Tags: []string{"b"}})

	statsRec := doJSON(t, s, http.MethodGet, "/stats", nil)
	stats := decode[map[string]any](t, statsRec)
	if items, _ := stats["items"].(float64); items != 2 {
		t.Fatalf("/stats items = %v, want 2", stats["items"])
	}
	if tags, _ := stats["tags"].(float64); tags != 2 {
		t.Fatalf("/stats tags = %v, want 2", stats["tags"])
	}
	if _, ok := stats["shard_items"].([]any); !ok {
		t.Fatalf("/stats must report a shard_items array, got %v", stats["shard_items"])
	}
	if _, ok := stats["shard_bytes"].([]any); !ok {
		t.Fatalf("/stats must report a shard_bytes array, got %v", stats["shard_bytes"])
	}

	flushRec := doJSON(t, s, http.MethodPost, "/flush", nil)
	flushResp := decode[map[string]any](t, flushRec)
	if count, _ := flushResp["count"].(float64); count != 2 {
		t.Fatalf("/flush count = %v, want 2", flushResp["count"])
	}

	statsRec2 := doJSON(t, s, http.MethodGet, "/stats", nil)
	stats2 := decode[map[string]any](t, statsRec2)
	if items, _ := stats2["items"].(float64); items != 0 {
		t.Fatalf("/stats items after flush = %v, want 0", stats2["items"])
	}
	if tags, _ := stats2["tags"].(float64); tags != 0 {
		t.Fatalf("/stats tags after flush = %v, want 0", stats2["tags"])
	}
}

func TestCORS_PreflightAndHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/stats", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing/incorrect CORS origin header: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
