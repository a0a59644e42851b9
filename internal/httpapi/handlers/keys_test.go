package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
)

// decodeSetCookie undoes the query-escaping gin applies in SetCookie,
// the way a browser round trip through c.Cookie would.
func decodeSetCookie(t *testing.T, value string) keys.Set {
	t.Helper()
	raw, err := url.QueryUnescape(value)
	if err != nil {
		t.Fatalf("unescape cookie: %v", err)
	}
	set, err := keys.Decode(raw)
	if err != nil {
		t.Fatalf("decode cookie: %v", err)
	}
	return set
}

func newKeysRouter() (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	h := &Handler{}
	r := gin.New()
	r.PUT("/keys", h.SetKeys)
	r.GET("/keys", h.GetKeys)
	r.POST("/keys/export", h.ExportKeys)
	r.POST("/keys/import", h.ImportKeys)
	return r, h
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, w.Body.String())
	}
	return env
}

func keyCookie(t *testing.T, set keys.Set) *http.Cookie {
	t.Helper()
	encoded, err := keys.Encode(set)
	if err != nil {
		t.Fatalf("encode keys: %v", err)
	}
	return &http.Cookie{Name: keys.CookieName, Value: encoded}
}

func TestSetKeys_StoresCookieAndMasks(t *testing.T) {
	r, _ := newKeysRouter()

	req := httptest.NewRequest(http.MethodPut, "/keys", strings.NewReader(`{"openai":"sk-abcdef","ollama":""}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	env := decodeEnvelope(t, w)
	if env.Code != 0 {
		t.Fatalf("expected success, got %d: %s", env.Code, env.Message)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == keys.CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatalf("expected key cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Fatalf("key cookie must be http-only")
	}
	if strings.Contains(cookie.Value, "sk-abcdef") {
		t.Fatalf("cookie must not carry the raw key in clear")
	}

	set := decodeSetCookie(t, cookie.Value)
	if set.Get("openai") != "sk-abcdef" {
		t.Fatalf("cookie round trip lost the key")
	}
	if set.Has("ollama") {
		t.Fatalf("empty keys must be dropped")
	}

	var data struct {
		Keys map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Keys["openai"] != "...cdef" {
		t.Fatalf("response must mask the key, got %q", data.Keys["openai"])
	}
}

func TestSetKeys_AcceptsBraveToken(t *testing.T) {
	r, _ := newKeysRouter()

	req := httptest.NewRequest(http.MethodPut, "/keys", strings.NewReader(`{"brave":"bs-token"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if env := decodeEnvelope(t, w); env.Code != 0 {
		t.Fatalf("brave token must be storable, got %d: %s", env.Code, env.Message)
	}
}

func TestSetKeys_UnknownProvider(t *testing.T) {
	r, _ := newKeysRouter()

	req := httptest.NewRequest(http.MethodPut, "/keys", strings.NewReader(`{"nonsense":"x"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetKeys_Masked(t *testing.T) {
	r, _ := newKeysRouter()

	req := httptest.NewRequest(http.MethodGet, "/keys", nil)
	req.AddCookie(keyCookie(t, keys.Set{"anthropic": "ant-secret99"}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	env := decodeEnvelope(t, w)
	var data struct {
		Keys map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Keys["anthropic"] != "...et99" {
		t.Fatalf("unexpected mask %q", data.Keys["anthropic"])
	}
	if strings.Contains(w.Body.String(), "ant-secret99") {
		t.Fatalf("raw key leaked in response")
	}
}

func TestExportImport_ThroughHandlers(t *testing.T) {
	r, _ := newKeysRouter()

	// Export with keys in the cookie.
	req := httptest.NewRequest(http.MethodPost, "/keys/export", nil)
	req.AddCookie(keyCookie(t, keys.Set{"openai": "sk-move-me"}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	env := decodeEnvelope(t, w)
	if env.Code != 0 {
		t.Fatalf("export failed: %s", env.Message)
	}
	var exported struct {
		Payload string `json:"payload"`
		Key     string `json:"key"`
	}
	if err := json.Unmarshal(env.Data, &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if strings.Contains(exported.Payload, "sk-move-me") {
		t.Fatalf("payload must be opaque")
	}

	// Import on a "fresh browser" without any cookie.
	body, _ := json.Marshal(map[string]string{"payload": exported.Payload, "key": exported.Key})
	req = httptest.NewRequest(http.MethodPost, "/keys/import", strings.NewReader(string(body)))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	env = decodeEnvelope(t, w)
	if env.Code != 0 {
		t.Fatalf("import failed: %s", env.Message)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == keys.CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatalf("import must install the cookie")
	}
	set := decodeSetCookie(t, cookie.Value)
	if set.Get("openai") != "sk-move-me" {
		t.Fatalf("imported set lost the key")
	}
}

func TestExportKeys_EmptySetRejected(t *testing.T) {
	r, _ := newKeysRouter()

	req := httptest.NewRequest(http.MethodPost, "/keys/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty export, got %d", w.Code)
	}
}

func TestImportKeys_WrongKey(t *testing.T) {
	r, _ := newKeysRouter()

	payload, _, err := keys.Export(keys.Set{"openai": "sk-x"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	_, wrongKey, err := keys.Export(keys.Set{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"payload": payload, "key": wrongKey})
	req := httptest.NewRequest(http.MethodPost, "/keys/import", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong key, got %d", w.Code)
	}
}
