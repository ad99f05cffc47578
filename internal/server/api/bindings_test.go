package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/testdata"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// newTestPlugins discovers a single "keys" plugin offering "press".
func newTestPlugins(t *testing.T) *plugin.Manager {
	t.Helper()

	dir := t.TempDir()
	if _, _, err := testdata.WriteRecordingPlugin(dir, "keys", "press"); err != nil {
		t.Fatalf("failed to write plugin: %v", err)
	}
	m := plugin.NewManager(dir)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("failed to discover plugins: %v", err)
	}
	return m
}

func newTestBindingHandler(t *testing.T) (*BindingHandler, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	return NewBindingHandler(s, newTestPlugins(t), classifier.Vocabulary(testdata.Vocabulary)), s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBindingHandler_Create(t *testing.T) {
	h, s := newTestBindingHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/bindings", createBindingRequest{
		Sign:       "hello",
		PluginName: "keys",
		ActionName: "press",
		Config:     json.RawMessage(`{"key":"space"}`),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response bindingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID == "" {
		t.Error("expected non-empty ID in response")
	}
	if !response.Enabled {
		t.Error("expected new binding to be enabled")
	}

	stored, err := s.Bindings().GetBySign("hello")
	if err != nil {
		t.Fatalf("failed to get stored binding: %v", err)
	}
	if stored == nil || stored.ID != response.ID {
		t.Fatalf("stored binding = %+v, want ID %s", stored, response.ID)
	}
}

func TestBindingHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  createBindingRequest
		want int
	}{
		{"missing sign", createBindingRequest{PluginName: "keys", ActionName: "press"}, http.StatusBadRequest},
		{"missing plugin", createBindingRequest{Sign: "hello", ActionName: "press"}, http.StatusBadRequest},
		{"missing action", createBindingRequest{Sign: "hello", PluginName: "keys"}, http.StatusBadRequest},
		{"unknown sign", createBindingRequest{Sign: "goodbye", PluginName: "keys", ActionName: "press"}, http.StatusBadRequest},
		{"unknown plugin", createBindingRequest{Sign: "hello", PluginName: "mouse", ActionName: "press"}, http.StatusBadRequest},
		{"unknown action", createBindingRequest{Sign: "hello", PluginName: "keys", ActionName: "hold"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestBindingHandler(t)
			rec := doJSON(t, h, http.MethodPost, "/api/bindings", tt.req)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBindingHandler_Create_InvalidJSON(t *testing.T) {
	h, _ := newTestBindingHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bindings", bytes.NewReader([]byte("invalid json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestBindingHandler_Create_Duplicate(t *testing.T) {
	h, _ := newTestBindingHandler(t)
	body := createBindingRequest{Sign: "hello", PluginName: "keys", ActionName: "press"}

	if rec := doJSON(t, h, http.MethodPost, "/api/bindings", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected status %d, got %d", http.StatusCreated, rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/bindings", body); rec.Code != http.StatusConflict {
		t.Errorf("second create: expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestBindingHandler_ListGetUpdateDelete(t *testing.T) {
	h, s := newTestBindingHandler(t)

	b := &store.Binding{Sign: "thanks", PluginName: "keys", ActionName: "press", Enabled: true}
	if err := s.Bindings().Create(b); err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/bindings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var listed listBindingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed.Bindings) != 1 || listed.Bindings[0].Sign != "thanks" {
		t.Fatalf("list = %+v, want one binding for thanks", listed.Bindings)
	}
	if string(listed.Bindings[0].Config) != "{}" {
		t.Errorf("config = %s, want {}", listed.Bindings[0].Config)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/bindings/"+b.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected status %d, got %d", http.StatusOK, rec.Code)
	}

	disabled := false
	rec = doJSON(t, h, http.MethodPut, "/api/bindings/"+b.ID, updateBindingRequest{Sign: "please", Enabled: &disabled})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	updated, err := s.Bindings().GetByID(b.ID)
	if err != nil {
		t.Fatalf("failed to get updated binding: %v", err)
	}
	if updated.Sign != "please" || updated.Enabled {
		t.Errorf("updated = %+v, want sign please and disabled", updated)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/bindings/"+b.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/bindings/"+b.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBindingHandler_Update_Conflict(t *testing.T) {
	h, s := newTestBindingHandler(t)

	first := &store.Binding{Sign: "hello", PluginName: "keys", ActionName: "press", Enabled: true}
	second := &store.Binding{Sign: "thanks", PluginName: "keys", ActionName: "press", Enabled: true}
	for _, b := range []*store.Binding{first, second} {
		if err := s.Bindings().Create(b); err != nil {
			t.Fatalf("failed to create binding: %v", err)
		}
	}

	rec := doJSON(t, h, http.MethodPut, "/api/bindings/"+second.ID, updateBindingRequest{Sign: "hello"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestBindingHandler_NotFound(t *testing.T) {
	h, _ := newTestBindingHandler(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := doJSON(t, h, method, "/api/bindings/missing", updateBindingRequest{})
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", method, http.StatusNotFound, rec.Code)
		}
	}
}

func TestBindingHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestBindingHandler(t)

	rec := doJSON(t, h, http.MethodPatch, "/api/bindings", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
