package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/testdata"
)

// newTestApp runs an App over mock devices that recognizes "thanks".
func newTestApp(t *testing.T) *app.App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	cfg := config.Default()
	cfg.FramesPerPrediction = 3
	cfg.WindowCapacity = 3
	cfg.FPS = 100
	cfg.PluginDir = filepath.Join(dir, "plugins")
	if _, _, err := testdata.WriteRecordingPlugin(cfg.PluginDir, "keys", "press"); err != nil {
		t.Fatalf("write plugin: %v", err)
	}

	frames := testdata.Frames(2, 32, 24)
	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})

	a, err := app.New(ctx, app.Deps{
		Config:     cfg,
		Store:      st,
		Camera:     capture.NewMockCamera(frames, true),
		Detector:   det,
		Classifier: classifier.NewMockClassifier(0.1, 0.8, 0.1),
		Vocabulary: classifier.Vocabulary(testdata.Vocabulary),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := a.DiscoverPlugins(ctx); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close(context.Background())
		st.Close()
		testdata.CloseAll(frames)
	})
	return a
}

func getJSON(t *testing.T, client *http.Client, url string, v any) int {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		json.NewDecoder(resp.Body).Decode(v)
	}
	return resp.StatusCode
}

func putJSON(t *testing.T, client *http.Client, url, body string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, url, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT %s error = %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAPI_RecognitionWorkflow(t *testing.T) {
	a := newTestApp(t)
	srv := New(Config{App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.events.Close()

	client := ts.Client()

	// 1. Vocabulary is exposed.
	var vocab struct {
		Signs []string `json:"signs"`
	}
	if code := getJSON(t, client, ts.URL+"/api/vocabulary", &vocab); code != http.StatusOK {
		t.Fatalf("GET /api/vocabulary status = %d", code)
	}
	if len(vocab.Signs) != len(testdata.Vocabulary) {
		t.Errorf("signs = %v, want %v", vocab.Signs, testdata.Vocabulary)
	}

	// 2. Bind "thanks" to the plugin.
	body := `{"sign":"thanks","plugin":"keys","action":"press"}`
	resp, err := client.Post(ts.URL+"/api/bindings", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/bindings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/bindings status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	// 3. Subscribe to events, then enable recognition.
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	if code := putJSON(t, client, ts.URL+"/api/enabled", `{"enabled":true}`); code != http.StatusOK {
		t.Fatalf("PUT /api/enabled status = %d", code)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev signEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Label != "thanks" {
		t.Errorf("event label = %q, want thanks", ev.Label)
	}

	// 4. Health reports the session and the last sign.
	var health healthResponse
	if code := getJSON(t, client, ts.URL+"/api/health", &health); code != http.StatusOK {
		t.Fatalf("GET /api/health status = %d", code)
	}
	if !health.Enabled || health.SessionID == "" {
		t.Errorf("health = %+v, want enabled with a session", health)
	}
	if health.LastSign == nil || health.LastSign.Label != "thanks" {
		t.Errorf("last sign = %+v, want thanks", health.LastSign)
	}

	// 5. Recognitions are recorded for the session.
	var history struct {
		Recognitions []struct {
			Label     string `json:"label"`
			SessionID string `json:"session_id"`
		} `json:"recognitions"`
	}
	if code := getJSON(t, client, ts.URL+"/api/recognitions?session="+health.SessionID, &history); code != http.StatusOK {
		t.Fatalf("GET /api/recognitions status = %d", code)
	}
	if len(history.Recognitions) == 0 || history.Recognitions[0].Label != "thanks" {
		t.Errorf("history = %+v, want thanks first", history.Recognitions)
	}

	// 6. Disable again.
	if code := putJSON(t, client, ts.URL+"/api/enabled", `{"enabled":false}`); code != http.StatusOK {
		t.Fatalf("PUT /api/enabled status = %d", code)
	}
	var enabled enabledResponse
	getJSON(t, client, ts.URL+"/api/enabled", &enabled)
	if enabled.Enabled {
		t.Error("expected recognition to be disabled")
	}
}

func TestAPI_EnabledBadRequest(t *testing.T) {
	a := newTestApp(t)
	srv := New(Config{App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.events.Close()

	for _, body := range []string{"nope", `{}`} {
		if code := putJSON(t, ts.Client(), ts.URL+"/api/enabled", body); code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, code, http.StatusBadRequest)
		}
	}
}

func TestAPI_BindingRejectsUnknownPlugin(t *testing.T) {
	a := newTestApp(t)
	srv := New(Config{App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.events.Close()

	body := `{"sign":"thanks","plugin":"missing","action":"press"}`
	resp, err := ts.Client().Post(ts.URL+"/api/bindings", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/bindings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	if code := getJSON(t, ts.Client(), ts.URL+"/api/health", &health); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
