package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/ioanna/internal/app"
	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/observe"
	audiomock "github.com/MrWong99/ioanna/pkg/audio/mock"
	memmock "github.com/MrWong99/ioanna/pkg/memory/mock"
	llmmock "github.com/MrWong99/ioanna/pkg/provider/llm/mock"
	nlpmock "github.com/MrWong99/ioanna/pkg/provider/nlp/mock"
	sentimentmock "github.com/MrWong99/ioanna/pkg/provider/sentiment/mock"
	sttmock "github.com/MrWong99/ioanna/pkg/provider/stt/mock"
	tonemock "github.com/MrWong99/ioanna/pkg/provider/tone/mock"
	ttsmock "github.com/MrWong99/ioanna/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/ioanna/pkg/provider/vad/mock"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	visionmock "github.com/MrWong99/ioanna/pkg/provider/vision/mock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Capture:  config.CaptureConfig{WorkDir: t.TempDir(), FrameInterval: 10 * time.Millisecond},
		Identity: config.IdentityConfig{PollInterval: 10 * time.Millisecond},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM:       &llmmock.Provider{},
		STT:       &sttmock.Provider{},
		TTS:       &ttsmock.Provider{},
		VAD:       &vadmock.Engine{},
		Camera:    &visionmock.Camera{},
		Face:      &visionmock.FaceAnalyzer{},
		Vision:    &visionmock.Classifier{},
		Tone:      &tonemock.Classifier{},
		Sentiment: &sentimentmock.Scorer{},
		NLP:       &nlpmock.Analyzer{},
		AudioIn:   &audiomock.Source{Loop: true},
		AudioOut:  &audiomock.Player{},
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, cfg *config.Config, store *memmock.Store, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithStore(store), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNew_MissingProviders(t *testing.T) {
	t.Parallel()

	p := testProviders()
	p.LLM = nil
	p.AudioOut = nil
	_, err := app.New(context.Background(), testConfig(t), p, app.WithStore(&memmock.Store{}))
	if err == nil {
		t.Fatal("New succeeded without an LLM")
	}
	for _, want := range []string{"llm", "audio_out"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %q", err, want)
		}
	}
}

func TestNew_RequiresStoreOrDSN(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(t), testProviders(), app.WithMetrics(testMetrics(t)))
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("New = %v, want postgres_dsn error", err)
	}
}

func TestRoutes_Idle(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t), &memmock.Store{})
	h := a.Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/frame", http.StatusServiceUnavailable},
		{http.MethodGet, "/v1/session", http.StatusNotFound},
		{http.MethodPost, "/v1/session/stop", http.StatusConflict},
		{http.MethodGet, "/v1/history", http.StatusOK},
		{http.MethodGet, "/mcp", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(t, h, tt.method, tt.path)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRoutes_HistoryEmptyList(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t), &memmock.Store{})
	rec := serve(t, a.Handler(), http.MethodGet, "/v1/history")

	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Messages == nil || len(body.Messages) != 0 {
		t.Errorf("messages = %v, want empty list", body.Messages)
	}
}

func TestRoutes_FrameAndReadiness(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t), &memmock.Store{})
	a.Frames().Store(vision.Frame{Image: []byte("png-bytes"), ContentType: "image/png", CapturedAt: time.Now()})

	rec := serve(t, a.Handler(), http.MethodGet, "/v1/frame")
	if rec.Code != http.StatusOK {
		t.Fatalf("frame status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if got := rec.Body.String(); got != "png-bytes" {
		t.Errorf("body = %q", got)
	}

	if rec := serve(t, a.Handler(), http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d (%s), want 200", rec.Code, rec.Body.String())
	}
}

func TestRoutes_ReadyzStoreDown(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t), &memmock.Store{PingErr: errors.New("connection refused")})
	a.Frames().Store(vision.Frame{Image: []byte("x"), CapturedAt: time.Now()})

	rec := serve(t, a.Handler(), http.MethodGet, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := body.Checks["profile_store"]; !strings.Contains(got, "connection refused") {
		t.Errorf("profile_store check = %q", got)
	}
	if got := body.Checks["camera"]; got != "ok" {
		t.Errorf("camera check = %q, want ok", got)
	}
}

func TestRoutes_MCPMounted(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MCP.Enabled = true
	a := newTestApp(t, cfg, &memmock.Store{})

	rec := serve(t, a.Handler(), http.MethodGet, cfg.MCP.Path)
	if rec.Code == http.StatusNotFound {
		t.Errorf("%s not mounted", cfg.MCP.Path)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	a := newTestApp(t, testConfig(t), &memmock.Store{}, app.WithLogLevel(&level))

	a.ApplyConfig(config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug})
	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want debug", got)
	}
	a.ApplyConfig(config.ConfigDiff{RestartRequired: true, RestartSections: []string{"providers"}})
	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level changed by an unrelated diff: %v", got)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestServe_RunsUntilCancelled(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t), &memmock.Store{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	waitFor(t, "camera frame", func() bool {
		_, ok := a.Frames().Latest()
		return ok
	})
	waitFor(t, "session", a.Sessions().IsActive)

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/session")
	if err != nil {
		t.Fatalf("GET /v1/session: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	var info app.SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SessionID == "" || info.State != "await_identity" {
		t.Errorf("info = %+v", info)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
