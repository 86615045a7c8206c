package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/panjf2000/ants/v2"

	"github.com/idealad/adsplice/internal/cloud"
	"github.com/idealad/adsplice/internal/compose"
	"github.com/idealad/adsplice/internal/db"
	"github.com/idealad/adsplice/internal/events"
	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/playback"
	"github.com/idealad/adsplice/internal/session"
	"github.com/idealad/adsplice/internal/stitch"
	"github.com/idealad/adsplice/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	cfg    ServerConfig
	router *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := media.NewLocalStore(t.TempDir(), "http://localhost:8787")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	t.Cleanup(pool.Release)

	svc := stitch.NewService(stitch.ServiceConfig{
		Repository: stitch.NewRepository(database.Conn()),
		Logger:     logger,
	})
	hub := events.NewHub()
	sessions := session.NewManager(session.Config{
		Pool:             pool,
		Store:            store,
		Cloud:            cloud.NewStubClient(false, logger),
		Composer:         compose.NewRequester(svc, "", logger),
		Events:           hub,
		Logger:           logger,
		ProgressInterval: 5 * time.Millisecond,
	})
	t.Cleanup(sessions.Close)

	cfg := ServerConfig{
		Sessions:       sessions,
		Store:          store,
		PlaybackServer: playback.NewServer(store, logger),
		Stitch:         svc,
		Hub:            hub,
		Logger:         logger,
		StartTime:      time.Now(),
		AllowedOrigins: []string{"http://localhost:3000"},
		StorageType:    "local",
		CloudMode:      "stub",
	}
	return &testEnv{cfg: cfg, router: NewRouter(cfg)}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// newSession creates a session with ads A (10s) and B (15s) and a 65s main
// video cut into 30s windows.
func (e *testEnv) newSession(t *testing.T) *session.Session {
	t.Helper()
	s := e.cfg.Sessions.Create()
	s.AddAd(timeline.AdAsset{ID: "A", Name: "Promo A", URL: "http://localhost:8787/media/ads/a.mp4", DurationSeconds: 10})
	s.AddAd(timeline.AdAsset{ID: "B", Name: "Promo B", URL: "http://localhost:8787/media/ads/b.mp4", DurationSeconds: 15})
	s.SetMainVideo(session.MainVideo{Name: "match.mp4", URL: "http://localhost:8787/media/main/m.mp4", DurationSeconds: 65})
	return s
}

func multipartBody(t *testing.T, field string, files map[string]string, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON body: %v (%q)", err, rr.Body.String())
	}
	return body
}

func decodeSnapshot(t *testing.T, rr *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v (%q)", err, rr.Body.String())
	}
	return snap
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rr.Code, want, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	if got := decodeJSONBody(t, rr)["code"]; got != code {
		t.Fatalf("error code = %v, want %s", got, code)
	}
}
