package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Sessions.Create()

	rr := env.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, rr, http.StatusOK)

	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["sessions"] != float64(1) {
		t.Errorf("sessions = %v, want 1", body["sessions"])
	}
	if body["cloud"] != "stub" || body["storage"] != "local" {
		t.Errorf("unexpected modes: %v", body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/sessions", nil)
	expectStatus(t, rr, http.StatusCreated)
	snap := decodeSnapshot(t, rr)
	if snap.ID == "" {
		t.Fatal("session id missing")
	}
	if snap.Segments == nil || snap.Ads == nil {
		t.Fatal("empty collections should encode as arrays")
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/sessions/"+snap.ID, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/sessions/"+snap.ID, nil), http.StatusNoContent)
	expectErrorCode(t, env.do(t, http.MethodGet, "/api/sessions/"+snap.ID, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	expectErrorCode(t, env.do(t, http.MethodGet, "/nope", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestTimelineEditing(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	snap := decodeSnapshot(t, env.do(t, http.MethodGet, base, nil))
	want := []string{"ad:A", "ad:B", "win:0-30", "win:30-60", "win:60-65"}
	if got := segmentIDs(snap); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("segments = %v, want %v", got, want)
	}

	rr := env.do(t, http.MethodPost, base+"/segments/win:30-60/toggle", nil)
	expectStatus(t, rr, http.StatusOK)
	if seq := decodeSnapshot(t, rr).Sequence; len(seq) != 1 || seq[0] != "win:30-60" {
		t.Fatalf("sequence = %v", seq)
	}

	rr = env.do(t, http.MethodPost, base+"/segments/win:30-60/move", map[string]int{"target": 0})
	expectStatus(t, rr, http.StatusOK)
	if got := segmentIDs(decodeSnapshot(t, rr))[0]; got != "win:30-60" {
		t.Fatalf("first segment = %s, want win:30-60", got)
	}

	expectErrorCode(t, env.do(t, http.MethodPost, base+"/segments/win:30-60/move", map[string]int{}), http.StatusBadRequest, "BAD_REQUEST")
	expectErrorCode(t, env.do(t, http.MethodPost, base+"/segments/missing/toggle", nil), http.StatusNotFound, "NOT_FOUND")

	rr = env.do(t, http.MethodPut, base+"/window", map[string]float64{"seconds": 20})
	expectStatus(t, rr, http.StatusOK)
	if n := len(decodeSnapshot(t, rr).Segments); n != 2+4 {
		t.Fatalf("segments after window change = %d, want 6", n)
	}
	expectErrorCode(t, env.do(t, http.MethodPut, base+"/window", map[string]float64{"seconds": 0}), http.StatusBadRequest, "BAD_REQUEST")
}

func TestWindowAndDurationLimits(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	expectErrorCode(t, env.do(t, http.MethodPut, base+"/window", map[string]float64{"seconds": 0.0001}), http.StatusBadRequest, "BAD_REQUEST")
	expectErrorCode(t, env.do(t, http.MethodPatch, base+"/video", map[string]float64{"duration_seconds": 1e12}), http.StatusBadRequest, "BAD_REQUEST")
	expectErrorCode(t, env.do(t, http.MethodPatch, base+"/ads/A", map[string]float64{"duration_seconds": 1e12}), http.StatusBadRequest, "BAD_REQUEST")

	expectStatus(t, env.do(t, http.MethodPut, base+"/window", map[string]float64{"seconds": 1}), http.StatusOK)
	expectErrorCode(t, env.do(t, http.MethodPatch, base+"/video", map[string]float64{"duration_seconds": 20000}), http.StatusBadRequest, "BAD_REQUEST")

	snap := decodeSnapshot(t, env.do(t, http.MethodGet, base, nil))
	if n := len(snap.Segments); n != 2+65 {
		t.Fatalf("segments = %d, want 67", n)
	}
	if snap.MainVideo == nil || snap.MainVideo.DurationSeconds != 65 {
		t.Fatalf("main video = %+v, want duration 65", snap.MainVideo)
	}
}

func TestDurationsAndAdRemoval(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	expectStatus(t, env.do(t, http.MethodPatch, base+"/ads/A", map[string]float64{"duration_seconds": 7}), http.StatusOK)
	expectErrorCode(t, env.do(t, http.MethodPatch, base+"/ads/Z", map[string]float64{"duration_seconds": 7}), http.StatusNotFound, "NOT_FOUND")
	expectStatus(t, env.do(t, http.MethodPatch, base+"/video", map[string]float64{"duration_seconds": 90}), http.StatusOK)

	rr := env.do(t, http.MethodDelete, base+"/ads/A", nil)
	expectStatus(t, rr, http.StatusOK)
	snap := decodeSnapshot(t, rr)
	if len(snap.Ads) != 1 || snap.Ads[0].ID != "B" {
		t.Fatalf("ads after removal = %+v", snap.Ads)
	}

	rr = env.do(t, http.MethodDelete, base+"/ads", nil)
	expectStatus(t, rr, http.StatusOK)
	if len(decodeSnapshot(t, rr).Ads) != 0 {
		t.Fatal("ads should be empty")
	}

	expectErrorCode(t, env.do(t, http.MethodPatch, base+"/video", "bad"), http.StatusBadRequest, "BAD_REQUEST")
}

func TestScoreHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	rr := env.do(t, http.MethodPost, base+"/segments/ad:A/score", map[string]int{"segment_index": 2})
	expectStatus(t, rr, http.StatusOK)
	conf, ok := decodeJSONBody(t, rr)["confidence"].(float64)
	if !ok || conf < 0 || conf > 100 {
		t.Fatalf("confidence = %v", conf)
	}

	expectErrorCode(t, env.do(t, http.MethodPost, base+"/segments/win:0-30/score", nil), http.StatusBadRequest, "BAD_REQUEST")
}

func TestComposeHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	expectErrorCode(t, env.do(t, http.MethodPost, base+"/compose", nil), http.StatusConflict, "NOTHING_SELECTED")

	env.do(t, http.MethodPost, base+"/segments/ad:A/toggle", nil)
	env.do(t, http.MethodPost, base+"/segments/win:30-60/toggle", nil)

	rr := env.do(t, http.MethodPost, base+"/compose", nil)
	expectStatus(t, rr, http.StatusOK)
	body := decodeJSONBody(t, rr)
	id, _ := body["composition_id"].(string)
	if !strings.HasPrefix(id, "stitched_") {
		t.Fatalf("composition_id = %q", id)
	}
	if body["is_fallback"] != false {
		t.Fatalf("is_fallback = %v", body["is_fallback"])
	}
	if body["total_duration_seconds"] != float64(40) {
		t.Fatalf("total_duration_seconds = %v, want 40", body["total_duration_seconds"])
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/stitched-videos/"+id, nil), http.StatusOK)
}

func TestResetHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	rr := env.do(t, http.MethodPost, "/api/sessions/"+s.ID()+"/reset", nil)
	expectStatus(t, rr, http.StatusOK)
	snap := decodeSnapshot(t, rr)
	if len(snap.Segments) != 0 || len(snap.Ads) != 0 || snap.MainVideo != nil {
		t.Fatalf("reset left state behind: %+v", snap)
	}
}

func TestExportEDLHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	base := "/api/sessions/" + s.ID()

	expectErrorCode(t, env.do(t, http.MethodGet, base+"/export.edl", nil), http.StatusConflict, "NOTHING_SELECTED")

	env.do(t, http.MethodPost, base+"/segments/win:30-60/toggle", nil)
	env.do(t, http.MethodPost, base+"/segments/ad:B/toggle", nil)

	rr := env.do(t, http.MethodGet, base+"/export.edl?title=Summer+Cut", nil)
	expectStatus(t, rr, http.StatusOK)

	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="Summer_Cut.edl"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	edl := rr.Body.String()
	for _, want := range []string{
		"TITLE: Summer Cut",
		"001  AD       V     C        00:00:00:00 00:00:15:00 00:00:00:00 00:00:15:00",
		"002  MAIN     V     C        00:00:30:00 00:01:00:00 00:00:15:00 00:00:45:00",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}

	expectErrorCode(t, env.do(t, http.MethodGet, base+"/export.edl?fps=abc", nil), http.StatusBadRequest, "BAD_REQUEST")
}

func TestUploadAdsHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.cfg.Sessions.Create()

	body, ct := multipartBody(t, "files", map[string]string{"one.mp4": "1111", "two.mp4": "2222"}, "video/mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID()+"/ads", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusAccepted)

	items, _ := decodeJSONBody(t, rr)["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Snapshot().Ads) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ads never joined the library: %+v", s.Snapshot().Uploads)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ad := s.Snapshot().Ads[0]
	media := env.do(t, http.MethodGet, strings.TrimPrefix(ad.URL, "http://localhost:8787"), nil)
	expectStatus(t, media, http.StatusOK)
}

func TestUploadRejectsNonVideo(t *testing.T) {
	env := newTestEnv(t)
	s := env.cfg.Sessions.Create()

	body, ct := multipartBody(t, "files", map[string]string{"notes.txt": "hello"}, "text/plain")
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID()+"/ads", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA")
}

func TestUploadVideoHandler(t *testing.T) {
	env := newTestEnv(t)
	s := env.cfg.Sessions.Create()

	body, ct := multipartBody(t, "file", map[string]string{"match.webm": "vvvv"}, "video/webm")
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID()+"/video", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusAccepted)

	main := s.Snapshot().MainVideo
	if main == nil || main.Name != "match.webm" {
		t.Fatalf("main video = %+v", main)
	}

	empty := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID()+"/video", bytes.NewReader(nil))
	empty.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, empty)
	expectErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}

func segmentIDs(snap SessionResponse) []string {
	out := make([]string, len(snap.Segments))
	for i, s := range snap.Segments {
		out[i] = s.ID
	}
	return out
}
