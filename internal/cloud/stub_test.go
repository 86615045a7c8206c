package cloud

import (
	"context"
	"strings"
	"testing"
)

func TestStubClient_Upload(t *testing.T) {
	c := NewStubClient(false, testLogger())

	res, err := c.Upload(context.Background(), UploadRequest{Filename: "a.mp4", Body: strings.NewReader("data")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.MediaID(), "stub_") {
		t.Errorf("media id = %q", res.MediaID())
	}
}

func TestStubClient_Analyze(t *testing.T) {
	off := NewStubClient(false, testLogger())
	scenes, err := off.Analyze(context.Background(), "m")
	if err != nil || len(scenes) != 0 {
		t.Fatalf("scenes = %v, err = %v", scenes, err)
	}

	on := NewStubClient(true, testLogger())
	scenes, err = on.Analyze(context.Background(), "m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scenes) != len(MockScenes) {
		t.Fatalf("got %d scenes, want %d", len(scenes), len(MockScenes))
	}
	scenes[0].Description = "changed"
	if MockScenes[0].Description == "changed" {
		t.Error("Analyze must return a copy")
	}
}

func TestStubClient_ScoreDeterministic(t *testing.T) {
	c := NewStubClient(false, testLogger())
	req := ScoreRequest{MainVideoID: "main", SegmentIndex: 1, AdID: "ad"}

	a, err := c.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := c.Score(context.Background(), req)

	if a.Confidence != b.Confidence {
		t.Errorf("confidence not stable: %v vs %v", a.Confidence, b.Confidence)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		t.Errorf("confidence out of range: %v", a.Confidence)
	}
}
