package cloud

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/timeline"
)

// MockScenes is the scene list returned by StubClient when scene mocking is on.
var MockScenes = []timeline.AISegment{
	{Start: 0, End: 15, Description: "Opening sequence"},
	{Start: 15, End: 42, Description: "Main action"},
	{Start: 42, End: 58, Description: "Crowd reaction"},
	{Start: 58, End: 75, Description: "Closing highlights"},
}

// StubClient stands in for the real service when no API key is configured.
// It drains uploads, fabricates media ids and derives a stable confidence
// from the score inputs.
type StubClient struct {
	mockScenes bool
	now        func() time.Time
	logger     *slog.Logger
}

func NewStubClient(mockScenes bool, logger *slog.Logger) *StubClient {
	return &StubClient{
		mockScenes: mockScenes,
		now:        time.Now,
		logger:     logging.WithComponent(logger, "cloud-stub"),
	}
}

func (c *StubClient) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Body != nil {
		if _, err := io.Copy(io.Discard, req.Body); err != nil {
			return nil, fmt.Errorf("upload %s: %w", req.Filename, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "stub_" + uuid.NewString()
	c.logger.Info("cloud stub: upload registered", "filename", req.Filename, "media_id", id)
	return &UploadResult{ID: id, VideoID: id}, nil
}

func (c *StubClient) Analyze(ctx context.Context, mediaID string) ([]timeline.AISegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.mockScenes {
		c.logger.Info("cloud stub: scene detection unavailable", "media_id", mediaID)
		return nil, nil
	}
	out := make([]timeline.AISegment, len(MockScenes))
	copy(out, MockScenes)
	return out, nil
}

func (c *StubClient) Score(ctx context.Context, req ScoreRequest) (*Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%d|%s", req.MainVideoID, req.SegmentIndex, req.AdID)
	confidence := float64(h.Sum32()%10000) / 100

	return &Score{
		Confidence: confidence,
		Reasoning:  "placeholder score; no content analysis performed",
		Timestamp:  c.now().UTC(),
	}, nil
}
