package cloud

import (
	"io"
	"time"

	"github.com/idealad/adsplice/internal/timeline"
)

type UploadRequest struct {
	IndexID  string
	Filename string
	Body     io.Reader
}

// UploadResult mirrors the task created for an upload.
type UploadResult struct {
	ID      string `json:"_id"`
	VideoID string `json:"video_id"`
}

// MediaID returns the identifier later calls should use for this upload.
func (r UploadResult) MediaID() string {
	if r.VideoID != "" {
		return r.VideoID
	}
	return r.ID
}

type ScoreRequest struct {
	MainVideoID  string `json:"main_video_id"`
	SegmentIndex int    `json:"segment_index"`
	AdID         string `json:"ad_id"`
}

// Score is a confidence rating between 0 and 100.
type Score struct {
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Timestamp  time.Time `json:"timestamp"`
}

type analyzeRequest struct {
	VideoID string `json:"video_id"`
}

type analyzeResponse struct {
	Data []timeline.AISegment `json:"data"`
}
