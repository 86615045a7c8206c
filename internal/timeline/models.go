// Package timeline holds the segment model for a session: how ad and video
// segments are generated from the uploaded media and how the user's
// selection and ordering evolve through explicit State transitions.
package timeline

import (
	"time"
)

type Kind string

const (
	KindTimeWindow    Kind = "time-window"
	KindAIDetected    Kind = "ai-detected"
	KindAdvertisement Kind = "advertisement"
)

// IsVideo reports whether segments of this kind address a range of the main video.
func (k Kind) IsVideo() bool {
	return k == KindTimeWindow || k == KindAIDetected
}

// AdAsset is an uploaded ad clip. Segments reference it by ID only.
type AdAsset struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SizeBytes       int64     `json:"size_bytes"`
	MimeType        string    `json:"mime_type"`
	DurationSeconds float64   `json:"duration_seconds"`
	SourceHandle    string    `json:"source_handle"`
	URL             string    `json:"url"`
	MediaID         string    `json:"media_id,omitempty"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// AISegment is a scene boundary reported by the analysis service.
// The interval is half-open: Start <= t < End.
type AISegment struct {
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
	Description string  `json:"description"`
}

// Valid reports whether the scene satisfies 0 <= start < end.
func (a AISegment) Valid() bool {
	return a.Start >= 0 && a.End > a.Start
}

// Segment is a unit placeable on the timeline.
//
// Start and End are positions within the source video and stay fixed for the
// segment's lifetime; TimelineStart and TimelineEnd are offsets within the
// composed output and are only set once a composition has been applied.
type Segment struct {
	ID              string   `json:"id"`
	Kind            Kind     `json:"kind"`
	Start           float64  `json:"start"`
	End             float64  `json:"end"`
	DurationSeconds float64  `json:"duration_seconds"`
	Description     string   `json:"description"`
	Selected        bool     `json:"selected"`
	Order           *int     `json:"order,omitempty"`
	TimelineStart   *float64 `json:"timeline_start,omitempty"`
	TimelineEnd     *float64 `json:"timeline_end,omitempty"`
	AssetID         string   `json:"asset_id,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Playable reports whether the segment carries enough data to be played.
func (s Segment) Playable() bool {
	if s.Kind.IsVideo() {
		return s.Start >= 0 && s.End > s.Start
	}
	return s.Kind == KindAdvertisement && s.AssetID != ""
}

// Placement positions one segment within a composed sequence.
type Placement struct {
	ID            string
	Order         int
	TimelineStart float64
	TimelineEnd   float64
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
