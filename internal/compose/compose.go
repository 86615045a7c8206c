// Package compose turns the selected part of a timeline into a stitch
// request and folds the answer, or a locally built stand-in when the stitch
// back end fails, back into the timeline.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/stitch"
	"github.com/idealad/adsplice/internal/timeline"
)

// ErrNothingSelected is returned when no segment is selected.
var ErrNothingSelected = errors.New("nothing selected")

// ErrMalformedResponse is returned for a stitch answer that cannot be applied.
var ErrMalformedResponse = errors.New("malformed stitch response")

// DefaultPlaceholderURL is played when a fallback has no main video to point at.
const DefaultPlaceholderURL = "https://storage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

type MainVideo struct {
	ID              string
	Name            string
	URL             string
	DurationSeconds float64
}

// Result describes a composition. IsFallback is true when the stitch back
// end failed and the result was built locally; callers must surface it.
type Result struct {
	CompositionID        string                `json:"composition_id,omitempty"`
	ResultURL            string                `json:"result_url"`
	TotalDurationSeconds float64               `json:"total_duration_seconds"`
	AdSegments           int                   `json:"ad_segments"`
	VideoSegments        int                   `json:"video_segments"`
	AverageConfidence    float64               `json:"average_confidence"`
	IsFallback           bool                  `json:"is_fallback"`
	FallbackReason       string                `json:"fallback_reason,omitempty"`
	Sequence             []stitch.SequenceItem `json:"sequence"`
	CreatedAt            time.Time             `json:"created_at"`
}

type Requester struct {
	stitcher       stitch.Stitcher
	placeholderURL string
	logger         *slog.Logger
	now            func() time.Time
}

func NewRequester(stitcher stitch.Stitcher, placeholderURL string, logger *slog.Logger) *Requester {
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderURL
	}
	return &Requester{
		stitcher:       stitcher,
		placeholderURL: placeholderURL,
		logger:         logging.WithComponent(logger, "compose"),
		now:            time.Now,
	}
}

// Request composes the selected segments of state. The returned State has
// the composition applied. Stitch failures never surface as errors; they
// produce a fallback Result instead.
func (r *Requester) Request(ctx context.Context, state timeline.State, main *MainVideo, ads []timeline.AdAsset) (timeline.State, *Result, error) {
	selected := state.Selected()
	if len(selected) == 0 {
		return state, nil, ErrNothingSelected
	}

	req := BuildRequest(selected, main, ads, r.now())
	result := &Result{
		AverageConfidence: averageConfidence(selected),
		CreatedAt:         r.now(),
	}
	for _, seg := range selected {
		if seg.Kind == timeline.KindAdvertisement {
			result.AdSegments++
		} else {
			result.VideoSegments++
		}
	}

	resp, err := r.stitch(ctx, req)
	if err != nil {
		r.logger.Warn("stitch failed, using local composition", "error", err, "segments", len(selected))
		result.IsFallback = true
		result.FallbackReason = err.Error()
		result.ResultURL = r.placeholderURL
		if main != nil && main.URL != "" {
			result.ResultURL = main.URL
		}
		result.Sequence = req.Sequence
		result.TotalDurationSeconds = sequenceEnd(req.Sequence)
		return state.ApplyComposition(placements(req.Sequence)), result, nil
	}

	result.CompositionID = resp.StitchedVideoID
	result.ResultURL = resp.StitchedVideoURL
	result.Sequence = resp.Sequence
	result.TotalDurationSeconds = sequenceEnd(resp.Sequence)

	r.logger.Info("composition applied",
		"composition_id", result.CompositionID,
		"segments", len(resp.Sequence),
		"total_duration", result.TotalDurationSeconds,
	)
	return state.ApplyComposition(placements(resp.Sequence)), result, nil
}

func (r *Requester) stitch(ctx context.Context, req stitch.Request) (*stitch.Response, error) {
	if r.stitcher == nil {
		return nil, errors.New("no stitch back end configured")
	}
	resp, err := r.stitcher.Stitch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, fmt.Errorf("%w: success=false", ErrMalformedResponse)
	}
	if resp.StitchedVideoURL == "" {
		return nil, fmt.Errorf("%w: missing stitchedVideoUrl", ErrMalformedResponse)
	}
	if len(resp.Sequence) == 0 && len(req.Sequence) > 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrMalformedResponse)
	}
	return resp, nil
}

// BuildRequest lays the selected segments out back to back in selection
// order. Ads carry the best confidence recorded for them.
func BuildRequest(selected []timeline.Segment, main *MainVideo, ads []timeline.AdAsset, now time.Time) stitch.Request {
	assets := make(map[string]timeline.AdAsset, len(ads))
	for _, a := range ads {
		assets[a.ID] = a
	}

	req := stitch.Request{
		AdSegments: []stitch.AdSegment{},
		Sequence:   make([]stitch.SequenceItem, 0, len(selected)),
	}

	var videoSegs []stitch.VideoSegment
	var offset float64
	for i, seg := range selected {
		length := seg.DurationSeconds
		if length < 0 {
			length = 0
		}

		itemType := stitch.ItemVideo
		if seg.Kind == timeline.KindAdvertisement {
			itemType = stitch.ItemAd
			asset := assets[seg.AssetID]
			req.AdSegments = append(req.AdSegments, stitch.AdSegment{
				ID: seg.ID,
				AdData: stitch.AdData{
					ID:       asset.ID,
					Name:     asset.Name,
					URL:      asset.URL,
					Duration: asset.DurationSeconds,
				},
				Duration:    seg.DurationSeconds,
				Description: seg.Description,
				Confidence:  seg.Confidence,
				Type:        string(seg.Kind),
			})
		} else {
			videoSegs = append(videoSegs, stitch.VideoSegment{
				ID:          seg.ID,
				Start:       seg.Start,
				End:         seg.End,
				Duration:    seg.DurationSeconds,
				Description: seg.Description,
				Type:        string(seg.Kind),
			})
		}

		req.Sequence = append(req.Sequence, stitch.SequenceItem{
			ID:        seg.ID,
			Order:     i,
			Type:      itemType,
			StartTime: offset,
			EndTime:   offset + length,
		})
		offset += length
	}

	if main != nil {
		if videoSegs == nil {
			videoSegs = []stitch.VideoSegment{}
		}
		req.MainVideo = &stitch.MainVideo{
			ID:       main.ID,
			Name:     main.Name,
			URL:      main.URL,
			Duration: main.DurationSeconds,
			Segments: videoSegs,
		}
	}

	req.Metadata = map[string]interface{}{
		"totalSegments": len(selected),
		"videoSegments": len(videoSegs),
		"adSegments":    len(req.AdSegments),
		"createdAt":     now.UTC().Format(time.RFC3339),
	}
	return req
}

// averageConfidence is the mean of the known ad confidences, or 0.
func averageConfidence(selected []timeline.Segment) float64 {
	var xs []float64
	for _, seg := range selected {
		if seg.Kind == timeline.KindAdvertisement && seg.Confidence != nil {
			xs = append(xs, *seg.Confidence)
		}
	}
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Placements returns the sequence as timeline placements.
func (r *Result) Placements() []timeline.Placement {
	return placements(r.Sequence)
}

func placements(seq []stitch.SequenceItem) []timeline.Placement {
	out := make([]timeline.Placement, len(seq))
	for i, item := range seq {
		out[i] = timeline.Placement{
			ID:            item.ID,
			Order:         item.Order,
			TimelineStart: item.StartTime,
			TimelineEnd:   item.EndTime,
		}
	}
	return out
}

func sequenceEnd(seq []stitch.SequenceItem) float64 {
	var end float64
	for _, item := range seq {
		if item.EndTime > end {
			end = item.EndTime
		}
	}
	return end
}
