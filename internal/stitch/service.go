package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/idealad/adsplice/internal/logging"
)

// ErrMissingData is returned when a request lacks the main video, the ad
// list or the sequence.
var ErrMissingData = errors.New("missing required data: mainVideo, adSegments, or sequence")

const (
	outputQuality = "1080p"
	outputFormat  = "mp4"
	outputCodec   = "h264"
)

type ServiceConfig struct {
	Repository Repository
	Logger     *slog.Logger
	// MinDelay and MaxDelay bound the simulated processing time.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Service is the in-process composition back end.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	maxDelay := cfg.MaxDelay
	if maxDelay < cfg.MinDelay {
		maxDelay = cfg.MinDelay
	}
	return &Service{
		repo:     cfg.Repository,
		logger:   logging.WithComponent(cfg.Logger, "stitch"),
		minDelay: cfg.MinDelay,
		maxDelay: maxDelay,
		now:      time.Now,
	}
}

// Stitch validates req, waits out the simulated processing time and lays the
// sequence out back to back starting at zero, in request order.
func (s *Service) Stitch(ctx context.Context, req Request) (*Response, error) {
	if req.MainVideo == nil || req.AdSegments == nil || req.Sequence == nil {
		return nil, ErrMissingData
	}

	started := s.now()
	s.logger.Info("stitch request received",
		"main_video_url", req.MainVideo.URL,
		"ad_segments", len(req.AdSegments),
		"sequence", len(req.Sequence),
	)

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("stitched_%d_%s", started.Unix(), uuid.NewString()[:8])

	sequence := make([]SequenceItem, len(req.Sequence))
	var total float64
	var videos, ads int
	for i, item := range req.Sequence {
		length := item.EndTime - item.StartTime
		if length < 0 {
			length = 0
		}
		sequence[i] = SequenceItem{
			ID:        item.ID,
			Order:     i,
			Type:      item.Type,
			StartTime: total,
			EndTime:   total + length,
			Duration:  length,
			Processed: true,
		}
		total += length

		switch item.Type {
		case ItemVideo:
			videos++
		case ItemAd:
			ads++
		}
	}

	elapsed := s.now().Sub(started)
	processingTime := fmt.Sprintf("%.2fs", elapsed.Seconds())

	metadata := make(map[string]interface{}, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["totalDuration"] = total
	metadata["processingTime"] = processingTime
	metadata["timestamp"] = s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	metadata["stitchedVideoId"] = id

	transitions := len(sequence) - 1
	if transitions < 0 {
		transitions = 0
	}

	resp := &Response{
		Success:          true,
		StitchedVideoID:  id,
		StitchedVideoURL: req.MainVideo.URL,
		Sequence:         sequence,
		Metadata:         metadata,
		ProcessingResults: &ProcessingResults{
			VideoSegments:  videos,
			AdSegments:     ads,
			Transitions:    transitions,
			Quality:        outputQuality,
			Format:         outputFormat,
			Codec:          outputCodec,
			TotalDuration:  total,
			ProcessingTime: processingTime,
		},
	}

	if s.repo != nil {
		rec := &Record{
			ID:            id,
			MainVideoURL:  req.MainVideo.URL,
			TotalDuration: total,
			VideoSegments: videos,
			AdSegments:    ads,
			ProcessingMs:  elapsed.Milliseconds(),
			Request:       req,
			Response:      *resp,
			CreatedAt:     s.now(),
		}
		if err := s.repo.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("save composition %s: %w", id, err)
		}
	}

	s.logger.Info("stitched video created",
		"stitched_video_id", id,
		"total_duration", total,
		"segments", len(sequence),
		"processing_time", processingTime,
	)
	return resp, nil
}

// Get returns a stored composition, or nil when it is unknown or no
// repository is configured.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Get(ctx, id)
}

// Count returns the number of stored compositions.
func (s *Service) Count(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.Count(ctx)
}

// Prune drops compositions older than the given age.
func (s *Service) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.repo == nil || maxAge <= 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("prune compositions: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned compositions", "count", n)
	}
	return n, nil
}

func (s *Service) wait(ctx context.Context) error {
	d := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
