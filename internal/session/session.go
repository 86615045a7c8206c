package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/idealad/adsplice/internal/cloud"
	"github.com/idealad/adsplice/internal/compose"
	"github.com/idealad/adsplice/internal/events"
	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/player"
	"github.com/idealad/adsplice/internal/timeline"
	"github.com/idealad/adsplice/internal/upload"
)

// MainVideo is the video the ads are placed into.
type MainVideo struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	URL             string               `json:"url"`
	SourceHandle    string               `json:"source_handle"`
	MediaID         string               `json:"media_id,omitempty"`
	DurationSeconds float64              `json:"duration_seconds"`
	AISegments      []timeline.AISegment `json:"ai_segments,omitempty"`
	AnalysisError   string               `json:"analysis_error,omitempty"`
}

// Snapshot is a consistent copy of a session for rendering.
type Snapshot struct {
	ID            string             `json:"id"`
	Segments      []timeline.Segment `json:"segments"`
	Sequence      []string           `json:"sequence"`
	Ads           []timeline.AdAsset `json:"ads"`
	MainVideo     *MainVideo         `json:"main_video,omitempty"`
	WindowSeconds float64            `json:"window_seconds"`
	Uploads       []upload.Item      `json:"uploads"`
	Composition   *compose.Result    `json:"composition,omitempty"`
	Players       int                `json:"players"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Session struct {
	id        string
	cfg       Config
	logger    *slog.Logger
	uploads   *upload.Controller
	createdAt time.Time

	// pubMu is held across taking and publishing a snapshot so
	// session.updated events leave in the order their snapshots were taken.
	pubMu sync.Mutex

	mu        sync.Mutex
	state     timeline.State
	ads       []timeline.AdAsset
	main      *MainVideo
	window    float64
	result    *compose.Result
	epoch     uint64
	players   map[*player.Player]struct{}
	updatedAt time.Time
}

func newSession(id string, cfg Config, logger *slog.Logger) *Session {
	now := time.Now().UTC()
	s := &Session{
		id:        id,
		cfg:       cfg,
		logger:    logging.WithSessionID(logger, id),
		createdAt: now,
		updatedAt: now,
		window:    cfg.WindowSeconds,
		players:   make(map[*player.Player]struct{}),
	}
	s.uploads = upload.NewController(upload.Config{
		Pool:       cfg.Pool,
		Store:      cfg.Store,
		Uploader:   cfg.Cloud,
		Analyzer:   cfg.Cloud,
		IndexID:    cfg.IndexID,
		Logger:     s.logger,
		Interval:   cfg.ProgressInterval,
		Step:       cfg.ProgressStep,
		Cap:        cfg.ProgressCap,
		Timeout:    cfg.UploadTimeout,
		OnProgress: s.uploadProgressed,
		OnComplete: s.uploadCompleted,
	})
	return s
}

func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Segments:      s.state.Segments(),
		Sequence:      []string{},
		Ads:           slices.Clone(s.ads),
		WindowSeconds: s.window,
		Uploads:       s.uploads.Items(),
		Players:       len(s.players),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	if snap.Segments == nil {
		snap.Segments = []timeline.Segment{}
	}
	if snap.Ads == nil {
		snap.Ads = []timeline.AdAsset{}
	}
	for _, seg := range s.state.Selected() {
		snap.Sequence = append(snap.Sequence, seg.ID)
	}
	if s.main != nil {
		m := *s.main
		m.AISegments = slices.Clone(s.main.AISegments)
		snap.MainVideo = &m
	}
	if s.result != nil {
		r := *s.result
		snap.Composition = &r
	}
	return snap
}

// Selected returns the playback sequence.
func (s *Session) Selected() []timeline.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Selected()
}

// UploadAds stores nothing itself: files must already be in the media store.
// Each file joins the ad library once its upload succeeds.
func (s *Session) UploadAds(files ...upload.File) ([]upload.Item, error) {
	items, err := s.uploads.Submit(upload.PurposeAd, files...)
	if err != nil {
		return nil, err
	}
	s.changed()
	return items, nil
}

// UploadMainVideo replaces the main video and starts its upload and
// analysis. The timeline keeps its ads and drops the old video segments.
func (s *Session) UploadMainVideo(file upload.File) (upload.Item, error) {
	s.mu.Lock()
	s.main = &MainVideo{
		ID:           uuid.NewString(),
		Name:         file.Name,
		URL:          file.URL,
		SourceHandle: file.Key,
	}
	s.regenerateLocked()
	s.mu.Unlock()

	items, err := s.uploads.Submit(upload.PurposeMain, file)
	if err != nil {
		return upload.Item{}, err
	}
	s.changed()
	return items[0], nil
}

// SetMainVideo replaces the main video without uploading it, for media that
// is already reachable by URL.
func (s *Session) SetMainVideo(m MainVideo) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.AISegments = slices.Clone(m.AISegments)
	s.mu.Lock()
	s.main = &m
	s.regenerateLocked()
	s.mu.Unlock()
	s.changed()
}

// AddAd adds an asset to the library and regenerates the timeline.
func (s *Session) AddAd(asset timeline.AdAsset) {
	s.mu.Lock()
	s.addAdLocked(asset)
	s.mu.Unlock()
	s.changed()
}

func (s *Session) addAdLocked(asset timeline.AdAsset) {
	if asset.UploadedAt.IsZero() {
		asset.UploadedAt = time.Now().UTC()
	}
	s.ads = append(s.ads, asset)
	s.regenerateLocked()
}

// SetAdDuration records an ad's duration once its metadata is known.
func (s *Session) SetAdDuration(adID string, seconds float64) error {
	if !validDuration(seconds) {
		return ErrInvalidDuration
	}
	s.mu.Lock()
	i := s.adIndexLocked(adID)
	if i < 0 {
		s.mu.Unlock()
		return ErrAdNotFound
	}
	s.ads[i].DurationSeconds = seconds
	s.regenerateLocked()
	s.mu.Unlock()
	s.changed()
	return nil
}

// RemoveAd drops an asset, every segment referencing it and its stored media.
func (s *Session) RemoveAd(ctx context.Context, adID string) error {
	s.mu.Lock()
	i := s.adIndexLocked(adID)
	if i < 0 {
		s.mu.Unlock()
		return ErrAdNotFound
	}
	asset := s.ads[i]
	s.ads = slices.Delete(s.ads, i, i+1)
	s.state = s.state.RemoveAsset(adID)
	s.regenerateLocked()
	s.mu.Unlock()

	s.deleteMedia(ctx, asset.SourceHandle)
	s.changed()
	return nil
}

// ClearAds removes the whole ad library.
func (s *Session) ClearAds(ctx context.Context) {
	s.mu.Lock()
	ads := s.ads
	s.ads = nil
	for _, a := range ads {
		s.state = s.state.RemoveAsset(a.ID)
	}
	s.regenerateLocked()
	s.mu.Unlock()

	for _, a := range ads {
		s.deleteMedia(ctx, a.SourceHandle)
	}
	s.changed()
}

// SetMainDuration records the main video duration once its metadata is known.
func (s *Session) SetMainDuration(seconds float64) error {
	if !validDuration(seconds) {
		return ErrInvalidDuration
	}
	s.mu.Lock()
	if s.main == nil {
		s.mu.Unlock()
		return ErrNoMainVideo
	}
	if timeline.WindowCount(seconds, s.window) > timeline.MaxSegments {
		s.mu.Unlock()
		return ErrTooManySegments
	}
	s.main.DurationSeconds = seconds
	s.regenerateLocked()
	s.mu.Unlock()
	s.changed()
	return nil
}

// SetAnalysis stores the scene analysis for the main video. A non-nil
// analysisErr is kept for display and the timeline uses fixed windows.
func (s *Session) SetAnalysis(scenes []timeline.AISegment, analysisErr error) error {
	s.mu.Lock()
	if s.main == nil {
		s.mu.Unlock()
		return ErrNoMainVideo
	}
	s.setAnalysisLocked(scenes, analysisErr)
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Session) setAnalysisLocked(scenes []timeline.AISegment, analysisErr error) {
	s.main.AISegments = slices.Clone(scenes)
	s.main.AnalysisError = ""
	if analysisErr != nil {
		s.main.AISegments = nil
		s.main.AnalysisError = analysisErr.Error()
	}
	s.regenerateLocked()
}

// SetWindow changes the fixed window size used when there are no AI scenes.
func (s *Session) SetWindow(seconds float64) error {
	if !validDuration(seconds) || seconds < timeline.MinWindowSeconds {
		return ErrInvalidWindow
	}
	s.mu.Lock()
	if s.main != nil && timeline.WindowCount(s.main.DurationSeconds, seconds) > timeline.MaxSegments {
		s.mu.Unlock()
		return ErrTooManySegments
	}
	s.window = seconds
	s.regenerateLocked()
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Session) ToggleSelect(segID string) error {
	return s.transition(segID, func(st timeline.State) timeline.State {
		return st.ToggleSelect(segID)
	})
}

func (s *Session) Reorder(segID string, target int) error {
	return s.transition(segID, func(st timeline.State) timeline.State {
		return st.Reorder(segID, target)
	})
}

func (s *Session) transition(segID string, fn func(timeline.State) timeline.State) error {
	s.mu.Lock()
	if _, ok := s.state.Find(segID); !ok {
		s.mu.Unlock()
		return ErrSegmentNotFound
	}
	s.state = fn(s.state)
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.changed()
	return nil
}

// Score asks the confidence service how well an ad fits at segmentIndex of
// the main video and records the result on the ad segment.
func (s *Session) Score(ctx context.Context, segID string, segmentIndex int) (*cloud.Score, error) {
	s.mu.Lock()
	seg, ok := s.state.Find(segID)
	if !ok {
		s.mu.Unlock()
		return nil, ErrSegmentNotFound
	}
	if seg.Kind != timeline.KindAdvertisement {
		s.mu.Unlock()
		return nil, ErrNotAnAd
	}
	if s.main == nil {
		s.mu.Unlock()
		return nil, ErrNoMainVideo
	}
	i := s.adIndexLocked(seg.AssetID)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrAdNotFound
	}
	req := cloud.ScoreRequest{
		MainVideoID:  firstNonEmpty(s.main.MediaID, s.main.ID),
		SegmentIndex: segmentIndex,
		AdID:         firstNonEmpty(s.ads[i].MediaID, s.ads[i].ID),
	}
	epoch := s.epoch
	s.mu.Unlock()

	score, err := s.cfg.Cloud.Score(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", segID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.state = s.state.RecordScore(segID, score.Confidence)
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("ad scored", "segment_id", segID, "confidence", score.Confidence)
	s.changed()
	return score, nil
}

// Compose sends the selection to the stitch back end and applies the
// resulting placements. Stitch failures yield a fallback result, not an error.
func (s *Session) Compose(ctx context.Context) (*compose.Result, error) {
	s.mu.Lock()
	state := s.state
	ads := slices.Clone(s.ads)
	var main *compose.MainVideo
	if s.main != nil {
		main = &compose.MainVideo{
			ID:              s.main.ID,
			Name:            s.main.Name,
			URL:             s.main.URL,
			DurationSeconds: s.main.DurationSeconds,
		}
	}
	epoch := s.epoch
	s.mu.Unlock()

	_, result, err := s.cfg.Composer.Request(ctx, state, main, ads)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.state = s.state.ApplyComposition(result.Placements())
	s.result = result
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.publish(events.TypeCompositionCompleted, result)
	s.changed()
	return result, nil
}

// AttachPlayer creates a player bound to this session. Its status changes
// are published as player events in addition to opts.OnChange.
func (s *Session) AttachPlayer(opts player.Options) *player.Player {
	onChange := opts.OnChange
	opts.OnChange = func(st player.Status) {
		if onChange != nil {
			onChange(st)
		}
		s.publish(events.TypePlayerStatus, st)
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent(s.logger, "player")
	}
	if opts.DefaultAdDuration <= 0 {
		opts.DefaultAdDuration = s.cfg.DefaultAdDuration
	}
	p := player.New(opts)

	s.mu.Lock()
	s.players[p] = struct{}{}
	s.mu.Unlock()
	return p
}

// DetachPlayer stops p and forgets it.
func (s *Session) DetachPlayer(p *player.Player) {
	s.mu.Lock()
	delete(s.players, p)
	s.mu.Unlock()
	p.Stop()
}

// Play starts p on the current selection.
func (s *Session) Play(p *player.Player) error {
	return p.Play(s.Selected())
}

// Reset returns the session to empty. Uploads still running are abandoned
// and attached players are stopped but stay attached.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.uploads.Reset()
	var handles []string
	for _, a := range s.ads {
		handles = append(handles, a.SourceHandle)
	}
	if s.main != nil {
		handles = append(handles, s.main.SourceHandle)
	}
	s.ads = nil
	s.main = nil
	s.result = nil
	s.window = s.cfg.WindowSeconds
	s.state = timeline.State{}
	s.updatedAt = time.Now().UTC()
	players := s.playersLocked()
	s.mu.Unlock()

	for _, p := range players {
		p.Stop()
	}
	for _, h := range handles {
		s.deleteMedia(ctx, h)
	}
	s.logger.Info("session reset")
	s.changed()
}

func (s *Session) shutdown() {
	s.mu.Lock()
	s.epoch++
	s.uploads.Reset()
	players := s.playersLocked()
	s.players = make(map[*player.Player]struct{})
	s.mu.Unlock()

	for _, p := range players {
		p.Stop()
	}
}

func (s *Session) playersLocked() []*player.Player {
	out := make([]*player.Player, 0, len(s.players))
	for p := range s.players {
		out = append(out, p)
	}
	return out
}

func (s *Session) uploadProgressed(it upload.Item) {
	s.publish(events.TypeUploadProgress, it)
}

// uploadCompleted folds a finished upload into the session. Items dropped by
// Reset, and main video uploads that were replaced since, are ignored.
func (s *Session) uploadCompleted(it upload.Item) {
	s.mu.Lock()
	if _, ok := s.uploads.Item(it.ID); !ok {
		s.mu.Unlock()
		return
	}

	switch it.Purpose {
	case upload.PurposeAd:
		if it.Status != upload.StatusDone {
			s.mu.Unlock()
			s.changed()
			return
		}
		s.addAdLocked(timeline.AdAsset{
			ID:           it.ID,
			Name:         it.Name,
			SizeBytes:    it.SizeBytes,
			MimeType:     it.ContentType,
			SourceHandle: it.Key,
			URL:          it.URL,
			MediaID:      it.MediaID,
		})

	case upload.PurposeMain:
		if s.main == nil || s.main.SourceHandle != it.Key {
			s.mu.Unlock()
			return
		}
		if it.Status == upload.StatusDone {
			s.main.MediaID = it.MediaID
			var analysisErr error
			if it.AnalysisError != "" {
				analysisErr = fmt.Errorf("%s", it.AnalysisError)
			}
			s.setAnalysisLocked(it.Scenes, analysisErr)
		}
	}
	s.mu.Unlock()
	s.changed()
}

// regenerateLocked rebuilds the segment list from the current inputs.
func (s *Session) regenerateLocked() {
	var duration float64
	var scenes []timeline.AISegment
	if s.main != nil {
		duration = s.main.DurationSeconds
		scenes = s.main.AISegments
	}
	fresh := timeline.Generate(duration, scenes, s.ads, s.window)
	s.state = s.state.Regenerate(fresh)
	s.updatedAt = time.Now().UTC()
}

func (s *Session) adIndexLocked(adID string) int {
	return slices.IndexFunc(s.ads, func(a timeline.AdAsset) bool { return a.ID == adID })
}

func (s *Session) deleteMedia(ctx context.Context, key string) {
	if key == "" || s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete media", "error", err, "key", key)
	}
}

func (s *Session) changed() {
	if s.cfg.Events == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publish(events.TypeSessionUpdated, s.Snapshot())
}

func (s *Session) publish(eventType string, v interface{}) {
	if s.cfg.Events == nil {
		return
	}
	if err := s.cfg.Events.PublishJSON(s.id, eventType, v); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "type", eventType)
	}
}

func validDuration(v float64) bool {
	return v > 0 && v <= timeline.MaxDurationSeconds && !math.IsNaN(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
