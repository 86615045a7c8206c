// Package upload moves stored files to the cloud media service on a bounded
// worker pool and reports per-item status plus a cosmetic progress figure.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/idealad/adsplice/internal/cloud"
	"github.com/idealad/adsplice/internal/format"
	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/timeline"
)

type Purpose string

const (
	PurposeAd   Purpose = "ad"
	PurposeMain Purpose = "main"
)

type Status string

const (
	StatusTransferring     Status = "transferring"
	StatusAwaitingAnalysis Status = "awaiting-remote-processing"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
)

// Finished reports whether no further transitions will happen.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed
}

const (
	DefaultInterval = 200 * time.Millisecond
	DefaultStep     = 10
	DefaultCap      = 90
	DefaultTimeout  = 10 * time.Minute
)

var ErrNoFiles = errors.New("no files to upload")

// File is an object already written to the media store.
type File struct {
	Name        string
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// Item tracks one file through the upload.
type Item struct {
	ID            string               `json:"id"`
	Purpose       Purpose              `json:"purpose"`
	Name          string               `json:"name"`
	Key           string               `json:"key"`
	SizeBytes     int64                `json:"size_bytes"`
	ContentType   string               `json:"content_type"`
	URL           string               `json:"url"`
	Status        Status               `json:"status"`
	Progress      int                  `json:"progress"`
	MediaID       string               `json:"media_id,omitempty"`
	Error         string               `json:"error,omitempty"`
	AnalysisError string               `json:"analysis_error,omitempty"`
	Scenes        []timeline.AISegment `json:"-"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    *time.Time           `json:"finished_at,omitempty"`
}

type Config struct {
	Pool     *ants.Pool
	Store    media.Store
	Uploader cloud.Uploader
	Analyzer cloud.Analyzer
	IndexID  string
	Logger   *slog.Logger

	Interval time.Duration
	Step     int
	Cap      int
	Timeout  time.Duration

	// OnProgress sees every status or progress change.
	OnProgress func(Item)
	// OnComplete is called once per item when it reaches done or failed.
	OnComplete func(Item)
}

type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	items   map[string]*Item
	order   []string
	tickers map[string]chan struct{}
}

func NewController(cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Cap <= 0 || cfg.Cap > 100 {
		cfg.Cap = DefaultCap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		logger:  logging.WithComponent(cfg.Logger, "upload"),
		items:   make(map[string]*Item),
		tickers: make(map[string]chan struct{}),
	}
}

// Submit starts an upload for each file. Items are returned in the
// transferring state; a file the pool refuses fails on its own without
// affecting the others.
func (c *Controller) Submit(purpose Purpose, files ...File) ([]Item, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	out := make([]Item, 0, len(files))
	for _, f := range files {
		item := &Item{
			ID:          uuid.NewString(),
			Purpose:     purpose,
			Name:        f.Name,
			Key:         f.Key,
			SizeBytes:   f.Size,
			ContentType: f.ContentType,
			URL:         f.URL,
			Status:      StatusTransferring,
			StartedAt:   time.Now().UTC(),
		}
		stop := make(chan struct{})

		c.mu.Lock()
		c.items[item.ID] = item
		c.order = append(c.order, item.ID)
		c.tickers[item.ID] = stop
		c.mu.Unlock()

		go c.tick(item.ID, stop)

		id := item.ID
		if err := c.cfg.Pool.Submit(func() { c.run(id) }); err != nil {
			c.logger.Error("failed to schedule upload", "error", err, "name", f.Name)
			c.finish(id, func(it *Item) {
				it.Status = StatusFailed
				it.Error = fmt.Sprintf("schedule upload: %v", err)
			})
		}

		c.mu.Lock()
		out = append(out, *item)
		c.mu.Unlock()
	}
	return out, nil
}

// Items returns a copy of every tracked item in submission order.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

func (c *Controller) Item(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Reset forgets every item and stops their progress tickers. Uploads already
// running finish in the background but their completions are dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, stop := range c.tickers {
		close(stop)
		delete(c.tickers, id)
	}
	c.items = make(map[string]*Item)
	c.order = nil
}

func (c *Controller) run(id string) {
	it, ok := c.Item(id)
	if !ok {
		return
	}
	logger := c.logger.With("upload_id", id, "purpose", it.Purpose)
	logger.Debug("upload started", "name", it.Name, "size", format.Bytes(it.SizeBytes))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	mediaID, err := c.transfer(ctx, it)
	if err != nil {
		logger.Warn("upload failed", "error", err, "name", it.Name)
		c.finish(id, func(it *Item) {
			it.Status = StatusFailed
			it.Error = err.Error()
		})
		return
	}

	if it.Purpose != PurposeMain || c.cfg.Analyzer == nil {
		logger.Info("upload completed", "media_id", mediaID)
		c.finish(id, func(it *Item) {
			it.MediaID = mediaID
			it.Status = StatusDone
			it.Progress = 100
		})
		return
	}

	c.update(id, func(it *Item) {
		it.MediaID = mediaID
		it.Status = StatusAwaitingAnalysis
	})

	scenes, err := c.cfg.Analyzer.Analyze(ctx, mediaID)
	if err != nil {
		logger.Warn("analysis failed, falling back to fixed windows", "error", err, "media_id", mediaID)
	} else {
		logger.Info("analysis completed", "media_id", mediaID, "scenes", len(scenes))
	}
	c.finish(id, func(it *Item) {
		it.Status = StatusDone
		it.Progress = 100
		it.Scenes = scenes
		if err != nil {
			it.AnalysisError = err.Error()
		}
	})
}

func (c *Controller) transfer(ctx context.Context, it Item) (string, error) {
	if c.cfg.Uploader == nil {
		return "", errors.New("no uploader configured")
	}
	body, err := c.cfg.Store.Open(ctx, it.Key)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", it.Key, err)
	}
	defer body.Close()

	res, err := c.cfg.Uploader.Upload(ctx, cloud.UploadRequest{
		IndexID:  c.cfg.IndexID,
		Filename: it.Name,
		Body:     body,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", it.Name, err)
	}
	return res.MediaID(), nil
}

// tick raises the progress figure by Step every Interval until Cap.
func (c *Controller) tick(id string, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.update(id, func(it *Item) {
				if it.Status.Finished() || it.Progress >= c.cfg.Cap {
					return
				}
				it.Progress = min(it.Progress+c.cfg.Step, c.cfg.Cap)
			})
		}
	}
}

func (c *Controller) update(id string, fn func(*Item)) {
	c.mu.Lock()
	it, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	before := *it
	fn(it)
	changed := before.Status != it.Status || before.Progress != it.Progress
	snap := *it
	c.mu.Unlock()

	if changed && c.cfg.OnProgress != nil {
		c.cfg.OnProgress(snap)
	}
}

// finish applies the terminal transition, stops the ticker and notifies.
// Items dropped by Reset are ignored.
func (c *Controller) finish(id string, fn func(*Item)) {
	c.mu.Lock()
	it, ok := c.items[id]
	if !ok || it.Status.Finished() {
		c.mu.Unlock()
		return
	}
	fn(it)
	now := time.Now().UTC()
	it.FinishedAt = &now
	if stop, ok := c.tickers[id]; ok {
		close(stop)
		delete(c.tickers, id)
	}
	snap := *it
	c.mu.Unlock()

	if c.cfg.OnProgress != nil {
		c.cfg.OnProgress(snap)
	}
	if c.cfg.OnComplete != nil {
		c.cfg.OnComplete(snap)
	}
}
