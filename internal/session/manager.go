// Package session owns the per-user editing state: the ad library, the main
// video, the timeline and everything that mutates them.
package session

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
	"github.com/idealad/adsplice/internal/compose"
	"github.com/idealad/adsplice/internal/events"
	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/timeline"
	"github.com/idealad/adsplice/internal/upload"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrAdNotFound      = errors.New("ad not found")
	ErrNoMainVideo     = errors.New("no main video")
	ErrNotAnAd         = errors.New("segment is not an advertisement")
	ErrInvalidWindow   = fmt.Errorf("window seconds must be between %d and %d", timeline.MinWindowSeconds, timeline.MaxDurationSeconds)
	ErrInvalidDuration = fmt.Errorf("duration must be positive and at most %d seconds", timeline.MaxDurationSeconds)
	ErrTooManySegments = fmt.Errorf("window splits the main video into more than %d segments", timeline.MaxSegments)
	ErrStale           = errors.New("session was reset while the request was running")

	// ErrNothingSelected is returned by Compose when no segment is selected.
	ErrNothingSelected = compose.ErrNothingSelected
)

const DefaultWindowSeconds = 30

// Composer is satisfied by *compose.Requester.
type Composer interface {
	Request(ctx context.Context, state timeline.State, main *compose.MainVideo, ads []timeline.AdAsset) (timeline.State, *compose.Result, error)
}

type Config struct {
	Pool     *ants.Pool
	Store    media.Store
	Cloud    cloud.Client
	Composer Composer
	Events   events.Publisher
	Logger   *slog.Logger

	IndexID           string
	WindowSeconds     float64
	DefaultAdDuration time.Duration

	ProgressInterval time.Duration
	ProgressStep     int
	ProgressCap      int
	UploadTimeout    time.Duration
}

type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = DefaultWindowSeconds
	}
	return &Manager{
		cfg:      cfg,
		logger:   logging.WithComponent(cfg.Logger, "session"),
		sessions: make(map[string]*Session),
	}
}

// Create starts an empty session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.cfg, m.logger)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.logger.Info("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete resets the session, releasing its media, and forgets it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Reset(ctx)
	s.logger.Info("session deleted")
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every session's uploads and players. Stored media is kept.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.shutdown()
	}
}
