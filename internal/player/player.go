// Package player steps through an ordered list of timeline segments, driving
// a single shared video element for video segments and an overlay for ads.
package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/idealad/adsplice/internal/timeline"
)

// ErrNothingSelected is returned by Play when there is nothing to play.
var ErrNothingSelected = errors.New("nothing selected")

// DefaultAdDuration bounds an ad whose duration is not known yet.
const DefaultAdDuration = 5 * time.Second

// MaxAdDuration caps how long an ad overlay waits before moving on.
const MaxAdDuration = 24 * time.Hour

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StateStopped State = "stopped"
)

// Video is the shared playback element for the main video.
type Video interface {
	Seek(seconds float64)
	Play()
	Pause()
}

// Overlay presents ad content on top of the video. Present must call done
// at most once when the ad media finishes; the player ignores late calls.
type Overlay interface {
	Present(seg timeline.Segment, done func())
	Dismiss()
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Status is a snapshot of the player.
type Status struct {
	State   State             `json:"state"`
	Index   int               `json:"index"`
	Total   int               `json:"total"`
	Segment *timeline.Segment `json:"segment,omitempty"`
}

type Options struct {
	Video             Video
	Overlay           Overlay
	Clock             Clock
	Logger            *slog.Logger
	DefaultAdDuration time.Duration
	OnChange          func(Status)
}

type Player struct {
	video      Video
	overlay    Overlay
	clock      Clock
	logger     *slog.Logger
	adFallback time.Duration
	onChange   func(Status)

	mu     sync.Mutex
	state  State
	index  int
	queue  []timeline.Segment
	gen    uint64
	timer  Timer
	showAd bool
}

func New(opts Options) *Player {
	p := &Player{
		video:      opts.Video,
		overlay:    opts.Overlay,
		clock:      opts.Clock,
		logger:     opts.Logger,
		adFallback: opts.DefaultAdDuration,
		onChange:   opts.OnChange,
		state:      StateIdle,
		index:      -1,
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.adFallback <= 0 {
		p.adFallback = DefaultAdDuration
	}
	return p
}

// Play starts the sequence from its first segment. Calling Play while a
// sequence is running restarts it with the new segments.
func (p *Player) Play(segments []timeline.Segment) error {
	if len(segments) == 0 {
		return ErrNothingSelected
	}

	p.mu.Lock()
	effects := p.teardownLocked()
	p.queue = append([]timeline.Segment(nil), segments...)
	effects = append(effects, p.enterLocked(0)...)
	status := p.statusLocked()
	p.mu.Unlock()

	p.run(effects, status)
	return nil
}

// TimeUpdate reports the video element's current position.
func (p *Player) TimeUpdate(seconds float64) {
	p.mu.Lock()
	seg, ok := p.currentLocked()
	if !ok || !seg.Kind.IsVideo() || seconds < seg.End {
		p.mu.Unlock()
		return
	}
	p.advance()
}

// VideoEnded reports that the video element reached the end of its media.
func (p *Player) VideoEnded() {
	p.mu.Lock()
	seg, ok := p.currentLocked()
	if !ok || !seg.Kind.IsVideo() {
		p.mu.Unlock()
		return
	}
	p.advance()
}

// Stop pauses playback, tears down any ad overlay and returns to Idle.
func (p *Player) Stop() {
	p.mu.Lock()
	effects := p.teardownLocked()
	effects = append(effects, p.video.Pause)
	p.state = StateIdle
	p.index = -1
	p.queue = nil
	status := p.statusLocked()
	p.mu.Unlock()

	p.run(effects, status)
}

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// advance moves past the current segment. The caller holds p.mu; advance
// releases it before running side effects.
func (p *Player) advance() {
	effects := p.teardownLocked()
	effects = append(effects, p.enterLocked(p.index+1)...)
	status := p.statusLocked()
	p.mu.Unlock()

	p.run(effects, status)
}

func (p *Player) completeAd(gen uint64) {
	p.mu.Lock()
	if p.state != StatePlaying || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.advance()
}

// enterLocked starts the first playable segment at or after i, or stops the
// sequence when none is left.
func (p *Player) enterLocked(i int) []func() {
	for ; i < len(p.queue); i++ {
		seg := p.queue[i]
		if !seg.Playable() {
			p.logger.Warn("skipping unplayable segment", "segment_id", seg.ID, "index", i)
			continue
		}

		p.state = StatePlaying
		p.index = i
		p.gen++

		if seg.Kind.IsVideo() {
			return []func(){
				func() { p.video.Seek(seg.Start) },
				p.video.Play,
			}
		}

		gen := p.gen
		wait := p.adFallback
		if seg.DurationSeconds > 0 {
			wait = adWait(seg.DurationSeconds)
		}
		p.timer = p.clock.AfterFunc(wait, func() { p.completeAd(gen) })
		p.showAd = true
		return []func(){
			p.video.Pause,
			func() { p.overlay.Present(seg, func() { p.completeAd(gen) }) },
		}
	}

	p.state = StateStopped
	p.index = -1
	p.gen++
	return []func(){p.video.Pause}
}

// teardownLocked cancels the current segment's timer and overlay.
func (p *Player) teardownLocked() []func() {
	var effects []func()
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.showAd {
		p.showAd = false
		effects = append(effects, p.overlay.Dismiss)
	}
	return effects
}

func (p *Player) currentLocked() (timeline.Segment, bool) {
	if p.state != StatePlaying || p.index < 0 || p.index >= len(p.queue) {
		return timeline.Segment{}, false
	}
	return p.queue[p.index], true
}

func (p *Player) statusLocked() Status {
	st := Status{State: p.state, Index: p.index, Total: len(p.queue)}
	if seg, ok := p.currentLocked(); ok {
		st.Segment = &seg
	}
	return st
}

func (p *Player) run(effects []func(), status Status) {
	for _, fn := range effects {
		fn()
	}
	if p.onChange != nil {
		p.onChange(status)
	}
}

func adWait(seconds float64) time.Duration {
	if seconds >= MaxAdDuration.Seconds() {
		return MaxAdDuration
	}
	return time.Duration(seconds * float64(time.Second))
}
