package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

const refreshInterval = 5 * time.Second

// Counter reports a count shown in the tray menu.
type Counter func(ctx context.Context) (int, error)

type Tray struct {
	sessions     Counter
	compositions Counter
	addr         string
	logger       *slog.Logger

	statusItem       *systray.MenuItem
	sessionsItem     *systray.MenuItem
	compositionsItem *systray.MenuItem

	mu   sync.Mutex
	done chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Sessions     Counter
	Compositions Counter
	Addr         string
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		sessions:     cfg.Sessions,
		compositions: cfg.Compositions,
		addr:         cfg.Addr,
		logger:       cfg.Logger,
		onQuit:       cfg.OnQuit,
		done:         make(chan struct{}),
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("Adsplice")
	systray.SetTooltip("Adsplice " + t.addr)

	t.statusItem = systray.AddMenuItem("Listening on "+t.addr, "API address")
	t.statusItem.Disable()

	t.sessionsItem = systray.AddMenuItem("Sessions: 0", "Open editing sessions")
	t.sessionsItem.Disable()

	t.compositionsItem = systray.AddMenuItem("Compositions: 0", "Stored compositions")
	t.compositionsItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Adsplice")

	go t.refreshLoop()

	go func() {
		<-quitItem.ClickedCh
		t.logger.Info("quit requested from tray")
		if t.onQuit != nil {
			t.onQuit()
		}
		systray.Quit()
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	t.refresh()
	for {
		select {
		case <-ticker.C:
			t.refresh()
		case <-t.done:
			return
		}
	}
}

func (t *Tray) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.count(ctx, t.sessions, "sessions"); ok {
		t.sessionsItem.SetTitle(fmt.Sprintf("Sessions: %d", n))
	}
	if n, ok := t.count(ctx, t.compositions, "compositions"); ok {
		t.compositionsItem.SetTitle(fmt.Sprintf("Compositions: %d", n))
	}
}

func (t *Tray) count(ctx context.Context, c Counter, what string) (int, bool) {
	if c == nil {
		return 0, false
	}
	n, err := c(ctx)
	if err != nil {
		t.logger.Warn("tray refresh failed", "what", what, "error", err)
		return 0, false
	}
	return n, true
}

func (t *Tray) Quit() {
	systray.Quit()
}
