package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/idealad/adsplice/internal/player"
	"github.com/idealad/adsplice/internal/timeline"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxEventSize = 4096
)

// playerEvent is sent by the browser.
type playerEvent struct {
	Event string  `json:"event"`
	Time  float64 `json:"time"`
}

// playerCommand is sent to the browser.
type playerCommand struct {
	Cmd     string            `json:"cmd"`
	Time    *float64          `json:"time,omitempty"`
	Segment *timeline.Segment `json:"segment,omitempty"`
	Status  *player.Status    `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
}

// remotePlayer drives a browser's video element and ad overlay over a
// websocket. Writes are serialized; gorilla connections allow one writer.
type remotePlayer struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	adDone func()
}

func (c *remotePlayer) send(cmd playerCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(cmd); err != nil {
		c.logger.Debug("player command not delivered", "cmd", cmd.Cmd, "error", err)
	}
}

func (c *remotePlayer) Seek(seconds float64) {
	c.send(playerCommand{Cmd: "seek", Time: &seconds})
}

func (c *remotePlayer) Play()  { c.send(playerCommand{Cmd: "play"}) }
func (c *remotePlayer) Pause() { c.send(playerCommand{Cmd: "pause"}) }

func (c *remotePlayer) Present(seg timeline.Segment, done func()) {
	c.mu.Lock()
	c.adDone = done
	c.mu.Unlock()
	c.send(playerCommand{Cmd: "overlay", Segment: &seg})
}

func (c *remotePlayer) Dismiss() {
	c.mu.Lock()
	c.adDone = nil
	c.mu.Unlock()
	c.send(playerCommand{Cmd: "dismiss"})
}

// adEnded reports that the overlay's media finished playing.
func (c *remotePlayer) adEnded() {
	c.mu.Lock()
	done := c.adDone
	c.adDone = nil
	c.mu.Unlock()
	if done != nil {
		done()
	}
}

func playerHandler(cfg ServerConfig) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || isAllowedOrigin(origin, cfg.AllowedOrigins)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsMaxEventSize)

		remote := &remotePlayer{conn: conn, logger: cfg.Logger}
		p := s.AttachPlayer(player.Options{
			Video:   remote,
			Overlay: remote,
			OnChange: func(st player.Status) {
				remote.send(playerCommand{Cmd: "status", Status: &st})
			},
		})
		defer s.DetachPlayer(p)

		status := p.Status()
		remote.send(playerCommand{Cmd: "status", Status: &status})

		for {
			var ev playerEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					cfg.Logger.Debug("player connection closed", "error", err)
				}
				return
			}

			switch ev.Event {
			case "play":
				if err := s.Play(p); err != nil {
					msg := err.Error()
					if errors.Is(err, player.ErrNothingSelected) {
						msg = "nothing selected"
					}
					remote.send(playerCommand{Cmd: "error", Message: msg})
				}
			case "stop":
				p.Stop()
			case "timeupdate":
				p.TimeUpdate(ev.Time)
			case "ended":
				p.VideoEnded()
			case "ad_ended":
				remote.adEnded()
			default:
				remote.send(playerCommand{Cmd: "error", Message: "unknown event " + ev.Event})
			}
		}
	}
}
