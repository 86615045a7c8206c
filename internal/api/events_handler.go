package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/idealad/adsplice/internal/events"
)

const defaultPingInterval = 25 * time.Second

// Subscriber is the read side of the event hub.
type Subscriber interface {
	Subscribe(topic string) (<-chan events.Event, func())
}

func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming not supported", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch, unsub := cfg.Hub.Subscribe(s.ID())
		defer unsub()

		initial, err := json.Marshal(s.Snapshot())
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.TypeSessionUpdated, initial)
		flusher.Flush()

		interval := cfg.PingInterval
		if interval <= 0 {
			interval = defaultPingInterval
		}
		ping := time.NewTicker(interval)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
				flusher.Flush()
			}
		}
	}
}
