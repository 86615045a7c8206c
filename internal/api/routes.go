package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idealad/adsplice/internal/cloud"
	"github.com/idealad/adsplice/internal/session"
	"github.com/idealad/adsplice/internal/upload"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
	})

	r.Get("/health", healthHandler(cfg))
	r.Get("/media/*", mediaHandler(cfg))
	r.Head("/media/*", mediaHandler(cfg))

	r.Route("/api/create-stitched-video", func(r chi.Router) {
		r.MethodNotAllowed(stitchMethodNotAllowed)
		r.Post("/", createStitchedVideoHandler(cfg))
	})
	r.Get("/api/stitched-videos/{id}", getStitchedVideoHandler(cfg))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", createSessionHandler(cfg))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getSessionHandler(cfg))
			r.Delete("/", deleteSessionHandler(cfg))
			r.Post("/reset", resetSessionHandler(cfg))

			r.Group(func(r chi.Router) {
				if cfg.UploadLimiter != nil {
					r.Use(cfg.UploadLimiter.Middleware)
				}
				r.Post("/ads", uploadAdsHandler(cfg))
				r.Post("/video", uploadVideoHandler(cfg))
			})
			r.Delete("/ads", clearAdsHandler(cfg))
			r.Patch("/ads/{adID}", adDurationHandler(cfg))
			r.Delete("/ads/{adID}", removeAdHandler(cfg))
			r.Patch("/video", videoDurationHandler(cfg))
			r.Put("/window", windowHandler(cfg))

			r.Post("/segments/{segID}/toggle", toggleHandler(cfg))
			r.Post("/segments/{segID}/move", moveHandler(cfg))
			r.Post("/segments/{segID}/score", scoreHandler(cfg))

			r.Post("/compose", composeHandler(cfg))
			r.Get("/export.edl", exportEDLHandler(cfg))
			r.Get("/events", eventsHandler(cfg))
			r.Get("/player", playerHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  Version,
			UptimeS:  uptime,
			Sessions: cfg.Sessions.Count(),
			Storage:  cfg.StorageType,
			Cloud:    cfg.CloudMode,
		})
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if err := cfg.PlaybackServer.ServeMedia(w, r, key); err != nil {
			cfg.Logger.Error("media playback error", "error", err, "key", key)
			WriteError(w, http.StatusInternalServerError, "failed to serve media", "INTERNAL_ERROR")
		}
	}
}

func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := cfg.Sessions.Create()
		WriteJSON(w, http.StatusCreated, s.Snapshot())
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func deleteSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		s.Reset(r.Context())
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func clearAdsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		s.ClearAds(r.Context())
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func adDurationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req DurationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.SetAdDuration(chi.URLParam(r, "adID"), req.DurationSeconds); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func removeAdHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		if err := s.RemoveAd(r.Context(), chi.URLParam(r, "adID")); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func videoDurationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req DurationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.SetMainDuration(req.DurationSeconds); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func windowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req WindowRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.SetWindow(req.Seconds); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func toggleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		if err := s.ToggleSelect(chi.URLParam(r, "segID")); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func moveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req MoveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Target == nil {
			WriteError(w, http.StatusBadRequest, "target is required", "BAD_REQUEST")
			return
		}
		if err := s.Reorder(chi.URLParam(r, "segID"), *req.Target); err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

func scoreHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req ScoreRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		if req.SegmentIndex < 0 {
			WriteError(w, http.StatusBadRequest, "segment_index must not be negative", "BAD_REQUEST")
			return
		}
		score, err := s.Score(r.Context(), chi.URLParam(r, "segID"), req.SegmentIndex)
		if err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, score)
	}
}

func composeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		result, err := s.Compose(r.Context())
		if err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func lookupSession(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := cfg.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(cfg, w, err)
		return nil, false
	}
	return s, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func writeSessionError(cfg ServerConfig, w http.ResponseWriter, err error) {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
	case errors.Is(err, session.ErrSegmentNotFound):
		WriteError(w, http.StatusNotFound, "segment not found", "NOT_FOUND")
	case errors.Is(err, session.ErrAdNotFound):
		WriteError(w, http.StatusNotFound, "ad not found", "NOT_FOUND")
	case errors.Is(err, session.ErrNothingSelected):
		WriteError(w, http.StatusConflict, "nothing selected", "NOTHING_SELECTED")
	case errors.Is(err, session.ErrNoMainVideo):
		WriteError(w, http.StatusConflict, "no main video", "NO_MAIN_VIDEO")
	case errors.Is(err, session.ErrStale):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, session.ErrNotAnAd),
		errors.Is(err, session.ErrInvalidWindow),
		errors.Is(err, session.ErrInvalidDuration),
		errors.Is(err, session.ErrTooManySegments),
		errors.Is(err, upload.ErrNoFiles):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.As(err, &apiErr):
		cfg.Logger.Warn("upstream service error", "error", err, "status", apiErr.StatusCode)
		WriteError(w, http.StatusBadGateway, "upstream service error", "UPSTREAM_ERROR")
	default:
		cfg.Logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
