package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idealad/adsplice/internal/stitch"
)

const missingDataMessage = "Missing required data: mainVideo, adSegments, or sequence"

func stitchMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, MessageResponse{Message: "Method not allowed"})
}

func createStitchedVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stitch.Request
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
			WriteJSON(w, http.StatusBadRequest, StitchErrorResponse{Success: false, Message: "Invalid JSON body"})
			return
		}

		resp, err := cfg.Stitch.Stitch(r.Context(), req)
		switch {
		case errors.Is(err, stitch.ErrMissingData):
			WriteJSON(w, http.StatusBadRequest, StitchErrorResponse{Success: false, Message: missingDataMessage})
		case err != nil:
			cfg.Logger.Error("stitching failed", "error", err)
			WriteJSON(w, http.StatusInternalServerError, StitchErrorResponse{Success: false, Message: "Internal server error"})
		default:
			WriteJSON(w, http.StatusOK, resp)
		}
	}
}

func getStitchedVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := cfg.Stitch.Get(r.Context(), id)
		if err != nil {
			cfg.Logger.Error("failed to load stitched video", "error", err, "id", id)
			WriteError(w, http.StatusInternalServerError, "failed to load stitched video", "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "stitched video not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}
