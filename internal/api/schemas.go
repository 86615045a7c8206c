package api

import (
	"github.com/idealad/adsplice/internal/session"
	"github.com/idealad/adsplice/internal/upload"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	Sessions int    `json:"sessions"`
	Storage  string `json:"storage"`
	Cloud    string `json:"cloud"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type SessionResponse = session.Snapshot

type UploadResponse struct {
	Items []upload.Item `json:"items"`
}

type DurationRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

type WindowRequest struct {
	Seconds float64 `json:"seconds"`
}

type MoveRequest struct {
	Target *int `json:"target"`
}

type ScoreRequest struct {
	SegmentIndex int `json:"segment_index"`
}

// StitchErrorResponse is the body of a failed create-stitched-video call.
type StitchErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
