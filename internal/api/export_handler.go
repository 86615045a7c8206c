package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/idealad/adsplice/internal/export"
	"github.com/idealad/adsplice/internal/player"
	"github.com/idealad/adsplice/internal/session"
)

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}

		frameRate, err := export.ParseFrameRate(r.URL.Query().Get("fps"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		snap := s.Snapshot()
		selected := s.Selected()
		if len(selected) == 0 {
			writeSessionError(cfg, w, session.ErrNothingSelected)
			return
		}

		var src export.Source
		if snap.MainVideo != nil {
			src = export.Source{Name: snap.MainVideo.Name, URL: snap.MainVideo.URL}
		}
		clips, unresolved := export.ClipsFromSegments(selected, src, snap.Ads, player.DefaultAdDuration)
		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
			return
		}

		title := strings.TrimSpace(r.URL.Query().Get("title"))
		if title == "" && snap.MainVideo != nil {
			title = snap.MainVideo.Name
		}
		title = export.SanitizeName(title, 120)
		if title == "" {
			title = "adsplice"
		}

		if len(unresolved) > 0 {
			w.Header().Set("X-Unresolved-Segments", strings.Join(unresolved, ","))
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(title, ".edl")))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, export.GenerateEDL(clips, title, frameRate))
	}
}
