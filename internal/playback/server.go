// Package playback serves stored media to the browser's video element.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/idealad/adsplice/internal/media"
)

// FileStore is a media store backed by local files, which can be served with
// byte ranges directly.
type FileStore interface {
	Path(key string) (string, error)
}

type Server struct {
	store  media.Store
	logger *slog.Logger
}

func NewServer(store media.Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// ServeMedia writes the object stored under key. Local objects are streamed
// with Range support; remote ones get a redirect to their presigned URL.
func (s *Server) ServeMedia(w http.ResponseWriter, r *http.Request, key string) error {
	if err := media.ValidateKey(key); err != nil {
		http.Error(w, "invalid media key", http.StatusBadRequest)
		return nil
	}

	fs, ok := s.store.(FileStore)
	if !ok {
		return s.redirect(r.Context(), w, r, key)
	}
	path, err := fs.Path(key)
	if err != nil {
		return err
	}
	return s.serveFile(w, r, path, media.ContentType(key))
}

func (s *Server) redirect(ctx context.Context, w http.ResponseWriter, r *http.Request, key string) error {
	url, err := s.store.URL(ctx, key)
	if err != nil {
		return fmt.Errorf("resolve media url: %w", err)
	}
	http.Redirect(w, r, url, http.StatusFound)
	return nil
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "media not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open media: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat media: %w", err)
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// a malformed header is ignored and the whole object is sent
		rng = nil
	}

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, file, size)
		}
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(rng.ContentLength(), 10))
	w.Header().Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		s.copy(w, file, rng.ContentLength())
	}
	return nil
}

func (s *Server) copy(w io.Writer, r io.Reader, n int64) {
	if _, err := io.CopyN(w, r, n); err != nil && s.logger != nil {
		s.logger.Debug("media copy interrupted", "error", err)
	}
}
