package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/upload"
)

const (
	defaultMaxUploadBytes = 2 << 30
	multipartMemory       = 32 << 20
)

var errNotVideo = errors.New("only video files are accepted")

func uploadAdsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		headers, ok := parseUpload(cfg, w, r, "files")
		if !ok {
			return
		}

		files, err := storeUploads(cfg, r, "ads", headers)
		if err != nil {
			writeUploadError(cfg, w, err)
			return
		}

		items, err := s.UploadAds(files...)
		if err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, UploadResponse{Items: items})
	}
}

func uploadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		headers, ok := parseUpload(cfg, w, r, "file")
		if !ok {
			return
		}
		if len(headers) != 1 {
			WriteError(w, http.StatusBadRequest, "exactly one file is required", "BAD_REQUEST")
			return
		}

		files, err := storeUploads(cfg, r, "main", headers)
		if err != nil {
			writeUploadError(cfg, w, err)
			return
		}

		item, err := s.UploadMainVideo(files[0])
		if err != nil {
			writeSessionError(cfg, w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, UploadResponse{Items: []upload.Item{item}})
	}
}

func parseUpload(cfg ServerConfig, w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, bool) {
	limit := cfg.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "upload too large", "TOO_LARGE")
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "invalid multipart form", "BAD_REQUEST")
		return nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("no files in field %q", field), "BAD_REQUEST")
		return nil, false
	}
	return headers, true
}

// storeUploads writes each part to the media store. On error the objects
// already written are removed again.
func storeUploads(cfg ServerConfig, r *http.Request, prefix string, headers []*multipart.FileHeader) ([]upload.File, error) {
	defer r.MultipartForm.RemoveAll()

	files := make([]upload.File, 0, len(headers))
	cleanup := func() {
		for _, f := range files {
			if err := cfg.Store.Delete(r.Context(), f.Key); err != nil {
				cfg.Logger.Warn("failed to remove partial upload", "error", err, "key", f.Key)
			}
		}
	}

	for _, fh := range headers {
		contentType := fh.Header.Get("Content-Type")
		if !isVideo(contentType, fh.Filename) {
			cleanup()
			return nil, fmt.Errorf("%w: %s", errNotVideo, fh.Filename)
		}

		src, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		key := media.NewKey(prefix, fh.Filename)
		obj, err := cfg.Store.Put(r.Context(), key, src, contentType)
		src.Close()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("store %s: %w", fh.Filename, err)
		}

		files = append(files, upload.File{
			Name:        fh.Filename,
			Key:         obj.Key,
			Size:        obj.Size,
			ContentType: obj.ContentType,
			URL:         obj.URL,
		})
	}
	return files, nil
}

func isVideo(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	if contentType != "" && contentType != "application/octet-stream" {
		return false
	}
	return strings.HasPrefix(media.ContentType(filename), "video/")
}

func writeUploadError(cfg ServerConfig, w http.ResponseWriter, err error) {
	if errors.Is(err, errNotVideo) {
		WriteError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_MEDIA")
		return
	}
	cfg.Logger.Error("failed to store upload", "error", err)
	WriteError(w, http.StatusInternalServerError, "failed to store upload", "INTERNAL_ERROR")
}
