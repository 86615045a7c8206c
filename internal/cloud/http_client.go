package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/timeline"
)

// ErrInvalidResponse is returned when a 2xx response body cannot be decoded.
var ErrInvalidResponse = errors.New("invalid response body")

// APIError represents a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPClient is the real client for the video-intelligence API.
// Outbound calls share one token bucket so bursts of uploads stay within
// the service's request quota.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, apiKey string, rps float64, logger *slog.Logger) *HTTPClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.WithComponent(logger, "cloud"),
	}
}

func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, req)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	var result UploadResult
	if err := c.do(ctx, http.MethodPost, "/tasks", mw.FormDataContentType(), pr, &result); err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("upload %s: %w", req.Filename, err)
	}
	if result.MediaID() == "" {
		return nil, fmt.Errorf("upload %s: %w: missing media id", req.Filename, ErrInvalidResponse)
	}

	c.logger.Info("media registered", "filename", req.Filename, "media_id", result.MediaID())
	return &result, nil
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest) error {
	if err := mw.WriteField("index_id", req.IndexID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("video_file", req.Filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, req.Body)
	return err
}

func (c *HTTPClient) Analyze(ctx context.Context, mediaID string) ([]timeline.AISegment, error) {
	body, err := json.Marshal(analyzeRequest{VideoID: mediaID})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	var resp analyzeResponse
	if err := c.do(ctx, http.MethodPost, "/segments", "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", mediaID, err)
	}
	return resp.Data, nil
}

func (c *HTTPClient) Score(ctx context.Context, req ScoreRequest) (*Score, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	var score Score
	if err := c.do(ctx, http.MethodPost, "/confidence", "application/json", bytes.NewReader(body), &score); err != nil {
		return nil, fmt.Errorf("score ad %s: %w", req.AdID, err)
	}
	if score.Confidence < 0 || score.Confidence > 100 {
		return nil, fmt.Errorf("score ad %s: %w: confidence %v out of range", req.AdID, ErrInvalidResponse, score.Confidence)
	}
	return &score, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	c.logger.Debug("cloud request", "method", method, "path", path, "api_key", logging.SanitizeToken(c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(truncate(respBody, 4096))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
