package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/idealad/adsplice/internal/logging"
)

// ErrRejected is returned when the back end answers with success=false.
var ErrRejected = errors.New("stitch request rejected")

// HTTPError represents a non-2xx response from a remote stitch back end.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("stitch failed: HTTP %d: %s", e.StatusCode, e.Message)
}

// Stitcher is anything that can produce a composition.
type Stitcher interface {
	Stitch(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient calls a remote stitch back end over HTTP.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(url string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent(logger, "stitch-client"),
	}
}

func (c *HTTPClient) Stitch(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal stitch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	var out Response
	decodeErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = string(truncate(respBody, 512))
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode stitch response: %w", decodeErr)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}

	c.logger.Debug("stitch response received", "stitched_video_id", out.StitchedVideoID, "sequence", len(out.Sequence))
	return &out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
