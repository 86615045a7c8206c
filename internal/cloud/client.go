// Package cloud talks to the video-intelligence service that registers
// uploaded media, detects scenes in the main video and scores how well an
// ad fits a video segment.
package cloud

import (
	"context"

	"github.com/idealad/adsplice/internal/timeline"
)

// Uploader registers a media file with the remote index.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// Analyzer returns the detected scenes of a registered video.
type Analyzer interface {
	Analyze(ctx context.Context, mediaID string) ([]timeline.AISegment, error)
}

// Scorer rates how well an ad fits one segment of the main video.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*Score, error)
}

type Client interface {
	Uploader
	Analyzer
	Scorer
}
