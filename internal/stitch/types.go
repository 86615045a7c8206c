// Package stitch implements the composition back end: it accepts a main
// video, the selected ads and the requested sequence, lays the sequence out
// contiguously and answers with a playable result. No media is re-encoded;
// the result URL is the main video itself.
package stitch

const (
	ItemVideo = "video"
	ItemAd    = "ad"
)

type VideoSegment struct {
	ID          string  `json:"id"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
}

type MainVideo struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	URL      string         `json:"url"`
	Duration float64        `json:"duration"`
	Segments []VideoSegment `json:"segments"`
}

type AdData struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

type AdSegment struct {
	ID          string   `json:"id"`
	AdData      AdData   `json:"adData"`
	Duration    float64  `json:"duration"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Type        string   `json:"type"`
}

// SequenceItem is one slot of the composed output. StartTime and EndTime
// are offsets within the output, not within the source media.
type SequenceItem struct {
	ID        string  `json:"id"`
	Order     int     `json:"order"`
	Type      string  `json:"type"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration,omitempty"`
	Processed bool    `json:"processed,omitempty"`
}

type Request struct {
	MainVideo  *MainVideo             `json:"mainVideo"`
	AdSegments []AdSegment            `json:"adSegments"`
	Sequence   []SequenceItem         `json:"sequence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type ProcessingResults struct {
	VideoSegments  int     `json:"videoSegments"`
	AdSegments     int     `json:"adSegments"`
	Transitions    int     `json:"transitions"`
	Quality        string  `json:"quality"`
	Format         string  `json:"format"`
	Codec          string  `json:"codec"`
	TotalDuration  float64 `json:"totalDuration"`
	ProcessingTime string  `json:"processingTime"`
}

type Response struct {
	Success           bool                   `json:"success"`
	Message           string                 `json:"message,omitempty"`
	StitchedVideoID   string                 `json:"stitchedVideoId,omitempty"`
	StitchedVideoURL  string                 `json:"stitchedVideoUrl,omitempty"`
	Sequence          []SequenceItem         `json:"sequence,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	ProcessingResults *ProcessingResults     `json:"processingResults,omitempty"`
}
