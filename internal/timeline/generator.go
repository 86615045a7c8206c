package timeline

import (
	"fmt"
	"math"
	"strconv"

	"github.com/idealad/adsplice/internal/format"
)

const (
	// MinWindowSeconds is the smallest fixed window size accepted.
	MinWindowSeconds = 1
	// MaxDurationSeconds bounds main video and ad durations.
	MaxDurationSeconds = 24 * 60 * 60
	// MaxSegments bounds the number of video segments one timeline holds.
	MaxSegments = 10000
)

// WindowCount returns how many fixed windows of the given size cover
// [0, duration). Non-positive or non-finite inputs yield zero.
func WindowCount(duration, window float64) int {
	if !(duration > 0) || !(window > 0) || math.IsInf(duration, 1) {
		return 0
	}
	n := math.Ceil(duration / window)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// Generate builds the timeline for the given inputs. Advertisement segments
// come first, one per asset in library order. Video segments follow: one per
// valid AI scene when any are given, otherwise fixed windows of the given size
// covering [0, duration) with the last window clamped to duration. At most
// MaxSegments video segments are produced.
//
// IDs are derived from the inputs, so identical inputs yield identical
// segments and a segment for the same asset or window keeps its ID across
// regenerations.
func Generate(duration float64, aiSegments []AISegment, ads []AdAsset, window float64) []Segment {
	segments := make([]Segment, 0, len(ads)+len(aiSegments))

	for _, ad := range ads {
		segments = append(segments, adSegment(ad))
	}

	scenes := 0
	for i, ai := range aiSegments {
		if !ai.Valid() {
			continue
		}
		if scenes == MaxSegments {
			break
		}
		scenes++
		desc := ai.Description
		if desc == "" {
			desc = fmt.Sprintf("Scene %d", i+1)
		}
		segments = append(segments, Segment{
			ID:              "ai:" + strconv.Itoa(i) + ":" + span(ai.Start, ai.End),
			Kind:            KindAIDetected,
			Start:           ai.Start,
			End:             ai.End,
			DurationSeconds: ai.End - ai.Start,
			Description:     desc,
		})
	}
	if scenes > 0 {
		return segments
	}

	n := min(WindowCount(duration, window), MaxSegments)
	for i := 0; i < n; i++ {
		start := float64(i) * window
		if start >= duration {
			break
		}
		end := start + window
		if end > duration {
			end = duration
		}
		segments = append(segments, Segment{
			ID:              "win:" + span(start, end),
			Kind:            KindTimeWindow,
			Start:           start,
			End:             end,
			DurationSeconds: end - start,
			Description:     fmt.Sprintf("Segment %d (%s - %s)", i+1, format.Clock(start), format.Clock(end)),
		})
	}

	return segments
}

func adSegment(ad AdAsset) Segment {
	name := ad.Name
	if name == "" {
		name = ad.ID
	}
	return Segment{
		ID:              "ad:" + ad.ID,
		Kind:            KindAdvertisement,
		DurationSeconds: ad.DurationSeconds,
		Description:     "Ad: " + name,
		AssetID:         ad.ID,
	}
}

func span(start, end float64) string {
	return strconv.FormatFloat(start, 'f', -1, 64) + "-" + strconv.FormatFloat(end, 'f', -1, 64)
}
