// Package export renders a composed timeline as an edit decision list.
package export

import (
	"time"

	"github.com/idealad/adsplice/internal/timeline"
)

// Reel names used in event lines.
const (
	ReelMain = "MAIN"
	ReelAd   = "AD"
)

// Clip is one event of an edit list. In and Out are source positions in
// seconds within Media.
type Clip struct {
	Name    string
	Reel    string
	Media   string
	Comment string
	In      float64
	Out     float64
}

// Source describes where the main video lives.
type Source struct {
	Name string
	URL  string
}

// ClipsFromSegments turns a playback sequence into clips. Video segments cut
// from main; ads play their own media from 0 for their duration, or for
// defaultAd when it is unknown. Ads whose asset is missing are skipped and
// their segment ids returned.
func ClipsFromSegments(segs []timeline.Segment, main Source, ads []timeline.AdAsset, defaultAd time.Duration) ([]Clip, []string) {
	assets := make(map[string]timeline.AdAsset, len(ads))
	for _, a := range ads {
		assets[a.ID] = a
	}

	var clips []Clip
	var unresolved []string
	for _, seg := range segs {
		if seg.Kind.IsVideo() {
			if !seg.Playable() {
				unresolved = append(unresolved, seg.ID)
				continue
			}
			clips = append(clips, Clip{
				Name:    main.Name,
				Reel:    ReelMain,
				Media:   main.URL,
				Comment: seg.Description,
				In:      seg.Start,
				Out:     seg.End,
			})
			continue
		}

		asset, ok := assets[seg.AssetID]
		if !ok {
			unresolved = append(unresolved, seg.ID)
			continue
		}
		dur := asset.DurationSeconds
		if dur <= 0 {
			dur = defaultAd.Seconds()
		}
		clips = append(clips, Clip{
			Name:    asset.Name,
			Reel:    ReelAd,
			Media:   asset.URL,
			Comment: seg.Description,
			In:      0,
			Out:     dur,
		})
	}
	return clips, unresolved
}
