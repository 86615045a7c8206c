package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const DefaultFrameRate = 30.0

// GenerateEDL renders clips as a CMX3600 edit list. Record times are laid
// out back to back from zero.
func GenerateEDL(clips []Clip, title string, frameRate float64) string {
	tc := newTimecoder(frameRate)

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if tc.drop {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var record float64
	for i, clip := range clips {
		dur := clip.Out - clip.In
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reel(clip.Reel), "V",
				tc.format(clip.In), tc.format(clip.Out), tc.format(record), tc.format(record+dur)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.Name),
		)
		if clip.Comment != "" {
			lines = append(lines, fmt.Sprintf("* COMMENT:  %s", clip.Comment))
		}
		if clip.Media != "" {
			lines = append(lines, fmt.Sprintf("* SOURCE FILE:  %s", clip.Media))
		}
		record += dur
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// ParseFrameRate reads a frame rate query value. Empty means DefaultFrameRate.
func ParseFrameRate(s string) (float64, error) {
	if s == "" {
		return DefaultFrameRate, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) || v > 120 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return v, nil
}

func reel(name string) string {
	if name == "" {
		return "AX"
	}
	if len(name) > 8 {
		return name[:8]
	}
	return name
}

type timecoder struct {
	rate float64
	fps  int
	drop bool
}

func newTimecoder(frameRate float64) timecoder {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		return timecoder{rate: DefaultFrameRate, fps: int(DefaultFrameRate)}
	}
	drop := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01
	return timecoder{rate: frameRate, fps: fps, drop: drop}
}

// format renders seconds as HH:MM:SS:FF, or HH:MM:SS;FF for drop frame.
func (t timecoder) format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if !t.drop {
		return framesToTimecode(int(math.Round(seconds*float64(t.fps))), t.fps, ":")
	}

	frames := int(math.Round(seconds * t.rate))
	dropped := t.fps / 15
	per10Min := int(math.Round(t.rate * 600))
	perMin := t.fps*60 - dropped

	tens := frames / per10Min
	rem := frames % per10Min
	frames += dropped * 9 * tens
	if rem > dropped {
		frames += dropped * ((rem - dropped) / perMin)
	}
	return framesToTimecode(frames, t.fps, ";")
}

func framesToTimecode(totalFrames, fps int, sep string) string {
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", hours, minutes, seconds, sep, frames)
}
