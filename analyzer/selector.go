package analyzer

import (
	"fmt"
	"math"
	"strings"

	cerrors "github.com/reelforge/clip-engine/errors"
)

// ClipDefinition is one selected clip window, ready for encoding.
type ClipDefinition struct {
	ClipID    string  `json:"clipId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	Scores    Scores  `json:"scores"`
}

// SelectClips picks the windows to encode: keep segments at or above
// minScore, best first, take at most clipCount, expand each to the target
// duration and drop any candidate overlapping an already accepted window.
// Returns InsufficientSegments when nothing survives.
func SelectClips(segments []AnalyzedSegment, minScore float64, clipCount int, clipDuration, assetDuration float64) ([]ClipDefinition, error) {
	candidates := make([]AnalyzedSegment, 0, len(segments))
	for _, seg := range segments {
		if seg.Scores.Combined >= minScore {
			candidates = append(candidates, seg)
		}
	}
	SortByScore(candidates)
	if len(candidates) > clipCount {
		candidates = candidates[:clipCount]
	}

	accepted := []ClipDefinition{}
	for _, seg := range candidates {
		start, end := expandWindow(seg.Start, seg.End, clipDuration, assetDuration)
		if overlapsAny(accepted, start, end) {
			continue
		}
		accepted = append(accepted, ClipDefinition{
			ClipID:    fmt.Sprintf("clip-%03d", len(accepted)),
			StartTime: start,
			EndTime:   end,
			Duration:  end - start,
			Score:     seg.Scores.Combined,
			Text:      strings.TrimSpace(seg.Text),
			Scores:    seg.Scores,
		})
	}
	if len(accepted) == 0 {
		return nil, cerrors.New(cerrors.CodeInsufficientSegments, "no segments qualified for clips, try lowering the minimum score")
	}
	return accepted, nil
}

// expandWindow widens [start, end] to the target duration with symmetric
// padding. When an asset boundary absorbs part of the padding, the other
// end is pushed to make up the difference.
func expandWindow(start, end, target, assetDuration float64) (float64, float64) {
	if end-start >= target {
		return start, start + target
	}
	pad := (target - (end - start)) / 2
	s := math.Max(0, start-pad)
	e := math.Min(assetDuration, end+pad)
	if e-s < target {
		if s == 0 {
			e = math.Min(assetDuration, target)
		} else if e == assetDuration {
			s = math.Max(0, assetDuration-target)
		}
	}
	return s, e
}

func overlapsAny(accepted []ClipDefinition, start, end float64) bool {
	for _, c := range accepted {
		if start < c.EndTime && c.StartTime < end {
			return true
		}
	}
	return false
}
