package detector

import (
	"slices"
)

// candidate is a box in model input pixels.
type candidate struct {
	x1, y1, x2, y2 float32
	score          float32
	class          int
}

// postprocess turns raw rows of (cx, cy, w, h, obj, cls...) into survivors
// ordered by descending score.
func postprocess(rows []float32, stride int, cfg Config) []candidate {
	if stride < 6 || len(rows) < stride {
		return nil
	}
	scale := float32(1)
	if cfg.NormalizedBoxes {
		scale = float32(cfg.InputSize)
	}
	conf := float32(cfg.Confidence)

	var cands []candidate
	for off := 0; off+stride <= len(rows); off += stride {
		row := rows[off : off+stride]
		obj := row[4]
		if obj <= conf {
			continue
		}

		best, bestScore := 0, row[5]*obj
		for c := 1; c < stride-5; c++ {
			if s := row[5+c] * obj; s > bestScore {
				best, bestScore = c, s
			}
		}
		if bestScore <= conf {
			continue
		}
		if len(cfg.Classes) > 0 && !slices.Contains(cfg.Classes, best) {
			continue
		}

		cx, cy := row[0]*scale, row[1]*scale
		hw, hh := row[2]*scale/2, row[3]*scale/2
		cands = append(cands, candidate{
			x1: cx - hw, y1: cy - hh, x2: cx + hw, y2: cy + hh,
			score: bestScore,
			class: best,
		})
	}

	return nms(cands, float32(cfg.IoU), cfg.MaxCandidates, cfg.MaxDetections)
}

// nms performs greedy suppression per class. The result is ordered by
// descending score.
func nms(cands []candidate, iouThreshold float32, maxCandidates, maxDetections int) []candidate {
	if len(cands) == 0 {
		return nil
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	if maxCandidates > 0 && len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}

	suppressed := make([]bool, len(cands))
	var keep []candidate
	for i := range cands {
		if suppressed[i] {
			continue
		}
		keep = append(keep, cands[i])
		if maxDetections > 0 && len(keep) == maxDetections {
			break
		}
		for j := i + 1; j < len(cands); j++ {
			if !suppressed[j] && cands[i].class == cands[j].class && iou(cands[i], cands[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func iou(a, b candidate) float32 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)
	iw, ih := max(0, ix2-ix1), max(0, iy2-iy1)
	inter := iw * ih
	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
