// Package detector locates a fish in an image with a YOLOv5 style model.
package detector

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Box is an axis aligned rectangle in original image pixels.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is the outcome of running the detector on one image.
type Detection struct {
	Present    bool
	Box        Box
	Confidence float64
}

// Detector finds at most one fish in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Detection, error)
	// Name identifies the loaded model in logs and health output.
	Name() string
	Close() error
}

// TieBreak selects which surviving box is reported.
type TieBreak int

const (
	// TieBreakLast reports the last survivor in score order, which is the
	// lowest scoring box that passed suppression.
	TieBreakLast TieBreak = iota
	// TieBreakHighestConfidence reports the best scoring survivor.
	TieBreakHighestConfidence
)

// ParseTieBreak maps a config value to a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return TieBreakLast, nil
	case "highest", "best":
		return TieBreakHighestConfidence, nil
	}
	return TieBreakLast, fmt.Errorf("unknown tie-break policy %q", s)
}

func (t TieBreak) String() string {
	if t == TieBreakHighestConfidence {
		return "highest"
	}
	return "last"
}

// Config holds post-processing parameters shared by all backends.
type Config struct {
	InputSize       int     // square model input side
	Confidence      float64 // objectness and class score threshold
	IoU             float64 // suppression threshold
	Classes         []int   // kept class ids, empty keeps all
	MaxCandidates   int     // boxes considered by suppression
	MaxDetections   int     // survivors kept
	NormalizedBoxes bool    // output coordinates are in [0,1]
	TieBreak        TieBreak
}

// DefaultConfig returns the thresholds the detector was trained with.
func DefaultConfig() Config {
	return Config{
		InputSize:       640,
		Confidence:      0.85,
		IoU:             0.45,
		Classes:         []int{0},
		MaxCandidates:   30000,
		MaxDetections:   300,
		NormalizedBoxes: true,
		TieBreak:        TieBreakLast,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InputSize <= 0 {
		c.InputSize = d.InputSize
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.MaxDetections <= 0 {
		c.MaxDetections = d.MaxDetections
	}
	return c
}

// selectDetection applies the tie-break policy to survivors ordered by
// descending score and maps the chosen box back to the original image.
func selectDetection(survivors []candidate, cfg Config, lb letterboxInfo) Detection {
	if len(survivors) == 0 {
		return Detection{}
	}

	chosen := survivors[len(survivors)-1]
	if cfg.TieBreak == TieBreakHighestConfidence {
		chosen = survivors[0]
	}

	return Detection{
		Present:    true,
		Box:        lb.scaleBox(chosen.x1, chosen.y1, chosen.x2, chosen.y2),
		Confidence: float64(chosen.score),
	}
}
