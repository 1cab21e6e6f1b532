// Package classifier identifies the fish species in an image.
package classifier

import (
	"context"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Classification is the arg-max label of one image.
type Classification struct {
	Label      string
	Index      int
	Confidence float64 // in [0,1]
}

// Classifier always returns a label for a decodable image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Classification, error)
	Name() string
	Labels() []string
	Close() error
}

// ChannelOrder is the pixel channel order the model was trained on.
type ChannelOrder int

const (
	// BGR matches images read with OpenCV, which is how the species model was fed.
	BGR ChannelOrder = iota
	RGB
)

// ParseChannelOrder maps "bgr" or "rgb" to a ChannelOrder, defaulting to BGR.
func ParseChannelOrder(s string) ChannelOrder {
	if strings.EqualFold(strings.TrimSpace(s), "rgb") {
		return RGB
	}
	return BGR
}

// Preprocessing describes how an image becomes a model input.
type Preprocessing struct {
	InputSize    int
	ChannelOrder ChannelOrder
	ApplySoftmax bool
}

// fillInput resizes img to size x size and writes NHWC floats scaled to
// [-1,1] in the configured channel order.
func (p Preprocessing) fillInput(dst []float32, img image.Image) {
	size := p.InputSize
	resized := imaging.Resize(img, size, size, imaging.Linear)

	for y := range size {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+size*4]
		for x := range size {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			i := (y*size + x) * 3
			if p.ChannelOrder == BGR {
				r, b = b, r
			}
			dst[i] = float32(r)/127.5 - 1
			dst[i+1] = float32(g)/127.5 - 1
			dst[i+2] = float32(b)/127.5 - 1
		}
	}
}

// argmax returns the first index of the largest value.
func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func softmax(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	peak := v[argmax(v)]
	out := make([]float32, len(v))
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - peak))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// pick turns a score vector into a Classification.
func pick(scores []float32, labels []string, applySoftmax bool) Classification {
	if applySoftmax {
		scores = softmax(scores)
	}
	i := argmax(scores)
	conf := float64(scores[i])
	if math.IsNaN(conf) {
		conf = 0
	}
	return Classification{
		Label:      labels[i],
		Index:      i,
		Confidence: math.Max(0, math.Min(1, conf)),
	}
}
