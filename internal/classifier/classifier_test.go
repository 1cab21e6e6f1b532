package classifier

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

type fakeRunner struct {
	in, out  []int
	scores   []float32
	lastFill []float32
}

func (f *fakeRunner) Name() string                     { return "fake" }
func (f *fakeRunner) InputShape() []int                { return f.in }
func (f *fakeRunner) OutputShape() []int               { return f.out }
func (f *fakeRunner) WarmUp(ctx context.Context) error { return nil }
func (f *fakeRunner) Close() error                     { return nil }

func (f *fakeRunner) Run(ctx context.Context, fill func([]float32) error) ([]float32, error) {
	f.lastFill = make([]float32, f.in[1]*f.in[2]*f.in[3])
	if err := fill(f.lastFill); err != nil {
		return nil, err
	}
	return f.scores, nil
}

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 50, 30))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestDefaultLabels(t *testing.T) {
	labels := DefaultLabels()
	require.Len(t, labels, 15)
	assert.Equal(t, "Bawal Emas", labels[0])
	assert.Equal(t, "Siakap", labels[12])
	assert.Equal(t, "Tilapia Merah", labels[14])
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("A\n\n B \nC\n"), 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = LoadLabels(empty)
	assert.Error(t, err)

	labels, err = LoadLabels("")
	require.NoError(t, err)
	assert.Len(t, labels, 15)
}

func TestPreprocessChannelOrder(t *testing.T) {
	img := solid(color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	bgr := make([]float32, 4*4*3)
	Preprocessing{InputSize: 4, ChannelOrder: BGR}.fillInput(bgr, img)
	assert.InDelta(t, -1.0, bgr[0], 1e-6, "blue first")
	assert.InDelta(t, -1.0, bgr[1], 1e-6)
	assert.InDelta(t, 1.0, bgr[2], 1e-6, "red last")

	rgb := make([]float32, 4*4*3)
	Preprocessing{InputSize: 4, ChannelOrder: RGB}.fillInput(rgb, img)
	assert.InDelta(t, 1.0, rgb[0], 1e-6)
	assert.InDelta(t, -1.0, rgb[2], 1e-6)
}

func TestParseChannelOrder(t *testing.T) {
	assert.Equal(t, RGB, ParseChannelOrder("RGB"))
	assert.Equal(t, BGR, ParseChannelOrder("bgr"))
	assert.Equal(t, BGR, ParseChannelOrder(""))
}

func TestArgmaxTiesPickLowestIndex(t *testing.T) {
	assert.Equal(t, 1, argmax([]float32{0.1, 0.4, 0.4, 0.1}))
	assert.Equal(t, 0, argmax([]float32{0.5}))
}

func TestSoftmax(t *testing.T) {
	out := softmax([]float32{1, 2, 3})
	var sum float32
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, out[2], out[1])
	assert.InDelta(t, 0.6652, out[2], 1e-3)
}

func TestPickClampsConfidence(t *testing.T) {
	labels := []string{"a", "b"}

	c := pick([]float32{2.5, 0.1}, labels, false)
	assert.Equal(t, "a", c.Label)
	assert.InDelta(t, 1.0, c.Confidence, 1e-9)

	c = pick([]float32{-3, -1}, labels, false)
	assert.Equal(t, "b", c.Label)
	assert.InDelta(t, 0.0, c.Confidence, 1e-9)

	c = pick([]float32{-3, -1}, labels, true)
	assert.Equal(t, 1, c.Index)
	assert.InDelta(t, 0.8808, c.Confidence, 1e-3)
}

func TestTFLiteClassify(t *testing.T) {
	scores := make([]float32, 15)
	scores[12] = 0.93
	scores[3] = 0.05
	runner := &fakeRunner{in: []int{1, 224, 224, 3}, out: []int{1, 15}, scores: scores}

	c, err := newTFLiteClassifier(runner, DefaultLabels(), Preprocessing{InputSize: 224}, logger.NewDiscardLogger())
	require.NoError(t, err)

	img := solid(color.NRGBA{R: 10, G: 20, B: 255, A: 255})
	first, err := c.Classify(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "Siakap", first.Label)
	assert.Equal(t, 12, first.Index)
	assert.InDelta(t, 0.93, first.Confidence, 1e-6)
	// BGR: blue channel of 255 maps to 1.0 in slot 0
	assert.InDelta(t, 1.0, runner.lastFill[0], 1e-6)

	second, err := c.Classify(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// tensorRunner derives its scores from the input tensor, so any drift in
// preprocessing shows up in the result.
type tensorRunner struct {
	fakeRunner
	fills [][]float32
}

func (r *tensorRunner) Run(ctx context.Context, fill func([]float32) error) ([]float32, error) {
	if _, err := r.fakeRunner.Run(ctx, fill); err != nil {
		return nil, err
	}
	r.fills = append(r.fills, r.lastFill)
	scores := make([]float32, r.out[1])
	for i := range scores {
		scores[i] = (r.lastFill[(i*7919)%len(r.lastFill)] + 1) / 2
	}
	return scores, nil
}

func gradient() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 97, 61))
	for y := 0; y < 61; y++ {
		for x := 0; x < 97; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 4), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestClassifyIsReproducible(t *testing.T) {
	for _, softmax := range []bool{false, true} {
		t.Run(map[bool]string{false: "probabilities", true: "softmax"}[softmax], func(t *testing.T) {
			runner := &tensorRunner{fakeRunner: fakeRunner{in: []int{1, 224, 224, 3}, out: []int{1, 15}}}
			c, err := newTFLiteClassifier(runner, DefaultLabels(), Preprocessing{InputSize: 224, ApplySoftmax: softmax}, logger.NewDiscardLogger())
			require.NoError(t, err)

			img := gradient()
			want, err := c.Classify(context.Background(), img)
			require.NoError(t, err)
			require.NotEmpty(t, want.Label)

			for range 5 {
				got, err := c.Classify(context.Background(), img)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			for _, fill := range runner.fills[1:] {
				assert.Equal(t, runner.fills[0], fill)
			}
		})
	}
}

func TestTFLiteLabelMismatch(t *testing.T) {
	runner := &fakeRunner{in: []int{1, 224, 224, 3}, out: []int{1, 10}}
	_, err := newTFLiteClassifier(runner, DefaultLabels(), Preprocessing{InputSize: 224}, logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))

	runner = &fakeRunner{in: []int{1, 96, 96, 3}, out: []int{1, 15}}
	_, err = newTFLiteClassifier(runner, DefaultLabels(), Preprocessing{InputSize: 224}, logger.NewDiscardLogger())
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
}
