package detector

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// fakeRunner returns a fixed output and records the input it was given.
type fakeRunner struct {
	in, out  []int
	output   []float32
	err      error
	lastFill []float32
	closed   bool
}

func (f *fakeRunner) Name() string       { return "fake" }
func (f *fakeRunner) InputShape() []int  { return f.in }
func (f *fakeRunner) OutputShape() []int { return f.out }
func (f *fakeRunner) WarmUp(ctx context.Context) error {
	_, err := f.Run(ctx, func([]float32) error { return nil })
	return err
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, fill func([]float32) error) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := 1
	for _, d := range f.in {
		n *= d
	}
	f.lastFill = make([]float32, n)
	if err := fill(f.lastFill); err != nil {
		return nil, err
	}
	return f.output, nil
}

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// twoFishRows holds two separated fish and one low-objectness row, in
// normalized coordinates for a single-class model.
var twoFishRows = []float32{
	0.25, 0.5, 0.125, 0.125, 0.95, 1.0,
	0.75, 0.5, 0.125, 0.125, 0.90, 0.99,
	0.50, 0.5, 0.500, 0.500, 0.50, 1.0,
}

func TestLetterbox(t *testing.T) {
	img := uniformImage(1280, 720, color.NRGBA{R: 255, A: 255})

	canvas, lb := letterbox(img, 640)

	assert.Equal(t, image.Rect(0, 0, 640, 640), canvas.Rect)
	assert.InDelta(t, 0.5, lb.gain, 1e-12)
	assert.InDelta(t, 0.0, lb.padX, 1e-12)
	assert.InDelta(t, 140.0, lb.padY, 1e-12)

	assert.Equal(t, padColor, canvas.NRGBAAt(0, 0))
	assert.Equal(t, padColor, canvas.NRGBAAt(320, 139))
	inside := canvas.NRGBAAt(320, 320)
	assert.GreaterOrEqual(t, inside.R, uint8(254))
	assert.Equal(t, uint8(0), inside.G)
}

func TestScaleBox(t *testing.T) {
	lb := newLetterboxInfo(1280, 720, 640)

	assert.Equal(t, Box{X1: 200, Y1: 200, X2: 600, Y2: 600}, lb.scaleBox(100, 240, 300, 440))
	// clipped to the original image
	assert.Equal(t, Box{X1: 0, Y1: 0, X2: 1280, Y2: 720}, lb.scaleBox(-5, 0, 700, 700))
	// 100.25 px maps to 200.5, which rounds to even
	assert.Equal(t, 200, lb.scaleBox(100.25, 240, 300, 440).X1)
}

func TestFillTensor(t *testing.T) {
	canvas, _ := letterbox(uniformImage(64, 32, color.NRGBA{B: 255, A: 255}), 64)

	nhwc := make([]float32, 64*64*3)
	fillTensor(nhwc, canvas, false)
	assert.InDelta(t, 114.0/255, nhwc[0], 1e-6)
	center := (32*64 + 32) * 3
	assert.InDelta(t, 0.0, nhwc[center], 1e-6)
	assert.InDelta(t, 1.0, nhwc[center+2], 1e-2)

	nchw := make([]float32, 64*64*3)
	fillTensor(nchw, canvas, true)
	plane := 64 * 64
	assert.InDelta(t, 1.0, nchw[2*plane+32*64+32], 1e-2)
}

func TestNMS(t *testing.T) {
	cands := []candidate{
		{x1: 0, y1: 0, x2: 100, y2: 100, score: 0.90},
		{x1: 10, y1: 10, x2: 110, y2: 110, score: 0.95},
		{x1: 300, y1: 300, x2: 400, y2: 400, score: 0.86},
		{x1: 0, y1: 0, x2: 100, y2: 100, score: 0.97, class: 1},
	}

	keep := nms(cands, 0.45, 30000, 300)

	require.Len(t, keep, 3)
	assert.InDelta(t, 0.97, keep[0].score, 1e-6, "other class is not suppressed")
	assert.InDelta(t, 0.95, keep[1].score, 1e-6)
	assert.InDelta(t, 0.86, keep[2].score, 1e-6)

	assert.Len(t, nms(cands, 0.45, 30000, 1), 1)
	assert.Nil(t, nms(nil, 0.45, 30000, 300))
}

func TestPostprocessThresholds(t *testing.T) {
	cfg := DefaultConfig()

	survivors := postprocess(twoFishRows, 6, cfg)
	require.Len(t, survivors, 2)
	assert.Greater(t, survivors[0].score, survivors[1].score)
	assert.InDelta(t, 120, survivors[0].x1, 1e-3)
	assert.InDelta(t, 360, survivors[0].y2, 1e-3)

	// a class score that pulls obj*cls under the threshold drops the row
	weak := []float32{0.5, 0.5, 0.1, 0.1, 0.9, 0.9}
	assert.Empty(t, postprocess(weak, 6, cfg))

	// only class 0 is kept by default
	otherClass := []float32{0.5, 0.5, 0.1, 0.1, 0.99, 0.1, 0.99}
	assert.Empty(t, postprocess(otherClass, 7, cfg))
	cfg.Classes = nil
	assert.Len(t, postprocess(otherClass, 7, cfg), 1)
}

func TestTieBreakPolicies(t *testing.T) {
	img := uniformImage(1280, 720, color.NRGBA{A: 255})

	tests := []struct {
		policy TieBreak
		want   Box
		conf   float64
	}{
		{TieBreakLast, Box{X1: 880, Y1: 280, X2: 1040, Y2: 440}, 0.891},
		{TieBreakHighestConfidence, Box{X1: 240, Y1: 280, X2: 400, Y2: 440}, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			runner := &fakeRunner{in: []int{1, 640, 640, 3}, out: []int{1, 3, 6}, output: twoFishRows}
			cfg := DefaultConfig()
			cfg.TieBreak = tt.policy

			d, err := newTFLiteDetector(runner, cfg, logger.NewDiscardLogger())
			require.NoError(t, err)

			det, err := d.Detect(context.Background(), img)
			require.NoError(t, err)
			assert.True(t, det.Present)
			assert.Equal(t, tt.want, det.Box)
			assert.InDelta(t, tt.conf, det.Confidence, 1e-5)
			assert.InDelta(t, 114.0/255, runner.lastFill[0], 1e-6)
		})
	}
}

func TestDetectNothingFound(t *testing.T) {
	runner := &fakeRunner{
		in:     []int{1, 640, 640, 3},
		out:    []int{1, 1, 6},
		output: []float32{0.5, 0.5, 0.1, 0.1, 0.2, 1.0},
	}
	d, err := newTFLiteDetector(runner, DefaultConfig(), logger.NewDiscardLogger())
	require.NoError(t, err)

	det, err := d.Detect(context.Background(), uniformImage(100, 100, color.NRGBA{A: 255}))
	require.NoError(t, err)
	assert.False(t, det.Present)
}

func TestTransposedOutput(t *testing.T) {
	// ten boxes laid out as [1, 6, 10]
	rows := append(append([]float32(nil), twoFishRows...), make([]float32, 7*6)...)
	transposed := transpose(rows, 10, 6)
	runner := &fakeRunner{in: []int{1, 3, 640, 640}, out: []int{1, 6, 10}, output: transposed}

	d, err := newTFLiteDetector(runner, DefaultConfig(), logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.True(t, d.nchw)
	assert.True(t, d.transposed)

	det, err := d.Detect(context.Background(), uniformImage(1280, 720, color.NRGBA{A: 255}))
	require.NoError(t, err)
	assert.Equal(t, Box{X1: 880, Y1: 280, X2: 1040, Y2: 440}, det.Box)
}

func TestShapeValidation(t *testing.T) {
	_, err := newTFLiteDetector(&fakeRunner{in: []int{1, 320, 320, 3}, out: []int{1, 10, 6}}, DefaultConfig(), logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))

	_, err = newTFLiteDetector(&fakeRunner{in: []int{1, 640, 640, 3}, out: []int{1, 10}}, DefaultConfig(), logger.NewDiscardLogger())
	require.Error(t, err)
}

func TestDetectPropagatesRunnerErrors(t *testing.T) {
	timeout := errors.New(context.DeadlineExceeded).Category(errors.CategoryTimeout).Build()
	runner := &fakeRunner{in: []int{1, 640, 640, 3}, out: []int{1, 1, 6}, err: timeout}
	d, err := newTFLiteDetector(runner, DefaultConfig(), logger.NewDiscardLogger())
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), uniformImage(10, 10, color.NRGBA{A: 255}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, d.Close())
	assert.True(t, runner.closed)
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("highest")
	require.NoError(t, err)
	assert.Equal(t, TieBreakHighestConfidence, tb)

	tb, err = ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, TieBreakLast, tb)

	_, err = ParseTieBreak("random")
	assert.Error(t, err)
}
