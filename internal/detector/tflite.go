package detector

import (
	"context"
	"image"
	"time"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/tfmodel"
)

// runner is the subset of tfmodel.Model used by the detector.
type runner interface {
	Name() string
	InputShape() []int
	OutputShape() []int
	Run(ctx context.Context, fill func(input []float32) error) ([]float32, error)
	WarmUp(ctx context.Context) error
	Close() error
}

// TFLiteDetector runs a YOLOv5 TFLite export.
type TFLiteDetector struct {
	model      runner
	cfg        Config
	nchw       bool
	rows       int  // boxes per output
	stride     int  // values per box
	transposed bool // output is [1, stride, rows]
	log        logger.Logger
}

// NewTFLite loads the model at path and checks its tensor shapes against cfg.
func NewTFLite(path string, threads int, useXNNPACK bool, cfg Config, log logger.Logger) (*TFLiteDetector, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	model, err := tfmodel.Load(tfmodel.Options{
		Name:       "detector",
		Path:       path,
		Threads:    threads,
		UseXNNPACK: useXNNPACK,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	d, err := newTFLiteDetector(model, cfg, log)
	if err != nil {
		_ = model.Close()
		return nil, err
	}
	return d, nil
}

func newTFLiteDetector(model runner, cfg Config, log logger.Logger) (*TFLiteDetector, error) {
	cfg = cfg.withDefaults()
	d := &TFLiteDetector{model: model, cfg: cfg, log: log.Module("detector")}

	in := model.InputShape()
	switch {
	case len(in) == 4 && in[1] == cfg.InputSize && in[2] == cfg.InputSize && in[3] == 3:
	case len(in) == 4 && in[1] == 3 && in[2] == cfg.InputSize && in[3] == cfg.InputSize:
		d.nchw = true
	default:
		return nil, shapeError("input", in, cfg.InputSize)
	}

	out := model.OutputShape()
	if len(out) != 3 || out[0] != 1 {
		return nil, shapeError("output", out, cfg.InputSize)
	}
	d.rows, d.stride = out[1], out[2]
	// exports that put boxes last have far more boxes than values per box
	if out[1] >= 6 && out[1] < out[2] {
		d.rows, d.stride, d.transposed = out[2], out[1], true
	}
	if d.stride < 6 {
		return nil, shapeError("output", out, cfg.InputSize)
	}

	return d, nil
}

func shapeError(which string, shape []int, size int) error {
	return errors.Newf("unexpected detector %s tensor shape %v", which, shape).
		Component("detector").
		Category(errors.CategoryModelInit).
		Context("input_size", size).
		Build()
}

// Name implements Detector.
func (d *TFLiteDetector) Name() string { return d.model.Name() }

// WarmUp runs one inference on a zero input.
func (d *TFLiteDetector) WarmUp(ctx context.Context) error { return d.model.WarmUp(ctx) }

// Close releases the interpreter.
func (d *TFLiteDetector) Close() error { return d.model.Close() }

// Detect implements Detector.
func (d *TFLiteDetector) Detect(ctx context.Context, img image.Image) (Detection, error) {
	start := time.Now()
	canvas, lb := letterbox(img, d.cfg.InputSize)

	out, err := d.model.Run(ctx, func(input []float32) error {
		fillTensor(input, canvas, d.nchw)
		return nil
	})
	if err != nil {
		return Detection{}, err
	}

	rows := out
	if d.transposed {
		rows = transpose(out, d.stride, d.rows)
	}
	survivors := postprocess(rows, d.stride, d.cfg)
	det := selectDetection(survivors, d.cfg, lb)

	d.log.Debug("detection complete",
		logger.Int("survivors", len(survivors)),
		logger.Bool("present", det.Present),
		logger.Float64("confidence", det.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return det, nil
}

// transpose converts a [r][c] matrix to [c][r].
func transpose(m []float32, r, c int) []float32 {
	t := make([]float32, len(m))
	for i := range r {
		for j := range c {
			t[j*r+i] = m[i*c+j]
		}
	}
	return t
}
