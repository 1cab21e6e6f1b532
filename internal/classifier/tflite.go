package classifier

import (
	"context"
	"image"
	"time"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/tfmodel"
)

// runner is the subset of tfmodel.Model used by the classifier.
type runner interface {
	Name() string
	InputShape() []int
	OutputShape() []int
	Run(ctx context.Context, fill func(input []float32) error) ([]float32, error)
	WarmUp(ctx context.Context) error
	Close() error
}

// TFLiteClassifier runs a MobileNetV2 style TFLite model.
type TFLiteClassifier struct {
	model  runner
	labels []string
	prep   Preprocessing
	log    logger.Logger
}

// NewTFLite loads the model at path. The model output length must match the
// number of labels.
func NewTFLite(path string, threads int, useXNNPACK bool, labels []string, prep Preprocessing, log logger.Logger) (*TFLiteClassifier, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	model, err := tfmodel.Load(tfmodel.Options{
		Name:       "classifier",
		Path:       path,
		Threads:    threads,
		UseXNNPACK: useXNNPACK,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	c, err := newTFLiteClassifier(model, labels, prep, log)
	if err != nil {
		_ = model.Close()
		return nil, err
	}
	return c, nil
}

func newTFLiteClassifier(model runner, labels []string, prep Preprocessing, log logger.Logger) (*TFLiteClassifier, error) {
	in := model.InputShape()
	if prep.InputSize <= 0 && len(in) == 4 {
		prep.InputSize = in[1]
	}
	if len(in) != 4 || in[1] != prep.InputSize || in[2] != prep.InputSize || in[3] != 3 {
		return nil, errors.Newf("unexpected classifier input tensor shape %v", in).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("input_size", prep.InputSize).
			Build()
	}

	out := model.OutputShape()
	if len(out) == 0 || out[len(out)-1] != len(labels) {
		return nil, errors.Newf("classifier output shape %v does not match %d labels", out, len(labels)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}

	return &TFLiteClassifier{
		model:  model,
		labels: labels,
		prep:   prep,
		log:    log.Module("classifier"),
	}, nil
}

// Name implements Classifier.
func (c *TFLiteClassifier) Name() string { return c.model.Name() }

// Labels implements Classifier.
func (c *TFLiteClassifier) Labels() []string { return append([]string(nil), c.labels...) }

// WarmUp runs one inference on a zero input.
func (c *TFLiteClassifier) WarmUp(ctx context.Context) error { return c.model.WarmUp(ctx) }

// Close releases the interpreter.
func (c *TFLiteClassifier) Close() error { return c.model.Close() }

// Classify implements Classifier.
func (c *TFLiteClassifier) Classify(ctx context.Context, img image.Image) (Classification, error) {
	start := time.Now()

	scores, err := c.model.Run(ctx, func(input []float32) error {
		c.prep.fillInput(input, img)
		return nil
	})
	if err != nil {
		return Classification{}, err
	}
	if len(scores) != len(c.labels) {
		return Classification{}, errors.Newf("classifier returned %d scores for %d labels", len(scores), len(c.labels)).
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	result := pick(scores, c.labels, c.prep.ApplySoftmax)
	c.log.Debug("classification complete",
		logger.String("label", result.Label),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}
