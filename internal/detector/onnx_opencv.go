//go:build opencv

package detector

import (
	"context"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// ONNXDetector runs a YOLOv5 ONNX export through the OpenCV DNN module.
type ONNXDetector struct {
	net  gocv.Net
	name string
	cfg  Config
	log  logger.Logger

	// sem serializes Forward calls, gocv.Net is not safe for concurrent use
	sem       chan struct{}
	closeOnce sync.Once
}

// NewONNX loads an ONNX model. ONNX exports emit box coordinates in pixels.
func NewONNX(path string, cfg Config, log logger.Logger) (Detector, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, errors.Newf("cannot load ONNX model").
			Component("detector").
			Category(errors.CategoryModelLoad).
			ModelContext(path, "detector").
			Build()
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()
		return nil, errors.New(err).Component("detector").Category(errors.CategoryModelInit).Build()
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()
		return nil, errors.New(err).Component("detector").Category(errors.CategoryModelInit).Build()
	}

	cfg = cfg.withDefaults()
	cfg.NormalizedBoxes = false
	return &ONNXDetector{
		net:  net,
		name: "detector-onnx",
		cfg:  cfg,
		log:  log.Module("detector"),
		sem:  make(chan struct{}, 1),
	}, nil
}

// Name implements Detector.
func (d *ONNXDetector) Name() string { return d.name }

// Detect implements Detector.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) (Detection, error) {
	start := time.Now()
	canvas, lb := letterbox(img, d.cfg.InputSize)

	mat, err := gocv.ImageToMatRGB(canvas)
	if err != nil {
		return Detection{}, errors.New(err).Component("detector").Category(errors.CategoryInference).Build()
	}
	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	_ = mat.Close()

	// blob belongs to the forward pass from here on, a timed out caller
	// returns without waiting for it
	r, err := runExclusive(ctx, d.sem,
		func() forwardResult { return d.forward(blob, size) },
		func() { _ = blob.Close() })
	if err != nil {
		return Detection{}, contextError(err)
	}
	if r.err != nil {
		return Detection{}, errors.New(r.err).Component("detector").Category(errors.CategoryInference).Build()
	}

	survivors := postprocess(r.rows, r.stride, d.cfg)
	det := selectDetection(survivors, d.cfg, lb)
	d.log.Debug("detection complete",
		logger.Int("survivors", len(survivors)),
		logger.Bool("present", det.Present),
		logger.Duration("elapsed", time.Since(start)))
	return det, nil
}

type forwardResult struct {
	rows   []float32
	stride int
	err    error
}

// forward runs the network on blob. The caller holds d.sem.
func (d *ONNXDetector) forward(blob gocv.Mat, size int) forwardResult {
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	shape := out.Size()
	if len(shape) != 3 {
		return forwardResult{err: shapeError("output", shape, size)}
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return forwardResult{err: err}
	}
	rows := make([]float32, len(data))
	copy(rows, data)
	stride := shape[2]
	if shape[1] >= 6 && shape[1] < shape[2] {
		rows, stride = transpose(rows, shape[1], shape[2]), shape[1]
	}
	return forwardResult{rows: rows, stride: stride}
}

// WarmUp runs one detection on a blank image.
func (d *ONNXDetector) WarmUp(ctx context.Context) error {
	_, err := d.Detect(ctx, image.NewNRGBA(image.Rect(0, 0, d.cfg.InputSize, d.cfg.InputSize)))
	return err
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.sem <- struct{}{}
		err = d.net.Close()
		<-d.sem
	})
	return err
}

func contextError(err error) error {
	category := errors.CategoryCancellation
	if errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).Component("detector").Category(category).Build()
}
