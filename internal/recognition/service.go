// Package recognition runs the detect and identify request flows: store the
// upload, decode it, run the models and shape the caller facing response.
package recognition

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/tphakala/fishnet-go/internal/annotate"
	"github.com/tphakala/fishnet-go/internal/classifier"
	"github.com/tphakala/fishnet-go/internal/detector"
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/events"
	"github.com/tphakala/fishnet-go/internal/imageio"
	"github.com/tphakala/fishnet-go/internal/imagestore"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/observability/metrics"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// DetectedLabel is reported as local_name by the detection endpoint.
	DetectedLabel = "Detected_Fish"

	defaultInferenceTimeout = 30 * time.Second
)

// Request is one upload to either endpoint.
type Request struct {
	RequestID    string
	Username     string
	Filename     string
	Body         io.Reader // nil when no image part was sent
	Size         int64
	PreDetection string
}

// Response is the JSON body returned to the caller.
type Response struct {
	Status          string `json:"status"`
	LocalName       string `json:"local_name,omitempty"`
	ConfidenceScore string `json:"confidence_score,omitempty"`
	ImagePath       string `json:"image_path,omitempty"`
	Error           string `json:"error,omitempty"`

	Kind Kind `json:"-"`
}

// HTTPStatus is the status code for the response.
func (r Response) HTTPStatus() int { return r.Kind.HTTPStatus() }

// Metrics is the subset of recognition metrics the service records.
type Metrics interface {
	metrics.Recorder
	RequestStarted()
	RequestFinished(endpoint, status string, seconds float64)
	RecordDetection(found bool, confidence float64)
	RecordClassification(label string, confidence float64)
}

// Publisher accepts events without blocking.
type Publisher interface {
	TryPublish(event events.RecognitionEvent) bool
}

// Options wires a Service.
type Options struct {
	Store            *imagestore.Store
	Detector         detector.Detector
	Classifier       classifier.Classifier
	Renderer         *annotate.Renderer
	InferenceTimeout time.Duration
	Metrics          Metrics   // optional
	Events           Publisher // optional
	Logger           logger.Logger
}

// Service handles recognition requests. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	store      *imagestore.Store
	detector   detector.Detector
	classifier classifier.Classifier
	renderer   *annotate.Renderer
	timeout    time.Duration
	metrics    Metrics
	events     Publisher
	log        logger.Logger
	now        func() time.Time
}

// New returns a Service. Store, Detector, Classifier and Renderer are required.
func New(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Detector == nil || opts.Classifier == nil || opts.Renderer == nil {
		return nil, errors.Newf("recognition service requires a store, detector, classifier and renderer").
			Component("recognition").
			Category(errors.CategoryConfiguration).
			Build()
	}
	s := &Service{
		store:      opts.Store,
		detector:   opts.Detector,
		classifier: opts.Classifier,
		renderer:   opts.Renderer,
		timeout:    opts.InferenceTimeout,
		metrics:    opts.Metrics,
		events:     opts.Events,
		log:        opts.Logger,
		now:        time.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultInferenceTimeout
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.log == nil {
		s.log = logger.NewDiscardLogger()
	}
	s.log = s.log.Module("recognition")
	return s, nil
}

// Detect stores the upload, runs the detector and writes an annotated copy
// when a fish is found.
func (s *Service) Detect(ctx context.Context, req Request) Response {
	start := time.Now()
	s.metrics.RequestStarted()
	ctx = logger.WithTraceID(ctx, req.RequestID)
	log := s.log.WithContext(ctx).With(logger.String("endpoint", metrics.EndpointDetect))

	resp := s.detect(ctx, req, log)
	s.finish(metrics.EndpointDetect, resp, start, log)
	return resp
}

func (s *Service) detect(ctx context.Context, req Request, log logger.Logger) Response {
	if resp, ok := validate(req); !ok {
		return resp
	}
	stored, resp, ok := s.save(ctx, req, log)
	if !ok {
		return resp
	}
	img, resp, ok := s.decode(stored, log)
	if !ok {
		return resp
	}

	det, err := s.runDetector(ctx, img)
	if err != nil {
		return s.inferenceFailure(err, metrics.OpDetect, stored.PublicPath, log)
	}
	if !det.Present {
		return failure(KindNotDetected, stored.PublicPath)
	}

	if resp, ok := s.annotate(req, stored, img, det, log); !ok {
		return resp
	}

	publicPath := s.store.DetectionPublicPath(req.Username, stored.Filename)
	s.publish(req, metrics.EndpointDetect, DetectedLabel, det.Confidence, publicPath)
	return Response{
		Status:          StatusSuccess,
		LocalName:       DetectedLabel,
		ConfidenceScore: formatConfidence(det.Confidence),
		ImagePath:       publicPath,
	}
}

// annotate writes the copy of img with the detection drawn on it to the
// user's detection directory. img itself is left untouched.
func (s *Service) annotate(req Request, stored imagestore.Stored, img image.Image, det detector.Detection, log logger.Logger) (Response, bool) {
	path, err := s.store.DetectionPath(req.Username, stored.Filename)
	if err == nil {
		start := time.Now()
		err = s.renderer.Save(path, img, det.Box, formatConfidence(det.Confidence))
		s.metrics.RecordDuration(metrics.OpAnnotate, time.Since(start).Seconds())
	}
	if err != nil {
		s.metrics.RecordError(metrics.OpAnnotate, categoryOf(err))
		log.Error("failed to write annotated image",
			logger.String("filename", stored.Filename),
			logger.Error(err))
		return failure(KindStorage, ""), false
	}
	return Response{}, true
}

// Identify stores the upload, optionally requires a detection (writing the
// annotated copy like Detect does), and classifies the species.
func (s *Service) Identify(ctx context.Context, req Request) Response {
	start := time.Now()
	s.metrics.RequestStarted()
	ctx = logger.WithTraceID(ctx, req.RequestID)
	log := s.log.WithContext(ctx).With(logger.String("endpoint", metrics.EndpointIdentify))

	resp := s.identify(ctx, req, log)
	s.finish(metrics.EndpointIdentify, resp, start, log)
	return resp
}

func (s *Service) identify(ctx context.Context, req Request, log logger.Logger) Response {
	if resp, ok := validate(req); !ok {
		return resp
	}
	stored, resp, ok := s.save(ctx, req, log)
	if !ok {
		return resp
	}
	img, resp, ok := s.decode(stored, log)
	if !ok {
		return resp
	}

	if PreDetectionEnabled(req.PreDetection) {
		det, err := s.runDetector(ctx, img)
		if err != nil {
			return s.inferenceFailure(err, metrics.OpDetect, stored.PublicPath, log)
		}
		if !det.Present {
			return failure(KindNotDetected, stored.PublicPath)
		}
		if resp, ok := s.annotate(req, stored, img, det, log); !ok {
			return resp
		}
	}

	// the classifier sees the decoded upload, not the annotated copy
	result, err := s.runClassifier(ctx, img)
	if err != nil {
		return s.inferenceFailure(err, metrics.OpClassify, stored.PublicPath, log)
	}
	if result.Label == "" {
		return failure(KindNotIdentified, stored.PublicPath)
	}

	s.publish(req, metrics.EndpointIdentify, result.Label, result.Confidence, stored.PublicPath)
	return Response{
		Status:          StatusSuccess,
		LocalName:       result.Label,
		ConfidenceScore: formatConfidence(result.Confidence),
		ImagePath:       stored.PublicPath,
	}
}

// PreDetectionEnabled reports whether the pre_detection form value asks for
// detection. Only "true", in any letter case, does.
func PreDetectionEnabled(value string) bool {
	return strings.EqualFold(value, "true")
}

func validate(req Request) (Response, bool) {
	switch {
	case req.Username == "":
		return failure(KindMissingUsername, ""), false
	case req.Body == nil:
		return failure(KindMissingImage, ""), false
	case req.Size == 0 || req.Filename == "":
		return failure(KindInvalidImage, ""), false
	}
	return Response{}, true
}

func (s *Service) save(ctx context.Context, req Request, log logger.Logger) (imagestore.Stored, Response, bool) {
	start := time.Now()
	stored, err := s.store.Save(ctx, req.Username, req.Filename, req.Body)
	s.metrics.RecordDuration(metrics.OpStore, time.Since(start).Seconds())
	if err == nil {
		s.metrics.RecordOperation(metrics.OpStore, metrics.StatusSuccess)
		return stored, Response{}, true
	}

	s.metrics.RecordOperation(metrics.OpStore, metrics.StatusError)
	switch {
	case errors.Is(err, imagestore.ErrInvalidUsername):
		return stored, failure(KindInvalidUsername, ""), false
	case errors.Is(err, imagestore.ErrInvalidFilename):
		return stored, failure(KindInvalidImage, ""), false
	}
	s.metrics.RecordError(metrics.OpStore, categoryOf(err))
	log.Error("failed to store upload",
		logger.String("username", req.Username),
		logger.String("filename", req.Filename),
		logger.Error(err))
	return stored, failure(KindStorage, ""), false
}

func (s *Service) decode(stored imagestore.Stored, log logger.Logger) (image.Image, Response, bool) {
	img, err := imageio.Decode(stored.PhysicalPath)
	if err != nil {
		s.metrics.RecordError(metrics.OpDecode, categoryOf(err))
		log.Warn("failed to decode upload",
			logger.String("filename", stored.Filename),
			logger.Error(err))
		return nil, failure(KindDecode, stored.PublicPath), false
	}
	return img, Response{}, true
}

func (s *Service) runDetector(ctx context.Context, img image.Image) (detector.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	det, err := s.detector.Detect(ctx, img)
	s.metrics.RecordDuration(metrics.OpDetect, time.Since(start).Seconds())
	if err != nil {
		return det, err
	}
	s.metrics.RecordOperation(metrics.OpDetect, metrics.StatusSuccess)
	s.metrics.RecordDetection(det.Present, det.Confidence)
	return det, nil
}

func (s *Service) runClassifier(ctx context.Context, img image.Image) (classifier.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.classifier.Classify(ctx, img)
	s.metrics.RecordDuration(metrics.OpClassify, time.Since(start).Seconds())
	if err != nil {
		return result, err
	}
	s.metrics.RecordOperation(metrics.OpClassify, metrics.StatusSuccess)
	if result.Label != "" {
		s.metrics.RecordClassification(result.Label, result.Confidence)
	}
	return result, nil
}

func (s *Service) inferenceFailure(err error, op, imagePath string, log logger.Logger) Response {
	kind := KindInference
	if errors.Is(err, context.DeadlineExceeded) || errors.IsCategory(err, errors.CategoryTimeout) {
		kind = KindTimeout
	}
	s.metrics.RecordOperation(op, metrics.StatusError)
	s.metrics.RecordError(op, categoryOf(err))
	log.Error("inference failed",
		logger.String("operation", op),
		logger.String("kind", kind.String()),
		logger.Error(err))
	return failure(kind, imagePath)
}

func (s *Service) publish(req Request, endpoint, label string, confidence float64, imagePath string) {
	if s.events == nil {
		return
	}
	s.events.TryPublish(events.RecognitionEvent{
		RequestID:  req.RequestID,
		Endpoint:   endpoint,
		Username:   req.Username,
		Label:      label,
		Confidence: confidence,
		ImagePath:  imagePath,
		Timestamp:  s.now().UTC(),
	})
}

func (s *Service) finish(endpoint string, resp Response, start time.Time, log logger.Logger) {
	elapsed := time.Since(start)
	s.metrics.RequestFinished(endpoint, resp.Status, elapsed.Seconds())

	fields := []logger.Field{
		logger.String("status", resp.Status),
		logger.String("outcome", resp.Kind.String()),
		logger.Duration("elapsed", elapsed),
	}
	if resp.LocalName != "" {
		fields = append(fields, logger.String("local_name", resp.LocalName))
	}
	log.Info("recognition request handled", fields...)
}

func failure(kind Kind, imagePath string) Response {
	return Response{
		Status:    StatusFailed,
		Error:     kind.Message(),
		ImagePath: imagePath,
		Kind:      kind,
	}
}

// formatConfidence renders a score with two decimals, as in "0.93".
func formatConfidence(c float64) string {
	return fmt.Sprintf("%.2f", c)
}

func categoryOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}

type noopMetrics struct{ metrics.NoOpRecorder }

func (noopMetrics) RequestStarted()                                          {}
func (noopMetrics) RequestFinished(endpoint, status string, seconds float64) {}
func (noopMetrics) RecordDetection(found bool, confidence float64)           {}
func (noopMetrics) RecordClassification(label string, confidence float64)    {}
