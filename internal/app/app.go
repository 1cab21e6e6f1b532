// Package app owns the long lived state of a fishnet process: loaded models,
// the media store, the database and the event publisher.
package app

import (
	"context"
	"image/color"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fishnet-go/internal/annotate"
	"github.com/tphakala/fishnet-go/internal/classifier"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/cpuspec"
	"github.com/tphakala/fishnet-go/internal/datastore"
	"github.com/tphakala/fishnet-go/internal/detector"
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/events"
	"github.com/tphakala/fishnet-go/internal/httpclient"
	"github.com/tphakala/fishnet-go/internal/imagestore"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/observability"
	"github.com/tphakala/fishnet-go/internal/recognition"
)

const eventBusShutdownTimeout = 5 * time.Second

// DetectorLoader builds the detector described by settings.
type DetectorLoader func(ctx context.Context, settings *conf.Settings, threads int, log logger.Logger) (detector.Detector, error)

// ClassifierLoader builds the classifier described by settings.
type ClassifierLoader func(ctx context.Context, settings *conf.Settings, threads int, log logger.Logger) (classifier.Classifier, error)

// App holds the shared read-only handles used by every request.
type App struct {
	Settings    *conf.Settings
	Store       *imagestore.Store
	Detector    detector.Detector
	Classifier  classifier.Classifier
	Renderer    *annotate.Renderer
	Metrics     *observability.Metrics // nil when metrics are disabled
	DB          datastore.Interface    // nil when no database output is enabled
	Events      *events.EventBus       // nil when MQTT is disabled
	Recognition *recognition.Service

	mqtt *events.MQTTPublisher
	log  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	log            logger.Logger
	loadDetector   DetectorLoader
	loadClassifier ClassifierLoader
	withDatabase   bool
}

// Option configures New.
type Option func(*options)

// WithLogger sets the parent logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDetectorLoader replaces the settings driven detector construction.
func WithDetectorLoader(fn DetectorLoader) Option {
	return func(o *options) { o.loadDetector = fn }
}

// WithClassifierLoader replaces the settings driven classifier construction.
func WithClassifierLoader(fn ClassifierLoader) Option {
	return func(o *options) { o.loadClassifier = fn }
}

// WithoutDatabase skips opening the configured database, e.g. for one-shot
// command line identification.
func WithoutDatabase() Option {
	return func(o *options) { o.withDatabase = false }
}

// New loads both models concurrently, warms them up and wires the
// recognition service. Any failure releases what was already acquired.
func New(ctx context.Context, settings *conf.Settings, opts ...Option) (*App, error) {
	o := options{
		loadDetector:   LoadDetector,
		loadClassifier: LoadClassifier,
		withDatabase:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewDiscardLogger()
	}

	a := &App{Settings: settings, log: o.log.Module("app")}
	start := time.Now()

	if err := a.loadModels(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.log.Info("application ready",
		logger.String("detector", a.Detector.Name()),
		logger.String("classifier", a.Classifier.Name()),
		logger.Duration("startup", time.Since(start)))
	return a, nil
}

// loadModels loads detector and classifier in parallel and runs the
// optional warm-up inference on each.
func (a *App) loadModels(ctx context.Context, o options) error {
	threads := cpuspec.GetCPUSpec()
	detThreads := threads.ThreadsFor(a.Settings.Detector.Threads, 2)
	clsThreads := threads.ThreadsFor(a.Settings.Classifier.Threads, 2)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := o.loadDetector(gctx, a.Settings, detThreads, o.log)
		if err != nil {
			return err
		}
		mu.Lock()
		a.Detector = d
		mu.Unlock()
		return a.warmUp(gctx, d, d.Name())
	})

	g.Go(func() error {
		c, err := o.loadClassifier(gctx, a.Settings, clsThreads, o.log)
		if err != nil {
			return err
		}
		mu.Lock()
		a.Classifier = c
		mu.Unlock()
		return a.warmUp(gctx, c, c.Name())
	})

	return g.Wait()
}

type warmer interface {
	WarmUp(ctx context.Context) error
}

// healthChecker is implemented by backends that run on another host.
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// warmUp health-checks remote backends unconditionally and runs one inference on
// local ones when inference.warmup is set.
func (a *App) warmUp(ctx context.Context, model any, name string) error {
	start := time.Now()
	if hc, ok := model.(healthChecker); ok {
		if err := hc.CheckHealth(ctx); err != nil {
			return modelInitError(err, name, "health-check")
		}
		a.log.Debug("remote model reachable",
			logger.String("model", name),
			logger.Duration("elapsed", time.Since(start)))
		return nil
	}

	w, ok := model.(warmer)
	if !ok || !a.Settings.Inference.WarmUp {
		return nil
	}
	if err := w.WarmUp(ctx); err != nil {
		return modelInitError(err, name, "warm-up")
	}
	a.log.Debug("model warmed up",
		logger.String("model", name),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func modelInitError(err error, name, op string) error {
	return errors.New(err).
		Component("app").
		Category(errors.CategoryModelInit).
		Context("model", name).
		Context("operation", op).
		Build()
}

func (a *App) wire(ctx context.Context, o options) error {
	s := a.Settings

	a.Store = imagestore.New(s.Media.Root, s.Media.URL, o.log)

	r, g, b, err := conf.ParseHexColor(s.Annotation.Color)
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("setting", "annotation.color").
			Build()
	}
	a.Renderer = annotate.New(annotate.Style{
		Thickness: s.Annotation.Thickness,
		FontScale: s.Annotation.FontScale,
		Color:     color.NRGBA{R: r, G: g, B: b, A: 255},
	}, s.Annotation.JPEGQuality, o.log)

	if s.Metrics.Enabled {
		if a.Metrics, err = observability.NewMetrics(); err != nil {
			return err
		}
	}

	if o.withDatabase {
		if err := a.openDatabase(ctx, o.log); err != nil {
			return err
		}
	}

	if s.MQTT.Enabled {
		a.startEvents(ctx, o.log)
	}

	svcOpts := recognition.Options{
		Store:            a.Store,
		Detector:         a.Detector,
		Classifier:       a.Classifier,
		Renderer:         a.Renderer,
		InferenceTimeout: s.Inference.Timeout,
		Logger:           o.log,
	}
	if a.Metrics != nil {
		svcOpts.Metrics = a.Metrics.Recognition
	}
	if a.Events != nil {
		svcOpts.Events = a.Events
	}
	a.Recognition, err = recognition.New(svcOpts)
	return err
}

func (a *App) openDatabase(ctx context.Context, log logger.Logger) error {
	s := a.Settings
	if !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled {
		a.log.Warn("no database output enabled, /db endpoints are disabled")
		return nil
	}

	dsOpts := []datastore.Option{
		datastore.WithLogger(log),
		datastore.WithFishCacheTTL(s.Cache.FishTTL),
	}
	if a.Metrics != nil {
		dsOpts = append(dsOpts, datastore.WithMetrics(a.Metrics.Datastore))
	}
	db, err := datastore.New(s, dsOpts...)
	if err != nil {
		return err
	}
	if err := db.Open(); err != nil {
		return err
	}
	a.DB = db

	seeded, err := db.SeedFishCatalog(ctx)
	if err != nil {
		return err
	}
	if seeded > 0 {
		a.log.Info("fish catalog created", logger.Int("species", seeded))
	}
	return nil
}

// startEvents connects the MQTT publisher. A broker that is down at startup
// is logged and retried by the client; recognition keeps working without it.
func (a *App) startEvents(ctx context.Context, log logger.Logger) {
	m := a.Settings.MQTT
	a.mqtt = events.NewMQTTPublisher(events.MQTTConfig{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Username: m.Username,
		Password: m.Password,
		Topic:    m.Topic,
		Retain:   m.Retain,
	}, log)
	if err := a.mqtt.Connect(ctx); err != nil {
		a.log.Warn("mqtt broker not reachable at startup",
			logger.String("broker", m.Broker),
			logger.Error(err))
	}

	a.Events = events.NewEventBus(events.DefaultConfig(), log)
	if err := a.Events.RegisterConsumer(a.mqtt); err != nil {
		a.log.Error("failed to register mqtt consumer", logger.Error(err))
	}
}

// Close releases models, the database and the event publisher. It is safe
// to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Events != nil {
			if err := a.Events.Shutdown(eventBusShutdownTimeout); err != nil {
				errs = append(errs, err)
			}
		}
		if a.mqtt != nil {
			a.mqtt.Disconnect()
		}
		if a.Detector != nil {
			if err := a.Detector.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Classifier != nil {
			if err := a.Classifier.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.DB != nil {
			if err := a.DB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		_ = a.log.Flush()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// LoadDetector builds the detector backend named in settings.
func LoadDetector(_ context.Context, settings *conf.Settings, threads int, log logger.Logger) (detector.Detector, error) {
	s := settings.Detector
	tieBreak, err := detector.ParseTieBreak(s.TieBreak)
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("setting", "detector.tiebreak").
			Build()
	}
	cfg := detector.Config{
		InputSize:       s.InputSize,
		Confidence:      s.Confidence,
		IoU:             s.IoU,
		Classes:         []int{0},
		MaxDetections:   s.MaxDetections,
		NormalizedBoxes: s.NormalizedBoxes,
		TieBreak:        tieBreak,
	}

	if s.Backend == "onnx" {
		return detector.NewONNX(s.ModelPath, cfg, log)
	}
	d, err := detector.NewTFLite(s.ModelPath, threads, s.UseXNNPACK, cfg, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// LoadClassifier builds the classifier backend named in settings.
func LoadClassifier(_ context.Context, settings *conf.Settings, threads int, log logger.Logger) (classifier.Classifier, error) {
	s := settings.Classifier

	labels := classifier.DefaultLabels()
	if s.LabelPath != "" {
		var err error
		if labels, err = classifier.LoadLabels(s.LabelPath); err != nil {
			return nil, err
		}
	}

	if s.Backend == "remote" {
		client := httpclient.New(&httpclient.Config{DefaultTimeout: s.Remote.Timeout})
		return classifier.NewRemote(s.Remote.URL, client, labels, log), nil
	}
	c, err := classifier.NewTFLite(s.ModelPath, threads, s.UseXNNPACK, labels, classifier.Preprocessing{
		InputSize:    s.InputSize,
		ChannelOrder: classifier.ParseChannelOrder(s.ChannelOrder),
		ApplySoftmax: s.ApplySoftmax,
	}, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}
