package app

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fishnet-go/internal/classifier"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/detector"
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/testutil"
)

type fakeDetector struct {
	warmups atomic.Int32
	closed  atomic.Bool
}

func (f *fakeDetector) Detect(context.Context, image.Image) (detector.Detection, error) {
	return detector.Detection{}, nil
}
func (f *fakeDetector) Name() string                 { return "fake-detector" }
func (f *fakeDetector) WarmUp(context.Context) error { f.warmups.Add(1); return nil }
func (f *fakeDetector) Close() error                 { f.closed.Store(true); return nil }

type fakeClassifier struct {
	warmErr error
	closed  atomic.Bool
}

func (f *fakeClassifier) Classify(context.Context, image.Image) (classifier.Classification, error) {
	return classifier.Classification{Label: "Siakap", Index: 12, Confidence: 0.9}, nil
}
func (f *fakeClassifier) Name() string                 { return "fake-classifier" }
func (f *fakeClassifier) Labels() []string             { return classifier.DefaultLabels() }
func (f *fakeClassifier) WarmUp(context.Context) error { return f.warmErr }
func (f *fakeClassifier) Close() error                 { f.closed.Store(true); return nil }

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := testutil.Settings(t)
	s.Inference = conf.InferenceSettings{Timeout: 5 * time.Second, WarmUp: true}
	s.Cache.FishTTL = time.Minute
	return s
}

func loaders(d *fakeDetector, c *fakeClassifier) []Option {
	return []Option{
		WithLogger(logger.NewDiscardLogger()),
		WithDetectorLoader(func(context.Context, *conf.Settings, int, logger.Logger) (detector.Detector, error) {
			return d, nil
		}),
		WithClassifierLoader(func(context.Context, *conf.Settings, int, logger.Logger) (classifier.Classifier, error) {
			return c, nil
		}),
	}
}

func TestNewWiresEverything(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))

	d, c := &fakeDetector{}, &fakeClassifier{}
	a, err := New(context.Background(), testSettings(t), loaders(d, c)...)
	require.NoError(t, err)

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Renderer)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Recognition)
	assert.Nil(t, a.Events)
	require.NotNil(t, a.DB)
	assert.Equal(t, "sqlite", a.DB.Dialect())
	assert.Equal(t, int32(1), d.warmups.Load())

	fish, err := a.DB.GetFishByLocalName(context.Background(), "Siakap")
	require.NoError(t, err)
	assert.Equal(t, "Barramundi", fish.EnglishName)

	require.NoError(t, a.Close())
	assert.True(t, d.closed.Load())
	assert.True(t, c.closed.Load())

	// second close is a no-op
	require.NoError(t, a.Close())
}

func TestNewSkipsWarmUpWhenDisabled(t *testing.T) {
	d, c := &fakeDetector{}, &fakeClassifier{warmErr: errors.NewStd("never called")}
	settings := testSettings(t)
	settings.Inference.WarmUp = false

	a, err := New(context.Background(), settings, append(loaders(d, c), WithoutDatabase())...)
	require.NoError(t, err)
	defer a.Close()

	assert.Zero(t, d.warmups.Load())
	assert.Nil(t, a.DB)
}

// remoteClassifier stands in for a backend that exposes a health check.
type remoteClassifier struct {
	fakeClassifier
	healthErr error
	checks    atomic.Int32
}

func (r *remoteClassifier) CheckHealth(context.Context) error {
	r.checks.Add(1)
	return r.healthErr
}

func remoteLoaders(d *fakeDetector, c *remoteClassifier) []Option {
	return []Option{
		WithLogger(logger.NewDiscardLogger()),
		WithoutDatabase(),
		WithDetectorLoader(func(context.Context, *conf.Settings, int, logger.Logger) (detector.Detector, error) {
			return d, nil
		}),
		WithClassifierLoader(func(context.Context, *conf.Settings, int, logger.Logger) (classifier.Classifier, error) {
			return c, nil
		}),
	}
}

func TestRemoteHealthCheckRunsWithoutWarmUp(t *testing.T) {
	d := &fakeDetector{}
	c := &remoteClassifier{fakeClassifier: fakeClassifier{warmErr: errors.NewStd("never called")}}
	settings := testSettings(t)
	settings.Inference.WarmUp = false

	a, err := New(context.Background(), settings, remoteLoaders(d, c)...)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, int32(1), c.checks.Load())
	assert.Zero(t, d.warmups.Load())
}

func TestRemoteHealthCheckFailureAbortsStartup(t *testing.T) {
	d := &fakeDetector{}
	c := &remoteClassifier{healthErr: errors.NewStd("connection refused")}
	settings := testSettings(t)
	settings.Inference.WarmUp = false

	_, err := New(context.Background(), settings, remoteLoaders(d, c)...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
	assert.Equal(t, int32(1), c.checks.Load())
	assert.True(t, c.closed.Load(), "loaded classifier is released")
}

func TestNewFailsOnWarmUpError(t *testing.T) {
	d, c := &fakeDetector{}, &fakeClassifier{warmErr: errors.NewStd("model rejected zero input")}

	_, err := New(context.Background(), testSettings(t), loaders(d, c)...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
	assert.True(t, d.closed.Load(), "loaded detector is released")
	assert.True(t, c.closed.Load(), "loaded classifier is released")
}

func TestNewFailsOnLoadError(t *testing.T) {
	c := &fakeClassifier{}
	opts := []Option{
		WithDetectorLoader(func(context.Context, *conf.Settings, int, logger.Logger) (detector.Detector, error) {
			return nil, errors.NewStd("model file missing")
		}),
		WithClassifierLoader(func(context.Context, *conf.Settings, int, logger.Logger) (classifier.Classifier, error) {
			return c, nil
		}),
	}

	_, err := New(context.Background(), testSettings(t), opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file missing")
}

func TestNewRejectsBadColor(t *testing.T) {
	d, c := &fakeDetector{}, &fakeClassifier{}
	settings := testSettings(t)
	settings.Annotation.Color = "green"

	_, err := New(context.Background(), settings, loaders(d, c)...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.True(t, d.closed.Load())
}

func TestLoadDetectorRejectsUnknownTieBreak(t *testing.T) {
	settings := testSettings(t)
	settings.Detector.TieBreak = "random"

	_, err := LoadDetector(context.Background(), settings, 1, logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadClassifierRemote(t *testing.T) {
	settings := testSettings(t)
	settings.Classifier.Backend = "remote"
	settings.Classifier.Remote = conf.RemoteSettings{URL: "http://inference.local", Timeout: time.Second}

	c, err := LoadClassifier(context.Background(), settings, 1, logger.NewDiscardLogger())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "classifier-remote", c.Name())
	assert.Len(t, c.Labels(), 15)
}
