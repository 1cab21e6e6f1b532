package errors

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu     sync.Mutex
	errors []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, ee)
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitValues(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("tensor allocation failed for %s", "detector").
		Component("detector").
		Category(CategoryModelInit).
		Priority("bogus").
		ModelContext("/models/fish.tflite", "yolov5").
		Timing("model-init", 1500*time.Millisecond).
		Build()

	assert.Equal(t, "detector", ee.GetComponent())
	assert.Equal(t, CategoryModelInit, ee.Category)
	assert.Equal(t, PriorityMedium, ee.Priority)

	ctx := ee.GetContext()
	assert.Equal(t, "tflite", ctx["model_file"])
	assert.Equal(t, "yolov5", ctx["model_name"])
	assert.Equal(t, "model-init", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])
}

func TestCategoryDetection(t *testing.T) {
	SetTelemetryReporter(nil)

	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"deadline", fmt.Errorf("invoke: %w", context.DeadlineExceeded), CategoryTimeout},
		{"canceled", fmt.Errorf("invoke: %w", context.Canceled), CategoryCancellation},
		{"model load", fmt.Errorf("failed to load model file"), CategoryModelLoad},
		{"labels", fmt.Errorf("label count is zero"), CategoryLabelLoad},
		{"invalid", fmt.Errorf("invalid username"), CategoryValidation},
		{"wrapped enhanced", New(fmt.Errorf("x")).Category(CategoryDatabase).Build(), CategoryDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ee := New(tt.err).Build()
			assert.Equal(t, tt.expected, ee.Category)
		})
	}
}

func TestIsCategory(t *testing.T) {
	SetTelemetryReporter(nil)

	notFound := New(fmt.Errorf("fish not found")).Category(CategoryNotFound).Build()
	wrapped := fmt.Errorf("lookup: %w", notFound)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsCategory(wrapped, CategoryDatabase))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryNotFound}))
}

func TestReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("boom")).Category(CategoryInference).Build()

	require.Len(t, reporter.errors, 1)
	assert.Same(t, ee, reporter.errors[0])
}

func TestDisabledReporterKeepsFastPath(t *testing.T) {
	SetTelemetryReporter(NewSentryReporter(false))
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	assert.False(t, hasActiveReporting.Load())
}

func TestScrubMessageForPrivacy(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"url query", "GET https://api.example.com/x?token=abc failed", "https://api.example.com/x?[REDACTED]", "abc"},
		{"password", "login password=hunter2 rejected", "[REDACTED]", "hunter2"},
		{"media user", "open /srv/media/alice/input_images/a.jpg: denied", "/[USER]/input_images/", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := scrubMessageForPrivacy(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("x")).
		Component("classifier").
		Category(CategoryModelLoad).
		Context("operation", "load_labels").
		Build()

	assert.Equal(t, "Classifier Model Loading Load Labels", generateErrorTitle(ee))
}
