// Package tfmodel wraps a TensorFlow Lite interpreter for single-input,
// single-output float32 models shared by concurrent callers.
package tfmodel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// Options configures Load.
type Options struct {
	Name       string // short model name used in logs and errors
	Path       string
	Threads    int
	UseXNNPACK bool
	Log        logger.Logger
}

// Model is a loaded interpreter. Invocations are serialized; callers waiting
// for the interpreter give up when their context is done.
type Model struct {
	name        string
	path        string
	model       *tflite.Model
	interpreter *tflite.Interpreter
	inputShape  []int
	outputShape []int
	inputLen    int
	log         logger.Logger

	// sem holds one token while the interpreter is in use
	sem       chan struct{}
	closeOnce sync.Once
}

// Load reads a .tflite file and prepares an interpreter for it.
func Load(opts Options) (*Model, error) {
	start := time.Now()
	log := opts.Log
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module("tfmodel").With(logger.String("model", opts.Name))

	data, err := os.ReadFile(opts.Path)
	if err != nil {
		return nil, errors.New(err).
			Component("tfmodel").
			Category(errors.CategoryModelLoad).
			ModelContext(opts.Path, opts.Name).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("tfmodel").
			Category(errors.CategoryModelInit).
			ModelContext(opts.Path, opts.Name).
			Context("model_size_mb", len(data)/1024/1024).
			Context("use_xnnpack", opts.UseXNNPACK).
			Build()
	}

	threads := max(1, opts.Threads)
	options := tflite.NewInterpreterOptions()
	if opts.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, userData any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, initError(opts, "cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, initError(opts, "tensor allocation failed")
	}

	input := interpreter.GetInputTensor(0)
	output := interpreter.GetOutputTensor(0)
	if input == nil || output == nil {
		interpreter.Delete()
		model.Delete()
		return nil, initError(opts, "model has no input or output tensor")
	}
	if input.Type() != tflite.Float32 || output.Type() != tflite.Float32 {
		interpreter.Delete()
		model.Delete()
		return nil, initError(opts, "only float32 models are supported")
	}

	m := &Model{
		name:        opts.Name,
		path:        opts.Path,
		model:       model,
		interpreter: interpreter,
		inputShape:  tensorShape(input),
		outputShape: tensorShape(output),
		log:         log,
		sem:         make(chan struct{}, 1),
	}
	m.inputLen = shapeLen(m.inputShape)

	// TFLite keeps its own copy of the flatbuffer
	runtime.GC()

	log.Info("model initialized",
		logger.String("file", filepath.Base(opts.Path)),
		logger.Any("input_shape", m.inputShape),
		logger.Any("output_shape", m.outputShape),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", opts.UseXNNPACK),
		logger.Duration("elapsed", time.Since(start)))
	return m, nil
}

func initError(opts Options, msg string) error {
	return errors.New(fmt.Errorf("%s", msg)).
		Component("tfmodel").
		Category(errors.CategoryModelInit).
		ModelContext(opts.Path, opts.Name).
		Build()
}

// Name returns the model name given at load time.
func (m *Model) Name() string { return m.name }

// InputShape returns the dimensions of the input tensor.
func (m *Model) InputShape() []int { return append([]int(nil), m.inputShape...) }

// OutputShape returns the dimensions of the output tensor.
func (m *Model) OutputShape() []int { return append([]int(nil), m.outputShape...) }

// Run fills the input tensor with fill, invokes the model and returns a copy
// of the output tensor. If ctx is done before the interpreter finishes, Run
// returns a timeout error while the invocation completes in the background.
func (m *Model) Run(ctx context.Context, fill func(input []float32) error) ([]float32, error) {
	start := time.Now()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, m.contextError(ctx.Err(), start)
	}
	if m.interpreter == nil {
		<-m.sem
		return nil, errors.Newf("model %s is closed", m.name).
			Component("tfmodel").
			Category(errors.CategoryInference).
			Build()
	}

	input := m.interpreter.GetInputTensor(0).Float32s()
	if len(input) != m.inputLen {
		<-m.sem
		return nil, errors.Newf("input tensor has %d values, expected %d", len(input), m.inputLen).
			Component("tfmodel").
			Category(errors.CategoryInference).
			Build()
	}
	if err := fill(input); err != nil {
		<-m.sem
		return nil, err
	}

	type result struct {
		out []float32
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() { <-m.sem }()
		if status := m.interpreter.Invoke(); status != tflite.OK {
			done <- result{err: errors.Newf("tensor invoke failed: %v", status).
				Component("tfmodel").
				Category(errors.CategoryInference).
				Context("model_name", m.name).
				Build()}
			return
		}
		raw := m.interpreter.GetOutputTensor(0).Float32s()
		out := make([]float32, len(raw))
		copy(out, raw)
		done <- result{out: out}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			m.log.Trace("inference complete", logger.Duration("elapsed", time.Since(start)))
		}
		return r.out, r.err
	case <-ctx.Done():
		return nil, m.contextError(ctx.Err(), start)
	}
}

// WarmUp runs one inference on an all-zero input.
func (m *Model) WarmUp(ctx context.Context) error {
	start := time.Now()
	_, err := m.Run(ctx, func(input []float32) error {
		clear(input)
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Debug("warm-up complete", logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Close waits for a running invocation and releases the interpreter.
// It is safe to call more than once.
func (m *Model) Close() error {
	m.closeOnce.Do(func() {
		m.sem <- struct{}{}
		if m.interpreter != nil {
			m.interpreter.Delete()
			m.interpreter = nil
		}
		if m.model != nil {
			m.model.Delete()
			m.model = nil
		}
		<-m.sem
	})
	return nil
}

func (m *Model) contextError(err error, start time.Time) error {
	category := errors.CategoryCancellation
	if errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("tfmodel").
		Category(category).
		Context("model_name", m.name).
		Timing("inference", time.Since(start)).
		Build()
}

func tensorShape(t *tflite.Tensor) []int {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	return shape
}

func shapeLen(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
