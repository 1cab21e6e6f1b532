package detector

import "context"

// runExclusive runs work on its own goroutine while holding sem. release
// frees the resources work uses and runs exactly once: right away when ctx
// ends before sem is acquired, otherwise after work returns. A caller whose
// ctx ends first gets ctx.Err() and must not touch those resources again.
func runExclusive[T any](ctx context.Context, sem chan struct{}, work func() T, release func()) (T, error) {
	var zero T
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		release()
		return zero, ctx.Err()
	}

	done := make(chan T, 1)
	go func() {
		defer func() { <-sem }()
		defer release()
		done <- work()
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
