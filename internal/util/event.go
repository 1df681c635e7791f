package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// ErrCallTimeout is returned by CallWithTimeout when fn did not finish in time.
var ErrCallTimeout = errors.New("call timeout")

// CallWithTimeout runs fn in its own goroutine and stops waiting once timeout elapses,
// even when fn ignores its context.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("%w after %s", ErrCallTimeout, timeout)
		}
		return zero, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}

func PublishEvent(js nats.JetStreamContext, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = js.Publish(subject, payload)
	if err != nil {
		return err
	}

	return nil
}
