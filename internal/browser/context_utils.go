package browser

import (
	"context"
	"time"
)

// CombineContext derives from primary (which carries the CDP target) and is
// also canceled when secondary is. Values are inherited from primary only.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps the parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is never canceled
// by it. Browser teardown runs on detached contexts so it outlives a canceled run.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
