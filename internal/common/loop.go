package common

import (
	"context"
	"sync"
	"time"
)

// StartLoopOnce starts a background loop goroutine exactly once, wiring up
// the cancel func and an optional ticker. Pollers share this instead of
// each repeating the once/cancel/ticker boilerplate.
//
// With tick <= 0 the loop gets a nil tick channel that never fires; the
// run func then blocks on ctx alone.
func StartLoopOnce(
	parent context.Context,
	once *sync.Once,
	setCancel func(context.CancelFunc),
	tick time.Duration,
	run func(loopCtx context.Context, tickC <-chan time.Time),
) {
	once.Do(func() {
		loopCtx, cancel := context.WithCancel(parent)
		if setCancel != nil {
			setCancel(cancel)
		}
		_ = cancel // ownership passes to setCancel; vet cannot see that
		go func() {
			var tickC <-chan time.Time
			if tick > 0 {
				ticker := time.NewTicker(tick)
				tickC = ticker.C
				defer ticker.Stop()
			}
			run(loopCtx, tickC)
		}()
	})
}
