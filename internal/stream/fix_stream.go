package stream

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
)

var log = logrus.WithField("component", "stream")

// FixHandler receives location fixes in arrival order.
type FixHandler interface {
	OnFix(ctx context.Context, fix domain.Fix) error
}

// FixHandlerFunc adapts a function to FixHandler.
type FixHandlerFunc func(ctx context.Context, fix domain.Fix) error

func (f FixHandlerFunc) OnFix(ctx context.Context, fix domain.Fix) error {
	return f(ctx, fix)
}

// FixStream is the single feed the whole pipeline hangs off. Sources push
// fixes in, subscribers get them serially in arrival order.
type FixStream interface {
	// OnFix registers a fix callback.
	OnFix(handler FixHandler)

	// Connect starts the underlying source.
	Connect(ctx context.Context) error

	// Close stops the underlying source.
	Close() error
}

// HandlerList stores fix subscribers and fans events out to them.
type HandlerList struct {
	handlers []FixHandler
	mu       sync.RWMutex
}

// NewHandlerList creates an empty handler list.
func NewHandlerList() *HandlerList {
	return &HandlerList{
		handlers: make([]FixHandler, 0),
	}
}

// Add appends a handler.
func (h *HandlerList) Add(handler FixHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// Snapshot copies the handler slice so Emit can iterate without the lock.
func (h *HandlerList) Snapshot() []FixHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]FixHandler, len(h.handlers))
	copy(out, h.handlers)
	return out
}

// Emit delivers a fix to every handler, serially. Serial delivery keeps the
// estimator/throttler/recorder state mutations on one logical thread, so
// none of them need locks of their own.
func (h *HandlerList) Emit(ctx context.Context, fix domain.Fix) {
	handlers := h.Snapshot()
	if len(handlers) == 0 {
		log.Warn("fix emitted with no handlers registered")
		return
	}

	for i, handler := range handlers {
		if handler == nil {
			continue
		}
		func(idx int, fh FixHandler) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("fix handler %d panicked: %v", idx, r)
				}
			}()
			if err := fh.OnFix(ctx, fix); err != nil {
				log.Errorf("fix handler %d failed: %v", idx, err)
			}
		}(i, handler)
	}
}

// Count reports the number of registered handlers.
func (h *HandlerList) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
