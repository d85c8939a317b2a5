// Package notify delivers user-facing notifications to one or more sinks.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
)

// Sink delivers a single notification to one destination
type Sink interface {
	Name() string
	Send(ctx context.Context, n port.Notification) error
}

// Fanout implements port.Notifier by sending every notification to all
// sinks in the background. Sink failures are logged and dropped.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewFanout creates a notifier over sinks. Each send is bounded by timeout.
func NewFanout(sinks []Sink, timeout time.Duration, logger *zap.Logger) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Notify implements port.Notifier
func (f *Fanout) Notify(ctx context.Context, n port.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.now()
	}
	if n.Level == "" {
		n.Level = port.LevelInfo
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.logger.Warn("Notification dropped after close", zap.String("type", n.Type))
		return
	}

	// Delivery must outlive the request that triggered it
	base := context.WithoutCancel(ctx)
	for _, sink := range f.sinks {
		f.wg.Add(1)
		go func(sink Sink) {
			defer f.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, f.timeout)
			defer cancel()

			if err := sink.Send(sendCtx, n); err != nil {
				f.logger.Warn("Notification sink failed",
					zap.String("sink", sink.Name()),
					zap.String("type", n.Type),
					zap.Error(err))
			}
		}(sink)
	}
}

// Close stops accepting notifications and waits for pending sends
func (f *Fanout) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}

var _ port.Notifier = (*Fanout)(nil)
