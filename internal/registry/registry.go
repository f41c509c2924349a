// Package registry binds transaction ids to the subscriber channel waiting on
// their result.
//
// The Registry is the only writer of the binding map. All three operations are
// serialized by one mutex, so their combined effect is equivalent to some total
// order of calls. A resolution removes the binding under the lock and sends
// outside it: exactly one resolver can ever obtain a given binding, and a slow
// subscriber never blocks registration of others.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"pushgate/internal/platform/metrics"
	"pushgate/pkg/domain"
	"pushgate/pkg/requestcontext"
)

// Channel is a sink for resolution results. Implementations must be
// comparable; the registry compares channels by identity.
type Channel interface {
	Send(ctx context.Context, d Delivery) error
}

// Delivery is the payload pushed to a subscriber when its transaction resolves.
type Delivery struct {
	Status domain.Status `json:"status"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	bindings map[domain.TransactionID]Channel

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		bindings: make(map[domain.TransactionID]Channel),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds ch to id, replacing any existing binding. A replaced channel
// is dropped from the map but not closed.
func (r *Registry) Register(id domain.TransactionID, ch Channel) {
	r.mu.Lock()
	prev, replaced := r.bindings[id]
	r.bindings[id] = ch
	n := len(r.bindings)
	r.mu.Unlock()

	r.metrics.SetBindings(n)
	if replaced && prev != ch {
		r.metrics.IncBindingReplacements()
		r.logger.Debug("subscriber binding replaced", "transaction_id", id)
	}
}

// ResolveAndRemove removes the binding for id and, if there was one, sends d
// through its channel. A failed send is logged and swallowed; the binding stays
// removed. It reports whether a binding was found.
func (r *Registry) ResolveAndRemove(ctx context.Context, id domain.TransactionID, d Delivery) bool {
	r.mu.Lock()
	ch, ok := r.bindings[id]
	if ok {
		delete(r.bindings, id)
	}
	n := len(r.bindings)
	r.mu.Unlock()

	if !ok {
		r.metrics.IncDelivery(metrics.DeliveryNoSubscriber)
		return false
	}
	r.metrics.SetBindings(n)

	if err := ch.Send(ctx, d); err != nil {
		r.metrics.IncDelivery(metrics.DeliverySendFailed)
		r.logger.WarnContext(ctx, "result delivery to subscriber failed",
			"transaction_id", id,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return true
	}
	r.metrics.IncDelivery(metrics.DeliveryDelivered)
	return true
}

// UnregisterIfMatches removes the binding for id only if it currently maps to
// ch, so a closing channel never deletes a newer subscriber's binding.
func (r *Registry) UnregisterIfMatches(id domain.TransactionID, ch Channel) bool {
	r.mu.Lock()
	current, ok := r.bindings[id]
	removed := ok && current == ch
	if removed {
		delete(r.bindings, id)
	}
	n := len(r.bindings)
	r.mu.Unlock()

	if removed {
		r.metrics.SetBindings(n)
	}
	return removed
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
