// Package metrics holds the Prometheus collectors of the marketplace service.
// They register with the default registry and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingTransitions counts lifecycle transitions: created, sold, deleted.
	ListingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitrade_listing_transitions_total",
		Help: "Listing lifecycle transitions by kind",
	}, []string{"transition"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unitrade_messages_sent_total",
		Help: "Chat messages appended",
	})

	// PermissionDenied counts rejected operations (buy, delete, send, read).
	PermissionDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitrade_permission_denied_total",
		Help: "Operations rejected by the listing policy",
	}, []string{"operation"})

	// ActiveSubscriptions tracks realtime subscriptions by kind.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unitrade_active_subscriptions",
		Help: "Realtime subscriptions currently held open",
	}, []string{"kind"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unitrade_websocket_clients",
		Help: "Connected WebSocket clients",
	})
)

const (
	TransitionCreated = "created"
	TransitionSold    = "sold"
	TransitionDeleted = "deleted"
)

// TrackSubscription bumps the gauge for kind and returns the matching release,
// which must run exactly once.
func TrackSubscription(kind string) func() {
	g := ActiveSubscriptions.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}
