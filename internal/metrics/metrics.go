// Package metrics provides Prometheus instrumentation for the Vybe realtime
// core. It exposes gauges for connection and presence counts and counters for
// event routing and message delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active socket connections,
	// including anonymous ones.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vybe_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of users with at least one
	// registered connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vybe_online_users",
		Help: "Current number of online users",
	})

	// EventsRouted counts events dispatched to a recipient, labeled by event
	// type ("typing", "stopTyping", "getNotification", "newMessage").
	EventsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vybe_events_routed_total",
		Help: "Total number of events routed to recipients",
	}, []string{"type"})

	// EventsDropped counts events that produced no delivery, labeled by
	// reason ("offline", "self_notification", "malformed", "unsupported").
	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vybe_events_dropped_total",
		Help: "Total number of events dropped without delivery",
	}, []string{"reason"})

	// MessagesDelivered counts newMessage events pushed to client connections.
	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vybe_messages_delivered_total",
		Help: "Total number of newMessage events delivered to connections",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		EventsRouted,
		EventsDropped,
		MessagesDelivered,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
