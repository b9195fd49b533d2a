// Package router dispatches inbound realtime events to the correct recipient
// sessions. It is a pure dispatch layer: it holds no state of its own beyond
// read access to the presence registry, and a routing miss (target offline)
// is a silent no-op, never an error surfaced to the sender.
package router

import (
	"log"

	"github.com/RahulMahapatra3773/Vybe/internal/fanout"
	"github.com/RahulMahapatra3773/Vybe/internal/metrics"
	"github.com/RahulMahapatra3773/Vybe/internal/presence"
	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
)

// Broadcaster writes a raw frame to every connected session, identified or
// anonymous. The ws connection manager implements it.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Router routes typing indicators and engagement notifications, and
// broadcasts the presence roster.
type Router struct {
	registry    *presence.Registry
	fanout      *fanout.Fanout
	broadcaster Broadcaster
}

// New creates a Router over the given registry and fan-out.
func New(registry *presence.Registry, fo *fanout.Fanout) *Router {
	return &Router{registry: registry, fanout: fo}
}

// SetBroadcaster assigns the broadcaster used for roster updates. This
// supports the initialization pattern where the router is created before the
// socket server.
func (r *Router) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// RouteTyping forwards a typing indicator to the receiver as a "typing"
// event carrying the sender's ID. Typing indicators are perishable: an
// offline receiver simply means no delivery, with no queueing or retry.
func (r *Router) RouteTyping(senderID, receiverID string) {
	r.routeIndicator(protocol.TypeTyping, senderID, receiverID)
}

// RouteStopTyping is symmetric to RouteTyping for the "stopTyping" event.
func (r *Router) RouteStopTyping(senderID, receiverID string) {
	r.routeIndicator(protocol.TypeStopTyping, senderID, receiverID)
}

func (r *Router) routeIndicator(eventName, senderID, receiverID string) {
	if senderID == "" || receiverID == "" {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	r.fanout.Send(receiverID, eventName, protocol.ServerTypingMsg{SenderID: senderID})
}

// RouteEngagement forwards an engagement notification to its target as a
// "getNotification" event with the payload unmodified. A self-notification
// (source and target are the same user) is suppressed and never reaches
// fan-out. An offline target drops the event: notifications here are
// ephemeral live-UI hints, not a durable inbox.
func (r *Router) RouteEngagement(event protocol.NotificationEvent) {
	if event.ReceiverID == "" {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if event.UserID == event.ReceiverID {
		log.Printf("router: suppressed self-notification user=%s kind=%s", event.UserID, event.Kind)
		metrics.EventsDropped.WithLabelValues("self_notification").Inc()
		return
	}
	r.fanout.Send(event.ReceiverID, protocol.TypeGetNotification, protocol.GetNotificationMsg{
		Notification: event,
	})
}

// BroadcastRoster sends the full online-user set to every connected session.
// It is invoked on each presence transition; the O(online users) payload per
// transition is a documented scalability limit of the single-process design.
func (r *Router) BroadcastRoster() {
	if r.broadcaster == nil {
		return
	}
	data, err := protocol.NewServerMessage(protocol.TypeOnlineUsers, protocol.OnlineUsersMsg{
		Users: r.registry.Snapshot(),
	})
	if err != nil {
		log.Printf("router: failed to build roster broadcast: %v", err)
		return
	}
	r.broadcaster.Broadcast(data)
}
