// Package fanout pushes a single event to every live connection of a target
// user. Delivery is best-effort and at-most-once: an offline target drops the
// event, per-connection write failures are swallowed, and no order across a
// user's connections is guaranteed.
package fanout

import (
	"log"

	"github.com/RahulMahapatra3773/Vybe/internal/metrics"
	"github.com/RahulMahapatra3773/Vybe/internal/presence"
	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
)

// Fanout delivers events to users via the presence registry.
type Fanout struct {
	registry *presence.Registry
}

// New creates a Fanout over the given registry.
func New(registry *presence.Registry) *Fanout {
	return &Fanout{registry: registry}
}

// Send writes the event to every registered handle of the target user and
// returns the number of handles written to. A target with no live handles
// yields 0; it is a defined outcome, not an error. Failed writes are logged
// and skipped; a dead connection is reaped by the connection layer, not here.
func (f *Fanout) Send(targetUserID string, eventName string, payload interface{}) int {
	handles := f.registry.Lookup(targetUserID)
	if len(handles) == 0 {
		metrics.EventsDropped.WithLabelValues("offline").Inc()
		return 0
	}

	data, err := protocol.NewServerMessage(eventName, payload)
	if err != nil {
		log.Printf("fanout: failed to build %q event for user=%s: %v", eventName, targetUserID, err)
		return 0
	}

	delivered := 0
	for _, h := range handles {
		if err := h.WriteMessage(data); err != nil {
			log.Printf("fanout: write %q to user=%s failed: %v", eventName, targetUserID, err)
			continue
		}
		delivered++
	}

	metrics.EventsRouted.WithLabelValues(eventName).Add(float64(delivered))
	return delivered
}
