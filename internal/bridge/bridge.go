// Package bridge delivers durably persisted message records to live
// connections. It sits strictly downstream of the message store: Deliver is
// invoked only after persistence has succeeded, so the realtime path never
// awaits storage and a delivery miss loses nothing durable.
package bridge

import (
	"encoding/json"
	"log"

	"github.com/RahulMahapatra3773/Vybe/internal/fanout"
	"github.com/RahulMahapatra3773/Vybe/internal/message"
	"github.com/RahulMahapatra3773/Vybe/internal/messaging"
	"github.com/RahulMahapatra3773/Vybe/internal/metrics"
	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
)

// Bridge fans persisted message records out to both participants.
type Bridge struct {
	fanout *fanout.Fanout
}

// New creates a Bridge over the given fan-out.
func New(fo *fanout.Fanout) *Bridge {
	return &Bridge{fanout: fo}
}

// Deliver pushes the record as a "newMessage" event to every live connection
// of the receiver and of the sender. Delivering to the sender keeps a second
// sender tab in sync without re-querying storage. The bridge performs no
// deduplication: delivering the same record twice emits twice, and debouncing
// by message ID is the client's concern.
func (b *Bridge) Deliver(rec message.Record) {
	delivered := b.fanout.Send(rec.ReceiverID, protocol.TypeNewMessage, rec)
	delivered += b.fanout.Send(rec.SenderID, protocol.TypeNewMessage, rec)
	metrics.MessagesDelivered.Add(float64(delivered))
}

// Announce hands a freshly persisted record to the delivery path. With a live
// messaging fabric it publishes to the persisted-message subject so every
// instance (including this one) delivers to its local connections exactly
// once; without one, or when marshalling or publishing fails, it falls back
// to direct local delivery so the record is never lost to live sessions.
func (b *Bridge) Announce(nc *messaging.NATSClient, rec message.Record) {
	if nc == nil {
		b.Deliver(rec)
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("bridge: marshal record id=%d failed: %v, delivering locally", rec.ID, err)
		b.Deliver(rec)
		return
	}
	if err := nc.PublishMessagePersisted(data); err != nil {
		log.Printf("bridge: publish record id=%d failed: %v, delivering locally", rec.ID, err)
		b.Deliver(rec)
	}
}

// ConsumePersisted subscribes to the persisted-message subject so records
// stored by the REST API (or by another realtime instance) are delivered to
// this instance's local connections. Malformed payloads are logged and
// dropped.
func (b *Bridge) ConsumePersisted(nc *messaging.NATSClient) error {
	return nc.SubscribeMessagePersisted(func(data []byte) {
		var rec message.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("bridge: malformed persisted record: %v", err)
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			return
		}
		b.Deliver(rec)
	})
}
