// Package messaging provides a NATS client wrapper for pub/sub between the
// Vybe realtime core and its collaborators. The REST API publishes persisted
// message records and engagement events here; the realtime server consumes
// them and pushes to live connections. The subjects double as the extension
// seam for a future multi-instance deployment.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used between the Vybe services.
const (
	// SubjectMessagePersisted carries a message.Record JSON payload published
	// by whichever service durably persisted the message.
	SubjectMessagePersisted = "vybe.message.persisted"

	// SubjectEngagement carries a protocol.NotificationEvent JSON payload
	// published by the REST API on like/dislike/follow actions.
	SubjectEngagement = "vybe.engagement.event"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "vybe-rt",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// PublishMessagePersisted announces a durably persisted message record so
// every realtime instance can deliver it to its local connections.
func (c *NATSClient) PublishMessagePersisted(data []byte) error {
	return c.Publish(SubjectMessagePersisted, data)
}

// SubscribeMessagePersisted subscribes to persisted message announcements.
func (c *NATSClient) SubscribeMessagePersisted(handler func(data []byte)) error {
	return c.Subscribe(SubjectMessagePersisted, handler)
}

// PublishEngagement announces an engagement event (like/dislike/follow).
func (c *NATSClient) PublishEngagement(data []byte) error {
	return c.Publish(SubjectEngagement, data)
}

// SubscribeEngagement subscribes to engagement events from the REST API.
func (c *NATSClient) SubscribeEngagement(handler func(data []byte)) error {
	return c.Subscribe(SubjectEngagement, handler)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
