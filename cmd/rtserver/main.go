package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/RahulMahapatra3773/Vybe/internal/bridge"
	"github.com/RahulMahapatra3773/Vybe/internal/fanout"
	"github.com/RahulMahapatra3773/Vybe/internal/message"
	"github.com/RahulMahapatra3773/Vybe/internal/messaging"
	"github.com/RahulMahapatra3773/Vybe/internal/metrics"
	"github.com/RahulMahapatra3773/Vybe/internal/presence"
	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
	"github.com/RahulMahapatra3773/Vybe/internal/router"
	"github.com/RahulMahapatra3773/Vybe/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "rt-1"
	}

	// --- NATS (optional: without it, delivery is local to this instance) ---
	var natsClient *messaging.NATSClient
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = natsURL
		natsConfig.Name = "vybe-rt-" + serverName
		var err error
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	} else {
		log.Printf("NATS_URL not set, running without the messaging fabric")
	}

	// --- Redis presence mirror (optional) ---
	var mirror *presence.Store
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		var err error
		mirror, err = presence.NewStore(redisAddr, serverName)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
	} else {
		log.Printf("REDIS_ADDR not set, running without the presence mirror")
	}

	// --- Message store (optional: without it, sendMessage events are dropped) ---
	var msgStore *message.Store
	if dsn := os.Getenv("MESSAGES_DSN"); dsn != "" {
		var err error
		msgStore, err = message.Open(dsn)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := msgStore.Migrate(); err != nil {
			log.Fatalf("failed to migrate message store: %v", err)
		}
	} else {
		log.Printf("MESSAGES_DSN not set, running without the message store")
	}

	log.Printf("Vybe realtime server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  server_name:     %s", serverName)

	registry := presence.NewRegistry()
	fo := fanout.New(registry)
	rt := router.New(registry, fo)
	br := bridge.New(fo)

	// Every presence transition rebroadcasts the full roster and refreshes
	// the mirrored online set.
	registry.SetOnChange(func(online []string) {
		metrics.OnlineUsers.Set(float64(len(online)))
		rt.BroadcastRoster()
	})
	registry.SetOnTransition(func(userID string, online bool) {
		if mirror == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var err error
		if online {
			err = mirror.SetOnline(ctx, userID)
		} else {
			err = mirror.SetOffline(ctx, userID)
		}
		if err != nil {
			log.Printf("presence mirror update failed user=%s online=%v: %v", userID, online, err)
		}
	})

	dispatcher := ws.NewMessageDispatcher()

	// -----------------------------------------------------------------------
	// typing / stopTyping: relay the indicator to the receiver
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok || conn.User == "" {
			return
		}
		rt.RouteTyping(conn.User, typingMsg.ReceiverID)
	})

	dispatcher.Register(protocol.TypeStopTyping, func(conn *ws.Connection, msg interface{}) {
		stopMsg, ok := msg.(protocol.StopTypingMsg)
		if !ok || conn.User == "" {
			return
		}
		rt.RouteStopTyping(conn.User, stopMsg.ReceiverID)
	})

	// -----------------------------------------------------------------------
	// likeOrDislike: forward the engagement notification to its target
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeLikeOrDislike, func(conn *ws.Connection, msg interface{}) {
		likeMsg, ok := msg.(protocol.LikeOrDislikeMsg)
		if !ok || conn.User == "" {
			return
		}
		event := likeMsg.Notification
		// The connection's identity is authoritative for the source user.
		event.UserID = conn.User
		// The socket event carries reactions only; follow/unfollow come in
		// over the REST API's engagement subject.
		if !event.IsReaction() {
			log.Printf("likeOrDislike dropped conn=%s: unsupported kind %q", conn.ID, event.Kind)
			metrics.EventsDropped.WithLabelValues("unsupported").Inc()
			return
		}
		rt.RouteEngagement(event)
	})

	// -----------------------------------------------------------------------
	// sendMessage: persist first, then deliver to both participants
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.SendMessageMsg)
		if !ok || conn.User == "" {
			return
		}
		if msgStore == nil {
			log.Printf("sendMessage dropped conn=%s: message store not configured", conn.ID)
			metrics.EventsDropped.WithLabelValues("unsupported").Inc()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		rec, err := msgStore.CreateMessage(ctx, conn.User, sendMsg.ReceiverID, sendMsg.Message)
		if err != nil {
			log.Printf("sendMessage persist failed conn=%s user=%s: %v", conn.ID, conn.User, err)
			return
		}

		br.Announce(natsClient, rec)
	})

	server := ws.NewServer(config, registry, dispatcher.Dispatch)
	rt.SetBroadcaster(server.Connections())

	// --- NATS consumers: records and events published by the REST API ---
	if natsClient != nil {
		if err := br.ConsumePersisted(natsClient); err != nil {
			log.Fatalf("failed to subscribe to persisted messages: %v", err)
		}
		err := natsClient.SubscribeEngagement(func(data []byte) {
			var event protocol.NotificationEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("malformed engagement event: %v", err)
				metrics.EventsDropped.WithLabelValues("malformed").Inc()
				return
			}
			rt.RouteEngagement(event)
		})
		if err != nil {
			log.Fatalf("failed to subscribe to engagement events: %v", err)
		}
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if mirror != nil {
			if err := mirror.Close(); err != nil {
				log.Printf("presence mirror close error: %v", err)
			}
		}
		if msgStore != nil {
			if err := msgStore.Close(); err != nil {
				log.Printf("message store close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
