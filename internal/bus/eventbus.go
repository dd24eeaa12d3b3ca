// Package bus provides the event bus that carries the core's outward
// event contract. Events are published at most once per emitting call,
// fire-and-forget; reliability of downstream delivery belongs to the
// consumers, not the core.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects published by the core components.
const (
	SubjectSensorRegistered   = "sensor.registered"
	SubjectSensorUnregistered = "sensor.unregistered"
	SubjectSensorData         = "sensor.data"
	SubjectSensorTrigger      = "sensor.trigger"
	SubjectSensorOffline      = "sensor.offline"

	SubjectOrderFired     = "order.fired"
	SubjectOrderEscalated = "order.escalated"

	SubjectAlertCreated      = "alert.created"
	SubjectAlertAcknowledged = "alert.acknowledged"
	SubjectAlertResolved     = "alert.resolved"
	SubjectAlertEscalated    = "alert.escalated"
	SubjectAlertUpdated      = "alert.updated"
	SubjectAlertAssigned     = "alert.assigned"
)

// Emitter is the narrow publishing interface the core components hold.
// Emit must return only after the event has been handed to the transport,
// so emission ordering follows mutation ordering.
type Emitter interface {
	Emit(subject string, payload any)
}

// EventBus provides pub/sub messaging using an embedded NATS server.
type EventBus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	subs   map[string][]*nats.Subscription
	subsMu sync.RWMutex
}

// Config configures the event bus.
type Config struct {
	// Host for the NATS server (default: 127.0.0.1)
	Host string
	// Port for the NATS server (default: 14222)
	Port int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Host: "127.0.0.1",
		Port: 14222,
	}
}

// New starts an embedded NATS server and connects to it.
func New(cfg Config, logger *slog.Logger) (*EventBus, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds (port %d)", cfg.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	eb := &EventBus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string][]*nats.Subscription),
	}

	logger.Info("Event bus started", "url", ns.ClientURL())
	return eb, nil
}

// ClientURL returns the NATS client URL.
func (eb *EventBus) ClientURL() string {
	return eb.server.ClientURL()
}

// Emit publishes a JSON-encoded event. Marshal and publish failures are
// logged, never surfaced to the emitting operation: the core does not
// retry and does not resend.
func (eb *EventBus) Emit(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		eb.logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := eb.conn.Publish(subject, data); err != nil {
		eb.logger.Error("Failed to publish event", "subject", subject, "error", err)
	}
}

// Subscribe subscribes to a subject. Wildcards ("sensor.*", ">") follow
// NATS semantics.
func (eb *EventBus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := eb.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}

	eb.subsMu.Lock()
	eb.subs[subject] = append(eb.subs[subject], sub)
	eb.subsMu.Unlock()

	return sub, nil
}

// Unsubscribe removes all subscriptions for a subject.
func (eb *EventBus) Unsubscribe(subject string) {
	eb.subsMu.Lock()
	defer eb.subsMu.Unlock()

	if subs, ok := eb.subs[subject]; ok {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		delete(eb.subs, subject)
	}
}

// Flush blocks until all published messages have been processed by the
// server. Useful in tests and during shutdown.
func (eb *EventBus) Flush() error {
	return eb.conn.Flush()
}

// Stop shuts down the event bus.
func (eb *EventBus) Stop() {
	eb.subsMu.Lock()
	for subject, subs := range eb.subs {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		delete(eb.subs, subject)
	}
	eb.subsMu.Unlock()

	if eb.conn != nil {
		_ = eb.conn.Drain()
		eb.conn.Close()
	}
	if eb.server != nil {
		eb.server.Shutdown()
	}
	eb.logger.Info("Event bus stopped")
}
