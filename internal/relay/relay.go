// Package relay models the host node's external-collaborator surface
// (spec §2: "relays to external subscribers" is specified at the
// interface level, not implemented as a full subscriber). It publishes
// decoded-frame envelopes to MQTT, counts them on a Prometheus
// registry, and broadcasts them to websocket subscribers -- grounded on
// madpsy-ka9q_ubersdr's mqtt_publisher.go, prometheus.go, and
// websocket.go.
package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/n8kb/rfbridge/internal/frame"
)

// Envelope is the message shape relayed to every subscriber: a decoded
// frame plus whatever rule matched it (internal/rules), stamped with a
// correlation ID and timestamp.
type Envelope struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type"`
	PayloadHex   string `json:"payload_hex"`
	BitCount     byte   `json:"bit_count"`
	SyncDuration byte   `json:"sync_duration"`
	Rule         string `json:"rule,omitempty"`
	Action       string `json:"action,omitempty"`
}

// NewEnvelope builds an Envelope from a decoded frame and an optional
// rule match.
func NewEnvelope(f frame.DecodedFrame, rule, action string) Envelope {
	return Envelope{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Type:         f.Type.String(),
		PayloadHex:   fmt.Sprintf("%x", f.Payload),
		BitCount:     f.BitCount,
		SyncDuration: f.SyncDuration,
		Rule:         rule,
		Action:       action,
	}
}

// Metrics are the Prometheus counters relay publishes updates to.
type Metrics struct {
	decodedTotal   *prometheus.CounterVec
	checksumErrors prometheus.Counter
	relayErrors    prometheus.Counter
}

// NewMetrics registers the relay's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decodedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfbridge_decoded_frames_total",
			Help: "Decoded frames relayed, by message type.",
		}, []string{"type"}),
		checksumErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfbridge_checksum_errors_total",
			Help: "Frames dropped for failing the trailer checksum.",
		}),
		relayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfbridge_relay_errors_total",
			Help: "Errors publishing an envelope to any downstream subscriber.",
		}),
	}
}

// MQTTConfig configures the broker connection (grounded on
// mqtt_publisher.go's MQTTConfig/NewMQTTPublisher).
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTTPublisher publishes envelopes to a broker topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to cfg.Broker and returns a publisher ready
// to send envelopes.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rfbridge_" + uuid.NewString()
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("relay: connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return &MQTTPublisher{client: client, topic: cfg.Topic}, nil
}

// Publish sends env as JSON to the configured topic.
func (p *MQTTPublisher) Publish(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: marshal envelope: %w", err)
	}
	token := p.client.Publish(p.topic, 0, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("relay: publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// Hub broadcasts envelopes to every connected websocket subscriber
// (grounded on websocket.go's connection/broadcast shape, without the
// audio/spectrum framing that file adds for its own domain).
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it for broadcasts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends env to every connected subscriber, dropping any that
// fail to write (they'll be pruned once their read loop errors out).
func (h *Hub) Broadcast(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: marshal envelope: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Relay composes the MQTT, metrics, and websocket fan-out into a single
// publish call for the host node's main loop.
type Relay struct {
	MQTT    *MQTTPublisher
	Metrics *Metrics
	Hub     *Hub
}

// Publish stamps f/rule/action into an Envelope and fans it out to
// every configured subscriber, counting the result on Metrics.
func (r *Relay) Publish(f frame.DecodedFrame, rule, action string) error {
	env := NewEnvelope(f, rule, action)
	if r.Metrics != nil {
		r.Metrics.decodedTotal.WithLabelValues(env.Type).Inc()
	}

	var firstErr error
	if r.MQTT != nil {
		if err := r.MQTT.Publish(env); err != nil {
			firstErr = err
		}
	}
	if r.Hub != nil {
		if err := r.Hub.Broadcast(env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil && r.Metrics != nil {
		r.Metrics.relayErrors.Inc()
	}
	return firstErr
}

// NoteChecksumError increments the checksum-failure counter for a
// frame the line parser rejected before it ever reached the relay.
func (r *Relay) NoteChecksumError() {
	if r.Metrics != nil {
		r.Metrics.checksumErrors.Inc()
	}
}
