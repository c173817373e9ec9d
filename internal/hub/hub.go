package hub

import (
	"context"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/rs/zerolog"
)

type Config struct {
	SendBuffer int
	// MaxDrops consecutive dropped messages close the connection. Zero keeps
	// slow connections open forever.
	MaxDrops int
}

func DefaultConfig() Config {
	return Config{SendBuffer: 256, MaxDrops: 64}
}

// Relay forwards publishes to other instances. Implementations call Deliver
// on the receiving side.
type Relay interface {
	Publish(ctx context.Context, topic string, payload []byte, once bool) error
}

// SubscribeHook runs after a client subscribed to a topic, outside all hub
// locks.
type SubscribeHook func(c *Client, topic string)

// DisconnectHook runs after a client was unregistered. remaining is the number
// of connections the same user still holds.
type DisconnectHook func(c *Client, remaining int)

type Stats struct {
	Clients       int                        `json:"totalClients"`
	Users         int                        `json:"totalUsers"`
	Topics        int                        `json:"totalTopics"`
	Subscriptions int                        `json:"totalSubscriptions"`
	ByKind        map[protocol.TopicKind]int `json:"byKind"`
}

type Hub struct {
	cfg     Config
	topics  *registry
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu          sync.RWMutex
	clients     map[*Client]bool
	userClients map[string]map[*Client]bool

	relay        Relay
	onSubscribe  SubscribeHook
	onDisconnect DisconnectHook
}

func NewHub(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Hub{
		cfg:         cfg,
		topics:      newRegistry(),
		metrics:     m,
		logger:      logger.With().Str("component", "hub").Logger(),
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
	}
}

// SetRelay, SetSubscribeHook and SetDisconnectHook must be called before the
// hub serves connections.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) SetSubscribeHook(fn SubscribeHook) {
	h.onSubscribe = fn
}

func (h *Hub) SetDisconnectHook(fn DisconnectHook) {
	h.onDisconnect = fn
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true
	h.metrics.IncConnections()

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Bool("admin", client.Admin).
		Int("totalClients", len(h.clients)).
		Msg("Client registered")
}

// Unregister closes the client and drops all of its subscriptions.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	remaining := 0
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client)
		remaining = len(userClients)
		if remaining == 0 {
			delete(h.userClients, client.UserID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.Close()
	h.UnsubscribeAll(client)
	h.metrics.DecConnections()

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("totalClients", total).
		Msg("Client unregistered")

	if h.onDisconnect != nil {
		h.onDisconnect(client, remaining)
	}
}

// Subscribe adds client to topic. It reports false when the client was
// already subscribed or is closed.
func (h *Hub) Subscribe(client *Client, name string) bool {
	for {
		t := h.topics.getOrCreate(name)

		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		if _, ok := t.subscribers[client]; ok {
			t.mu.Unlock()
			return false
		}
		if !client.track(name) {
			t.mu.Unlock()
			h.topics.removeIfEmpty(t)
			return false
		}
		t.subscribers[client] = struct{}{}
		t.mu.Unlock()

		h.metrics.IncSubscriptions(string(t.kind))
		return true
	}
}

func (h *Hub) Unsubscribe(client *Client, name string) bool {
	t := h.topics.get(name)
	if t == nil {
		return false
	}

	t.mu.Lock()
	_, ok := t.subscribers[client]
	delete(t.subscribers, client)
	empty := len(t.subscribers) == 0
	t.mu.Unlock()

	client.untrack(name)
	if ok {
		h.metrics.DecSubscriptions(string(t.kind))
	}
	if empty {
		h.topics.removeIfEmpty(t)
	}
	return ok
}

func (h *Hub) UnsubscribeAll(client *Client) {
	for _, name := range client.Topics() {
		h.Unsubscribe(client, name)
	}
}

// Publish delivers payload to local subscribers of topic and, for admin alert
// topics, forwards it to the relay. It returns the number of local
// connections that accepted it.
func (h *Hub) Publish(topic string, payload []byte) int {
	delivered := h.Deliver(topic, payload, false)
	h.forward(topic, payload, false)
	return delivered
}

// PublishOnce delivers payload and then tears the topic down.
func (h *Hub) PublishOnce(topic string, payload []byte) int {
	delivered := h.Deliver(topic, payload, true)
	h.forward(topic, payload, true)
	return delivered
}

// Deliver is the local half of Publish. Relays call it for messages that
// originated on another instance.
func (h *Hub) Deliver(name string, payload []byte, once bool) int {
	t := h.topics.get(name)
	if t == nil {
		return 0
	}

	var slow []*Client
	delivered, dropped := 0, 0

	t.mu.RLock()
	for c := range t.subscribers {
		ok, drops := c.trySend(payload)
		if ok {
			delivered++
			continue
		}
		dropped++
		if h.cfg.MaxDrops > 0 && drops >= h.cfg.MaxDrops {
			slow = append(slow, c)
		}
	}
	t.mu.RUnlock()

	kind := string(t.kind)
	if delivered > 0 {
		h.metrics.AddDelivered(kind, delivered)
	}
	if dropped > 0 {
		h.metrics.AddDropped(kind, dropped)
		h.logger.Debug().
			Str("topic", name).
			Int("dropped", dropped).
			Msg("Dropped messages for full subscriber queues")
	}

	for _, c := range slow {
		h.disconnectSlow(c)
	}

	if once {
		for _, c := range h.topics.remove(name) {
			c.untrack(name)
			h.metrics.DecSubscriptions(kind)
		}
	}
	return delivered
}

func (h *Hub) forward(topic string, payload []byte, once bool) {
	if h.relay == nil || !protocol.KindOf(topic).Relayed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.relay.Publish(ctx, topic, payload, once); err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to relay publish")
	}
}

func (h *Hub) disconnectSlow(c *Client) {
	if !c.Close() {
		return
	}
	h.metrics.IncSlowConsumers()
	h.logger.Warn().
		Str("clientId", c.ID).
		Str("userId", c.UserID).
		Msg("Client send buffer full, disconnecting")
	h.UnsubscribeAll(c)
}

// Send queues one message for a single client.
func (h *Hub) Send(client *Client, data []byte) bool {
	ok, drops := client.trySend(data)
	if !ok && h.cfg.MaxDrops > 0 && drops >= h.cfg.MaxDrops {
		h.disconnectSlow(client)
	}
	return ok
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	clients, users := len(h.clients), len(h.userClients)
	h.mu.RUnlock()

	topics, subs, byKind := h.topics.stats()
	return Stats{
		Clients:       clients,
		Users:         users,
		Topics:        topics,
		Subscriptions: subs,
		ByKind:        byKind,
	}
}

func (h *Hub) SubscriberCount(topic string) int {
	t := h.topics.get(topic)
	if t == nil {
		return 0
	}
	return t.size()
}
