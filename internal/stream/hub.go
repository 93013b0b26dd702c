package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "map:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix

	publishQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// Hub fans map session events out to websocket clients. With a Redis client
// set, every broadcast is also published so hubs in other processes deliver
// it to their own clients. Publishing happens on a single goroutine, in
// broadcast order, so callers never wait on Redis.
type Hub struct {
	id      string
	redis   *redis.Client
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	publish chan outbound
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type outbound struct {
	channel string
	msg     []byte
}

type Client struct {
	SessionID string
	Send      chan []byte
}

type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		log:     logger.With("component", "stream"),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.ctx, h.cancel = context.WithCancel(context.Background())
		h.publish = make(chan outbound, publishQueueSize)
		pubsub := redisClient.PSubscribe(h.ctx, channelPattern)
		go h.subscribeRedis(h.ctx, pubsub)
		go h.publishRedis(h.ctx)
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := sessionClients[client]; !ok {
		return
	}
	delete(sessionClients, client)
	if len(sessionClients) == 0 {
		delete(h.clients, client.SessionID)
	}
	close(client.Send)
}

// Clients reports how many local clients watch sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Broadcast delivers payload to the session's local clients and queues it for
// the session's Redis channel. A full queue drops the Redis copy.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.id, Payload: payload})
	if err != nil {
		h.log.Error("encode redis envelope failed", "err", err)
		return
	}
	select {
	case <-h.ctx.Done():
	case h.publish <- outbound{channel: redisChannel(sessionID), msg: msg}:
	default:
		h.log.Warn("redis publish queue full, dropping event", "session", sessionID)
	}
}

func (h *Hub) publishRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-h.publish:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.redis.Publish(pctx, out.channel, out.msg).Err()
			cancel()
			if err != nil {
				h.log.Warn("redis publish failed", "channel", out.channel, "err", err)
			}
		}
	}
}

// Close stops the Redis subscription and publisher.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

// deliver never blocks: a client whose buffer is full misses the message.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("dropping message for slow client", "session", sessionID)
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sessionID := sessionIDFromChannel(msg.Channel)
			if sessionID == "" {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.Warn("malformed redis message", "channel", msg.Channel, "err", err)
				continue
			}
			if env.Origin == h.id {
				continue
			}
			h.deliver(sessionID, env.Payload)
		}
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	// map:{session}:events
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
