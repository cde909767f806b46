package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "stream:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
	sendBuffer     = 64

	subscribeTimeout = 3 * time.Second
	publishTimeout   = 500 * time.Millisecond
)

// Hub fans payloads out to websocket subscribers by topic. With a redis client,
// broadcasts are also relayed to hubs running in other instances.
type Hub struct {
	redis   *redis.Client
	log     *zap.Logger
	origin  string
	clients map[string]map[*Subscriber]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

type Subscriber struct {
	Topic string
	Send  chan []byte
}

// envelope tags relayed payloads with the publishing hub so it can skip its own echo.
type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		log:     log,
		origin:  uuid.NewString(),
		clients: map[string]map[*Subscriber]struct{}{},
		cancel:  func() {},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		if err := h.subscribe(ctx); err != nil {
			log.Warn("redis subscribe failed, events stay local", zap.Error(err))
			h.redis = nil
		}
	}
	return h
}

// subscribe confirms the pattern subscription before relaying starts.
func (h *Hub) subscribe(ctx context.Context) error {
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	confirmCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go h.relay(ctx, pubsub)
	return nil
}

func (h *Hub) Register(topic string) *Subscriber {
	sub := &Subscriber{
		Topic: topic,
		Send:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Subscriber]struct{}{}
	}
	h.clients[topic][sub] = struct{}{}
	return sub
}

func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[sub.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[sub]; !ok {
		return
	}
	delete(topicClients, sub)
	if len(topicClients) == 0 {
		delete(h.clients, sub.Topic)
	}
	close(sub.Send)
}

// Broadcast delivers payload to local subscribers of topic and relays it to other
// instances. Slow subscribers drop messages rather than block the caller.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.deliver(topic, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, Payload: payload})
	if err != nil {
		h.log.Warn("encode stream envelope", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.redis.Publish(ctx, redisChannel(topic), msg).Err(); err != nil {
		h.log.Warn("redis publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Close stops relaying from redis. Local delivery keeps working.
func (h *Hub) Close() {
	h.cancel()
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients[topic] {
		select {
		case sub.Send <- payload:
		default:
		}
	}
}

func (h *Hub) relay(ctx context.Context, pubsub *redis.PubSub) {
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
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.Warn("drop malformed stream message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(topicFromChannel(msg.Channel), env.Payload)
		}
	}
}

func redisChannel(topic string) string {
	return channelPrefix + topic + channelSuffix
}

func topicFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
