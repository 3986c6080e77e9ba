package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay fans auth events out to the other API nodes over Redis pub/sub and NATS.
type Relay struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// relaySeenWindow bounds how long message ids are remembered. A message sent over
// both transports arrives twice and is delivered once.
const relaySeenWindow = time.Minute

type relayEvent struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Event  Event     `json:"event"`
	SentAt time.Time `json:"sent_at"`
}

// NewRelay returns nil when neither transport is configured.
func NewRelay(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Relay {
	if channelBase == "" || (redisClient == nil && natsConn == nil) {
		return nil
	}

	return &Relay{
		redis:        redisClient,
		redisChannel: channelBase + ":auth",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", ".") + ".auth",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "auth_relay").Logger(),
		seen:         make(map[string]time.Time),
	}
}

// NodeID identifies this process on the relay.
func (r *Relay) NodeID() string {
	return r.nodeID
}

// Publish sends a locally raised event to the other nodes.
func (r *Relay) Publish(ctx context.Context, event Event) error {
	event.Session = nil
	event.Remote = false

	payload, err := json.Marshal(relayEvent{ID: uuid.NewString(), Source: r.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if r.redis != nil {
		if err := r.redis.Publish(ctx, r.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.nats != nil {
		if err := r.nats.Publish(r.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Start consumes events raised on other nodes until ctx is cancelled.
func (r *Relay) Start(ctx context.Context, deliver func(context.Context, Event)) {
	if r.redis != nil {
		go r.consumeRedis(ctx, deliver)
	}
	if r.nats != nil {
		r.consumeNATS(ctx, deliver)
	}
}

func (r *Relay) consumeRedis(ctx context.Context, deliver func(context.Context, Event)) {
	pubsub := r.redis.Subscribe(ctx, r.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			r.logger.Error().Err(err).Msg("auth relay redis subscription closed")
			return
		}
		r.handle(ctx, []byte(msg.Payload), deliver)
	}
}

func (r *Relay) consumeNATS(ctx context.Context, deliver func(context.Context, Event)) {
	sub, err := r.nats.Subscribe(r.natsSubject, func(msg *nats.Msg) {
		r.handle(ctx, msg.Data, deliver)
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to subscribe to nats auth subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to drain auth nats subscription")
		}
	}()
}

func (r *Relay) handle(ctx context.Context, payload []byte, deliver func(context.Context, Event)) {
	var message relayEvent
	if err := json.Unmarshal(payload, &message); err != nil {
		r.logger.Warn().Err(err).Msg("invalid auth relay payload")
		return
	}

	if message.Source == r.nodeID || r.duplicate(message.ID) {
		return
	}

	event := message.Event
	event.Remote = true
	event.Session = nil
	deliver(ctx, event)
}

func (r *Relay) duplicate(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, at := range r.seen {
		if now.Sub(at) > relaySeenWindow {
			delete(r.seen, key)
		}
	}
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = now
	return false
}
