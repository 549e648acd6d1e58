package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketwire/quotefeed/pkg/models"
)

const (
	keyPrefix     = "quote:"
	channelPrefix = "quotes."
)

// Compile-time check to ensure RedisStore implements QuoteStore
var _ QuoteStore = (*RedisStore)(nil)

// RedisStore keeps the latest quote per symbol under quote:<symbol> with a
// TTL and publishes every write on quotes.<symbol>.
type RedisStore struct {
	client *redis.Client
	pubsub *redis.PubSub
	ttl    time.Duration
	mu     sync.Mutex // protects pubsub subscription changes
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	ps := client.Subscribe(context.Background())
	return &RedisStore{
		client: client,
		pubsub: ps,
		ttl:    ttl,
	}
}

// Put stores the quote and publishes it in a single pipeline so the stored
// value and the fan-out payload can never diverge.
func (r *RedisStore) Put(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, keyPrefix+q.Symbol, payload, r.ttl)
	pipe.Publish(ctx, channelPrefix+q.Symbol, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the live quote for symbol. The TTL set in Put makes the key
// vanish on expiry, so an expired entry reads as ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, symbol string) (models.Quote, error) {
	b, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Quote{}, ErrNotFound
	}
	if err != nil {
		return models.Quote{}, err
	}

	var q models.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return models.Quote{}, err
	}
	return q, nil
}

func (r *RedisStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pubsub.Subscribe(ctx, channelPrefix+symbol)
}

func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pubsub.Unsubscribe(ctx, channelPrefix+symbol)
}

// RunPubSub reads published quotes and hands them to the callback. Payloads
// that fail to decode are skipped; a malformed message must not kill the
// delivery loop.
func (r *RedisStore) RunPubSub(ctx context.Context, onQuote func(q models.Quote)) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var q models.Quote
			if err := json.Unmarshal([]byte(msg.Payload), &q); err != nil {
				continue
			}
			onQuote(q)
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}
