// Package redis persists connections and conversations in Redis and provides a distributed lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "formweave:"

// maxTxRetries bounds optimistic transaction retries on concurrent writers.
const maxTxRetries = 5

// Store holds the Redis client shared by the connection and conversation stores.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for conversations. Connections never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Connections returns the connection store.
func (s *Store) Connections() *ConnectionStore {
	return &ConnectionStore{kind: s.kind("connection", 0)}
}

// Conversations returns the conversation store.
func (s *Store) Conversations() *ConversationStore {
	return &ConversationStore{kind: s.kind("conversation", s.ttl)}
}

// Client exposes the underlying client, e.g. to build a Locker on it.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) kind(name string, ttl time.Duration) keyspace {
	return keyspace{client: s.client, prefix: s.prefix + name + ":", ttl: ttl}
}

// errMissing is mapped to the domain not-found sentinels by the stores.
var errMissing = errors.New("key does not exist")

// keyspace stores JSON documents of one kind with a ZSET index for listing.
type keyspace struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

func (k keyspace) key(id string) string {
	return k.prefix + id
}

func (k keyspace) indexKey() string {
	return k.prefix + "index"
}

// score is the index expiry of a document written now.
func (k keyspace) score() float64 {
	if k.ttl == 0 {
		return 4102444800 // 2100-01-01 (Far enough for now)
	}
	return float64(time.Now().Add(k.ttl).Unix())
}

// write queues the document and its index entry on pipe.
func (k keyspace) write(ctx context.Context, pipe backend.Pipeliner, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}
	pipe.Set(ctx, k.key(id), data, k.ttl)
	pipe.ZAdd(ctx, k.indexKey(), backend.Z{Score: k.score(), Member: id})
	return nil
}

// reader is satisfied by the client and by a transaction.
type reader interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (k keyspace) read(ctx context.Context, cmd reader, id string, v any) error {
	val, err := cmd.Get(ctx, k.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return errMissing
		}
		return fmt.Errorf("failed to get from redis: %w", err)
	}
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}
	return nil
}

func (k keyspace) save(ctx context.Context, id string, v any) error {
	pipe := k.client.TxPipeline()
	if err := k.write(ctx, pipe, id, v); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// update runs fn inside an optimistic transaction watching id and any extra keys.
// fn reads through tx and returns the writes to queue in MULTI/EXEC.
func (k keyspace) update(ctx context.Context, id string, fn func(tx *backend.Tx) (func(backend.Pipeliner) error, error), watch ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := k.client.Watch(ctx, func(tx *backend.Tx) error {
			queue, err := fn(tx)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, queue)
			return err
		}, append([]string{k.key(id)}, watch...)...)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s kept conflicting", id)
}

// list prunes expired index entries lazily and returns the remaining IDs.
func (k keyspace) list(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	// ZREMRANGEBYSCORE key -inf (now)
	err := k.client.ZRemRangeByScore(ctx, k.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired entries: %w", err)
	}

	ids, err := k.client.ZRange(ctx, k.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list: %w", err)
	}
	return ids, nil
}
