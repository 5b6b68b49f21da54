// Package statecache mirrors the latest status snapshot into Redis so other
// processes can read it without talking to the bridge.
package statecache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/pkg/retry"
	"github.com/c360/mavcot/telemetry"
)

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Config holds the key and expiry for the mirrored snapshot.
type Config struct {
	Key          string
	TTL          time.Duration
	WriteTimeout time.Duration
}

// Cache writes snapshots from a single background goroutine. Offer never
// blocks; when writes fall behind only the newest snapshot is kept.
type Cache struct {
	client RedisClient
	cfg    Config
	logger *slog.Logger

	pending chan telemetry.Status
	done    chan struct{}
	stop    context.CancelFunc
	once    sync.Once

	written atomic.Int64
	failed  atomic.Int64
	healthy atomic.Bool
	onWrite func(ok bool)
}

// Connect dials addr and pings it with the given retry policy.
func Connect(ctx context.Context, addr string, policy retry.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	_, err := retry.DoWithResult(ctx, policy, func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Result()
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "statecache", "Connect", "ping "+addr)
	}
	return client, nil
}

// New creates a cache. onWrite, if set, is called after every write attempt.
func New(client RedisClient, cfg Config, logger *slog.Logger, onWrite func(ok bool)) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Cache{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "statecache", "key", cfg.Key),
		pending: make(chan telemetry.Status, 1),
		done:    make(chan struct{}),
		onWrite: onWrite,
	}
}

// Start launches the writer goroutine.
func (c *Cache) Start(ctx context.Context) {
	ctx, c.stop = context.WithCancel(ctx)
	go c.run(ctx)
}

// Offer queues s for writing, replacing any snapshot not yet written.
// It is safe to use as telemetry.Deps.OnStatus.
func (c *Cache) Offer(s telemetry.Status) {
	for {
		select {
		case c.pending <- s:
			return
		default:
		}
		// Full: discard the stale snapshot and try again.
		select {
		case <-c.pending:
		default:
		}
	}
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			// Flush whatever is still queued so the last state survives.
			select {
			case s := <-c.pending:
				flushCtx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
				_ = c.write(flushCtx, s)
				cancel()
			default:
			}
			return
		case s := <-c.pending:
			_ = c.write(ctx, s)
		}
	}
}

func (c *Cache) write(ctx context.Context, s telemetry.Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return c.record(errors.WrapFatal(err, "Cache", "write", "marshal status"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.cfg.Key, data, c.cfg.TTL).Err(); err != nil {
		return c.record(errors.WrapTransient(err, "Cache", "write", "set "+c.cfg.Key))
	}
	return c.record(nil)
}

func (c *Cache) record(err error) error {
	ok := err == nil
	if ok {
		c.written.Add(1)
	} else {
		c.failed.Add(1)
	}
	if c.healthy.Swap(ok) != ok {
		if ok {
			c.logger.Info("Status mirror writing")
		} else {
			c.logger.Warn("Status mirror write failed", "error", err)
		}
	}
	if c.onWrite != nil {
		c.onWrite(ok)
	}
	return err
}

// Load reads the mirrored snapshot. It returns false when the key is absent
// or expired.
func (c *Cache) Load(ctx context.Context) (telemetry.Status, bool, error) {
	var s telemetry.Status
	data, err := c.client.Get(ctx, c.cfg.Key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, errors.WrapTransient(err, "Cache", "Load", "get "+c.cfg.Key)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, false, errors.WrapInvalid(err, "Cache", "Load", "decode status")
	}
	return s, true, nil
}

// Written returns the number of successful writes.
func (c *Cache) Written() int64 { return c.written.Load() }

// Failed returns the number of failed writes.
func (c *Cache) Failed() int64 { return c.failed.Load() }

// Close stops the writer after flushing the pending snapshot, then closes
// the Redis client.
func (c *Cache) Close() error {
	var err error
	c.once.Do(func() {
		if c.stop != nil {
			c.stop()
			<-c.done
		}
		err = c.client.Close()
	})
	return err
}
