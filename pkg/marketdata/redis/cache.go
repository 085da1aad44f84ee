package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotPublished is returned when a view has not been written yet
var ErrNotPublished = errors.New("market data not published")

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client from options
func NewClient(opts RedisOptions) *redis.Client {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Cache mirrors the book's market-data views into Redis so other processes
// can read top of book and depth without touching the simulator. Level 1
// updates are also published on a channel.
type Cache struct {
	client    *redis.Client
	level1Key string
	snapKey   string
	bidsKey   string
	asksKey   string
	channel   string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCache creates a Cache writing under prefix. A zero ttl keeps keys forever.
func NewCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		client:    client,
		level1Key: fmt.Sprintf("%s:l1", prefix),
		snapKey:   fmt.Sprintf("%s:snapshot", prefix),
		bidsKey:   fmt.Sprintf("%s:depth:bids", prefix),
		asksKey:   fmt.Sprintf("%s:depth:asks", prefix),
		channel:   fmt.Sprintf("%s:updates", prefix),
		ttl:       ttl,
		logger:    logger,
	}
}

// PublishLevel1 stores top of book and announces it on the updates channel
func (c *Cache) PublishLevel1(ctx context.Context, data core.Level1Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal level 1: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.level1Key, payload, c.ttl)
		pipe.Publish(ctx, c.channel, payload)
		return nil
	})
	if err != nil {
		c.logger.Error("failed to publish level 1",
			zap.String("key", c.level1Key),
			zap.Error(err))
		return err
	}
	return nil
}

// PublishSnapshot stores the snapshot and rebuilds both depth sorted sets.
// Levels are scored by price so readers can range over them in order.
func (c *Cache) PublishSnapshot(ctx context.Context, snap core.OrderBookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	bids, err := levelMembers(snap.Bids)
	if err != nil {
		return err
	}
	asks, err := levelMembers(snap.Asks)
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.snapKey, payload, c.ttl)
		pipe.Del(ctx, c.bidsKey, c.asksKey)
		if len(bids) > 0 {
			pipe.ZAdd(ctx, c.bidsKey, bids...)
		}
		if len(asks) > 0 {
			pipe.ZAdd(ctx, c.asksKey, asks...)
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, c.bidsKey, c.ttl)
			pipe.Expire(ctx, c.asksKey, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("failed to publish snapshot",
			zap.String("key", c.snapKey),
			zap.Int("bids", len(bids)),
			zap.Int("asks", len(asks)),
			zap.Error(err))
		return err
	}

	c.logger.Debug("snapshot published",
		zap.Uint64("timestamp", uint64(snap.Timestamp)),
		zap.Int("bids", len(bids)),
		zap.Int("asks", len(asks)))
	return nil
}

func levelMembers(levels []core.PriceLevel) ([]redis.Z, error) {
	members := make([]redis.Z, 0, len(levels))
	for _, level := range levels {
		data, err := json.Marshal(level)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal price level: %w", err)
		}
		members = append(members, redis.Z{Score: level.Price.Float64(), Member: string(data)})
	}
	return members, nil
}

// Level1 reads back the last published top of book
func (c *Cache) Level1(ctx context.Context) (core.Level1Data, error) {
	var data core.Level1Data
	err := c.getJSON(ctx, c.level1Key, &data)
	return data, err
}

// Snapshot reads back the last published snapshot
func (c *Cache) Snapshot(ctx context.Context) (core.OrderBookSnapshot, error) {
	var snap core.OrderBookSnapshot
	err := c.getJSON(ctx, c.snapKey, &snap)
	return snap, err
}

// TopLevels returns up to depth levels of side from the depth sets, best
// first. depth <= 0 returns every level.
func (c *Cache) TopLevels(ctx context.Context, side core.Side, depth int) ([]core.PriceLevel, error) {
	stop := int64(depth - 1)
	if depth <= 0 {
		stop = -1
	}

	var (
		members []string
		err     error
	)
	if side == core.Buy {
		members, err = c.client.ZRevRange(ctx, c.bidsKey, 0, stop).Result()
	} else {
		members, err = c.client.ZRange(ctx, c.asksKey, 0, stop).Result()
	}
	if err != nil {
		return nil, err
	}

	levels := make([]core.PriceLevel, 0, len(members))
	for _, m := range members {
		var level core.PriceLevel
		if err := json.Unmarshal([]byte(m), &level); err != nil {
			c.logger.Error("failed to unmarshal price level",
				zap.String("member", m),
				zap.Error(err))
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// Subscribe listens for Level 1 updates
func (c *Cache) Subscribe(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, c.channel)
}

// Clear deletes every key the cache owns
func (c *Cache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.level1Key, c.snapKey, c.bidsKey, c.asksKey).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotPublished
		}
		c.logger.Error("failed to get market data",
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return json.Unmarshal(data, v)
}
