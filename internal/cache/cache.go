// Package cache keeps built charts in Redis so repeated chart requests for
// the same bet skip the EV record query.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/logger"
)

// ChartCache stores built charts. A failed lookup is a miss.
type ChartCache interface {
	Get(ctx context.Context, key string) (*chart.Chart, bool)
	Set(ctx context.Context, key string, c *chart.Chart)
}

// Key names the cache entry of a bet's chart, optionally drawn against a
// session's overlays.
func Key(betID string, sessionID int64) string {
	if sessionID == 0 {
		return "chart:" + betID
	}
	return fmt.Sprintf("chart:%s:session:%d", betID, sessionID)
}

// Redis is a ChartCache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ChartCache = (*Redis)(nil)

func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, ttl: ttl}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (*chart.Chart, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("chart cache get %s: %v", key, err)
		}
		return nil, false
	}
	var c chart.Chart
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Warn("chart cache entry %s is malformed: %v", key, err)
		return nil, false
	}
	return &c, true
}

func (r *Redis) Set(ctx context.Context, key string, c *chart.Chart) {
	data, err := json.Marshal(c)
	if err != nil {
		logger.Warn("failed to marshal chart %s: %v", key, err)
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		logger.Warn("chart cache set %s: %v", key, err)
	}
}

// Nop never stores anything. It is used when caching is disabled.
type Nop struct{}

func (Nop) Get(context.Context, string) (*chart.Chart, bool) { return nil, false }

func (Nop) Set(context.Context, string, *chart.Chart) {}
