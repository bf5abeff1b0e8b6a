package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// redisCollector samples validation retention state at scrape time instead
// of keeping counters in sync on every write.
type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	retainedDesc *prometheus.Desc
	upDesc       *prometheus.Desc
}

const retentionIndexKey = "governor:validations:ttl"

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		retainedDesc: prometheus.NewDesc(
			"governor_validations_retained",
			"Number of validation task snapshots currently retained in Redis.",
			nil, nil,
		),
		upDesc: prometheus.NewDesc(
			"governor_redis_up",
			"Whether the Redis backing store answers PING (1) or not (0).",
			nil, nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.retainedDesc
	ch <- c.upDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	up := 1.0
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		up = 0
	}
	emitGauge(ch, c.upDesc, up)

	retained, err := c.rdb.ZCard(ctx, retentionIndexKey).Result()
	if err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}
	emitGauge(ch, c.retainedDesc, float64(retained))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
