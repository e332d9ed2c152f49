package database

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"callhub-backend/pkg/metrics"
)

// MetricsHook records every Redis command in the service metrics
type MetricsHook struct {
	metrics *metrics.Metrics
}

// NewMetricsHook creates a go-redis hook backed by m
func NewMetricsHook(m *metrics.Metrics) *MetricsHook {
	return &MetricsHook{metrics: m}
}

var _ redis.Hook = (*MetricsHook)(nil)

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.RecordRedisCommand(cmd.Name(), time.Since(start), commandError(err))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.metrics.RecordRedisCommand("pipeline", time.Since(start), commandError(err))
		return err
	}
}

// commandError treats a missing key as success
func commandError(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
