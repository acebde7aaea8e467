package publisher

import (
	"context"
	"fmt"
	"time"

	"vitals-bridge/internal/config"
	"vitals-bridge/internal/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisPublisher Redis Streams 镜像发布器
//
// 每条聚合记录 XADD 为一条 stream 消息（字段即指标键），
// 供需要历史的下游消费者按消费者组读取。
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisClient 创建 Redis 客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisPublisher 创建 Redis Streams 发布器
func NewRedisPublisher(client *redis.Client, stream string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// PublishMetrics 将聚合记录镜像到 stream
func (p *RedisPublisher) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	values := make(map[string]interface{}, len(rec)+1)
	for k, v := range rec {
		values[k] = fmt.Sprintf("%f", v)
	}
	values["timestamp"] = time.Now().Unix()

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}

// PublishConnectivity 将连通状态变化作为事件写入 stream
func (p *RedisPublisher) PublishConnectivity(ctx context.Context, connected bool) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event":     "connectivity",
			"connected": fmt.Sprintf("%t", connected),
			"timestamp": time.Now().Unix(),
		},
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish connectivity to stream %s: %w", p.stream, err)
	}
	return nil
}
