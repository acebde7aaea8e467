// Package publisher 实现指标发布协作方
//
// 每个成功 tick 的聚合记录以固定的路径式命名空间发布：
// MQTT 下为 <prefix>/<key>，连通信号为 <prefix>/connected（retained）。
// 可选的 Redis Streams 镜像与 Postgres 时序落库通过 Fanout 组合。
package publisher

import (
	"context"
	"fmt"
	"strconv"

	"vitals-bridge/internal/config"
	"vitals-bridge/internal/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher MQTT 指标发布器
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 创建并连接 MQTT 发布器
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// PublishMetrics 将聚合记录按键逐条发布到 <prefix>/<key>
func (p *MQTTPublisher) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	for key, value := range rec {
		topic := p.prefix + "/" + key
		payload := strconv.FormatFloat(value, 'f', -1, 64)

		token := p.client.Publish(topic, p.qos, false, payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
		}
	}
	return nil
}

// PublishConnectivity 发布连通信号（retained，供后上线的订阅方读取）
func (p *MQTTPublisher) PublishConnectivity(ctx context.Context, connected bool) error {
	topic := p.prefix + "/connected"
	payload := strconv.FormatBool(connected)

	token := p.client.Publish(topic, p.qos, true, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish connectivity: %w", token.Error())
	}
	return nil
}

// Close 断开 MQTT 连接
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250) // 250ms 等待在途消息
}
