package publisher

import (
	"context"

	"vitals-bridge/internal/metrics"
	"vitals-bridge/internal/scheduler"
)

// Fanout 将一条记录依次交付多个发布器
//
// 任一发布器失败即中断并返回错误，当前 tick 由调度器记录告警；
// 发布器之间不做补偿。
type Fanout []scheduler.Publisher

// PublishMetrics 依次发布聚合记录
func (f Fanout) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	for _, p := range f {
		if err := p.PublishMetrics(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// PublishConnectivity 依次发布连通信号
func (f Fanout) PublishConnectivity(ctx context.Context, connected bool) error {
	for _, p := range f {
		if err := p.PublishConnectivity(ctx, connected); err != nil {
			return err
		}
	}
	return nil
}
