// Package metrics 提供指标源契约与各指标源实现
//
// 每个指标源每 tick 从板卡拉取一个定长采样窗口，计算若干命名指标，
// 返回指标名到数值的平面映射。指标键为全局命名空间字符串，
// 单个源的键集合跨 tick 稳定。
package metrics

import "context"

// Record 一次 tick 产出的指标映射
type Record map[string]float64

// Source 指标源契约
//
// 按板卡型号在运行时装配具体实现（Telemetry / FocusRelax / HeartRate）。
// 窗口拉取失败对当前 tick 是致命的，由采集循环决定重试或中止。
type Source interface {
	// Name 源名称（日志用）
	Name() string
	// WindowSeconds 本源所需的采样窗口长度（秒），用于启动等待
	WindowSeconds() int
	// Produce 执行一次指标计算
	Produce(ctx context.Context) (Record, error)
}
