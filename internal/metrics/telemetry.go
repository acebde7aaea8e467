package metrics

import (
	"context"
	"fmt"
	"math"

	"vitals-bridge/internal/board"

	"go.uber.org/zap"
)

// 遥测指标键
const (
	KeyBatteryPercent = "osc_battery_percent"
	KeySignalQuality  = "osc_signal_quality"
)

// 信号质量换算的标准差基准：偏差达到该值时质量降到 0.5
const signalQualityScale = 50.0

// TelemetrySource 设备遥测指标源
//
// 输出电量与主配置档各通道的信号质量（标准差换算到 (0,1]）。
// 遥测值本身稳定，不做 EMA 平滑。板卡不支持电量上报时省略电量键，
// 键集合在构造时确定，跨 tick 不变。
type TelemetrySource struct {
	driver        board.Driver
	logger        *zap.Logger
	samplingRate  int
	channels      []int
	windowSeconds int
	maxSamples    int
	battery       board.BatteryReporter // nil 表示板卡不支持
}

// NewTelemetrySource 创建遥测指标源
func NewTelemetrySource(driver board.Driver, windowSeconds int, logger *zap.Logger) (*TelemetrySource, error) {
	rate, err := driver.SamplingRate(board.DefaultPreset)
	if err != nil {
		return nil, fmt.Errorf("telemetry source: %w", err)
	}
	channels, err := driver.ChannelIndices(board.DefaultPreset)
	if err != nil {
		return nil, fmt.Errorf("telemetry source: %w", err)
	}

	src := &TelemetrySource{
		driver:        driver,
		logger:        logger,
		samplingRate:  rate,
		channels:      channels,
		windowSeconds: windowSeconds,
		maxSamples:    rate * windowSeconds,
	}
	if battery, ok := driver.(board.BatteryReporter); ok {
		src.battery = battery
	}
	return src, nil
}

// Name 源名称
func (s *TelemetrySource) Name() string {
	return "telemetry"
}

// WindowSeconds 所需窗口长度（秒）
func (s *TelemetrySource) WindowSeconds() int {
	return s.windowSeconds
}

// Produce 执行一次遥测计算
func (s *TelemetrySource) Produce(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.driver.CurrentData(board.DefaultPreset, s.maxSamples)
	if err != nil {
		return nil, fmt.Errorf("pull telemetry window: %w", err)
	}

	// 各通道标准差的均值反映接触/干扰状况
	var devSum float64
	for _, row := range s.channels {
		if row >= len(data) {
			return nil, fmt.Errorf("telemetry window missing channel %d", row)
		}
		devSum += stddev(data[row])
	}
	avgDev := devSum / float64(len(s.channels))
	quality := signalQualityScale / (signalQualityScale + avgDev)

	rec := Record{KeySignalQuality: quality}

	if s.battery != nil {
		level, err := s.battery.BatteryLevel()
		if err != nil {
			return nil, fmt.Errorf("read battery level: %w", err)
		}
		rec[KeyBatteryPercent] = level
	}

	return rec, nil
}

func stddev(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(window)))
}
