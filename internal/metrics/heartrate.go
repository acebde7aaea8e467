package metrics

import (
	"context"
	"fmt"
	"math"

	"vitals-bridge/internal/board"
	"vitals-bridge/internal/dsp"
	"vitals-bridge/internal/smoothing"

	"go.uber.org/zap"
)

// 发布的指标键
const (
	KeyOxygenPercent  = "osc_oxygen_percent"
	KeyHeartBPS       = "osc_heart_bps"
	KeyHeartBPM       = "osc_heart_bpm"
	KeyRespirationBPM = "osc_respiration_bpm"
)

// 心搏带通频带（Hz）
const (
	heartFilterLowHz  = 0.1
	heartFilterHighHz = 4.25
)

// 厂商血氧原语返回原生百分比单位，按固定外部契约 ×0.01 归一
const oxygenScale = 0.01

// HeartRateSource 心率/血氧/呼吸指标源
//
// 每 tick 从辅助配置档拉取红光、红外、环境光三个 PPG 通道，
// 扣除环境光后分别计算血氧、心率与呼吸率，经 EMA 平滑后输出。
// 仅支持辅助 PPG 配置档的板卡型号可构造本源。
type HeartRateSource struct {
	driver        board.Driver
	logger        *zap.Logger
	samplingRate  int
	channels      []int // 红光、红外、环境光通道行索引
	fftSize       int
	windowSeconds int
	maxSamples    int
	respiration   *RespirationEstimator
	smoother      *smoothing.Smoother
}

// NewHeartRateSource 创建心率指标源
//
// 窗口长度（秒）= floor(fftSize/采样率)+1，最大采样数 = 采样率×窗口秒数。
// 板卡不支持辅助配置档时返回 board.ErrPresetUnsupported。
func NewHeartRateSource(driver board.Driver, fftSize int, emaDecay float64, logger *zap.Logger) (*HeartRateSource, error) {
	rate, err := driver.SamplingRate(board.AncillaryPreset)
	if err != nil {
		return nil, fmt.Errorf("heart rate source requires ancillary preset: %w", err)
	}
	channels, err := driver.ChannelIndices(board.AncillaryPreset)
	if err != nil {
		return nil, fmt.Errorf("heart rate source requires ancillary preset: %w", err)
	}
	if len(channels) < 3 {
		return nil, fmt.Errorf("ancillary preset exposes %d ppg channels, need 3", len(channels))
	}

	windowSeconds := fftSize/rate + 1

	return &HeartRateSource{
		driver:        driver,
		logger:        logger,
		samplingRate:  rate,
		channels:      channels,
		fftSize:       fftSize,
		windowSeconds: windowSeconds,
		maxSamples:    rate * windowSeconds,
		respiration:   NewRespirationEstimator(rate),
		smoother:      smoothing.NewSmoother(emaDecay),
	}, nil
}

// Name 源名称
func (s *HeartRateSource) Name() string {
	return "heartrate"
}

// WindowSeconds 所需窗口长度（秒）
func (s *HeartRateSource) WindowSeconds() int {
	return s.windowSeconds
}

// Produce 执行一次心率指标计算
func (s *HeartRateSource) Produce(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.driver.CurrentData(board.AncillaryPreset, s.maxSamples)
	if err != nil {
		return nil, fmt.Errorf("pull ppg window: %w", err)
	}

	for _, row := range s.channels {
		if row >= len(data) || len(data[row]) < s.maxSamples {
			return nil, fmt.Errorf("incomplete ppg window: want %d samples on channel %d", s.maxSamples, row)
		}
	}

	// 红光、红外通道扣除环境光
	ambient := data[s.channels[2]]
	red := subtract(data[s.channels[0]], ambient)
	ir := subtract(data[s.channels[1]], ambient)

	oxygen := dsp.VendorOxygenLevel(ir, red, float64(s.samplingRate)) * oxygenScale

	heartBPS, heartBPM := s.estimateHeartRate(ir, red)

	respIR, err := s.respiration.Estimate(ir)
	if err != nil {
		return nil, fmt.Errorf("respiration from ir channel: %w", err)
	}
	respRed, err := s.respiration.Estimate(red)
	if err != nil {
		return nil, fmt.Errorf("respiration from red channel: %w", err)
	}
	respAvg := (respIR + respRed) / 2

	smoothed := s.smoother.Apply([]float64{oxygen, heartBPS, heartBPM, respAvg})

	// 心率与呼吸率按整数发布，血氧与 BPS 保留小数
	return Record{
		KeyOxygenPercent:  smoothed[0],
		KeyHeartBPS:       smoothed[1],
		KeyHeartBPM:       math.Floor(smoothed[2] + 0.5),
		KeyRespirationBPM: math.Floor(smoothed[3] + 0.5),
	}, nil
}

// estimateHeartRate 去趋势与带通后交给厂商心率原语，返回 BPS 与 BPM
func (s *HeartRateSource) estimateHeartRate(ir, red []float64) (bps, bpm float64) {
	hrIR := append([]float64(nil), ir...)
	hrRed := append([]float64(nil), red...)

	dsp.Detrend(hrIR)
	dsp.Detrend(hrRed)
	dsp.Bandpass(hrIR, float64(s.samplingRate), heartFilterLowHz, heartFilterHighHz, 2)
	dsp.Bandpass(hrRed, float64(s.samplingRate), heartFilterLowHz, heartFilterHighHz, 2)

	bpm = dsp.VendorHeartRate(hrIR, hrRed, float64(s.samplingRate), s.fftSize)
	return bpm / 60, bpm
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
