package metrics

import (
	"context"
	"fmt"

	"vitals-bridge/internal/board"
	"vitals-bridge/internal/dsp"
	"vitals-bridge/internal/smoothing"

	"go.uber.org/zap"
)

// 脑波频带指标键
const (
	KeyBandPowerDelta = "osc_band_power_avg_delta"
	KeyBandPowerTheta = "osc_band_power_avg_theta"
	KeyBandPowerAlpha = "osc_band_power_avg_alpha"
	KeyBandPowerBeta  = "osc_band_power_avg_beta"
	KeyBandPowerGamma = "osc_band_power_avg_gamma"
	KeyFocus          = "osc_focus"
	KeyRelax          = "osc_relax"
)

// eegBand EEG 频带定义
type eegBand struct {
	key    string
	lowHz  float64
	highHz float64
}

// 经典频带划分
var eegBands = []eegBand{
	{KeyBandPowerDelta, 1, 4},
	{KeyBandPowerTheta, 4, 8},
	{KeyBandPowerAlpha, 8, 13},
	{KeyBandPowerBeta, 13, 30},
	{KeyBandPowerGamma, 30, 50},
}

// FocusRelaxSource 脑波频带功率指标源
//
// 每 tick 从主配置档拉取 EEG 通道，计算各频带的相对功率
// （跨通道平均后归一化为频带占比），并由 beta/theta 与 alpha/beta
// 的占比关系导出 focus/relax 两个心理状态指标。
// 整个向量经本源独立的 EMA 状态平滑。
type FocusRelaxSource struct {
	driver        board.Driver
	logger        *zap.Logger
	samplingRate  int
	channels      []int
	windowSeconds int
	maxSamples    int
	smoother      *smoothing.Smoother
}

// NewFocusRelaxSource 创建脑波指标源
func NewFocusRelaxSource(driver board.Driver, windowSeconds int, emaDecay float64, logger *zap.Logger) (*FocusRelaxSource, error) {
	rate, err := driver.SamplingRate(board.DefaultPreset)
	if err != nil {
		return nil, fmt.Errorf("focus relax source: %w", err)
	}
	channels, err := driver.ChannelIndices(board.DefaultPreset)
	if err != nil {
		return nil, fmt.Errorf("focus relax source: %w", err)
	}

	return &FocusRelaxSource{
		driver:        driver,
		logger:        logger,
		samplingRate:  rate,
		channels:      channels,
		windowSeconds: windowSeconds,
		maxSamples:    rate * windowSeconds,
		smoother:      smoothing.NewSmoother(emaDecay),
	}, nil
}

// Name 源名称
func (s *FocusRelaxSource) Name() string {
	return "focus_relax"
}

// WindowSeconds 所需窗口长度（秒）
func (s *FocusRelaxSource) WindowSeconds() int {
	return s.windowSeconds
}

// Produce 执行一次频带功率计算
func (s *FocusRelaxSource) Produce(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.driver.CurrentData(board.DefaultPreset, s.maxSamples)
	if err != nil {
		return nil, fmt.Errorf("pull eeg window: %w", err)
	}

	// 跨通道累加各频带功率
	powers := make([]float64, len(eegBands))
	for _, row := range s.channels {
		if row >= len(data) || len(data[row]) < s.maxSamples {
			return nil, fmt.Errorf("incomplete eeg window on channel %d", row)
		}

		signal := append([]float64(nil), data[row]...)
		dsp.Detrend(signal)
		mags := dsp.Spectrum(signal)
		freqs := dsp.FreqAxis(float64(s.samplingRate), len(mags))

		for b, band := range eegBands {
			powers[b] += bandPower(mags, freqs, band.lowHz, band.highHz)
		}
	}

	// 归一化为频带占比
	var total float64
	for _, p := range powers {
		total += p
	}
	if total == 0 {
		return nil, fmt.Errorf("eeg window has no spectral power")
	}
	for i := range powers {
		powers[i] /= total
	}

	theta, alpha, beta := powers[1], powers[2], powers[3]
	focus := beta / (beta + theta)
	relax := alpha / (alpha + beta)

	target := append(append([]float64(nil), powers...), focus, relax)
	smoothed := s.smoother.Apply(target)

	rec := make(Record, len(eegBands)+2)
	for b, band := range eegBands {
		rec[band.key] = smoothed[b]
	}
	rec[KeyFocus] = smoothed[len(eegBands)]
	rec[KeyRelax] = smoothed[len(eegBands)+1]

	return rec, nil
}

// bandPower 频带内幅度平方和
func bandPower(mags, freqs []float64, lowHz, highHz float64) float64 {
	var power float64
	for i, f := range freqs {
		if f >= lowHz && f < highHz && i < len(mags) {
			power += mags[i] * mags[i]
		}
	}
	return power
}
