package metrics

import (
	"fmt"

	"vitals-bridge/internal/dsp"
)

// 生理呼吸频带（Hz），对应 6-30 BPM
const (
	respBandLowHz  = 0.1
	respBandHighHz = 0.5
)

// RespirationEstimator 从单个 PPG 通道估计呼吸率
//
// 算法：私有拷贝 → 线性去趋势 → 0.1-0.5 Hz 三阶零相位带通 →
// 实数 FFT 幅度谱（不加窗）→ 频带内取幅度峰值 → 峰值频率 ×60 得 BPM。
// 配置必须保证窗口长度使频带内至少存在一个频点。
type RespirationEstimator struct {
	samplingRate int
}

// NewRespirationEstimator 创建呼吸率估计器
func NewRespirationEstimator(samplingRate int) *RespirationEstimator {
	return &RespirationEstimator{samplingRate: samplingRate}
}

// Estimate 估计呼吸率（BPM），不修改调用方数据
func (e *RespirationEstimator) Estimate(window []float64) (float64, error) {
	signal := append([]float64(nil), window...)

	dsp.Detrend(signal)
	dsp.Bandpass(signal, float64(e.samplingRate), respBandLowHz, respBandHighHz, 3)

	mags := dsp.Spectrum(signal)
	freqs := dsp.FreqAxis(float64(e.samplingRate), len(mags))

	peakHz, ok := dsp.PeakInBand(mags, freqs, respBandLowHz, respBandHighHz)
	if !ok {
		return 0, fmt.Errorf("no spectral bins in respiration band: window %d samples at %d Hz",
			len(window), e.samplingRate)
	}

	return peakHz * 60, nil
}
