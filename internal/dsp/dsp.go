// Package dsp 提供指标估计所需的信号处理原语
//
// 去趋势、零相位巴特沃斯带通、实数 FFT 幅度谱与频带峰值搜索。
// 所有函数操作定长缓冲区，无内部状态。
package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Detrend 去除窗口内的线性趋势 (in place)
// 按最小二乘拟合 v = a + b*i 并逐点扣除
func Detrend(window []float64) {
	n := len(window)
	if n < 2 {
		return
	}

	// x 取采样序号，均值 (n-1)/2
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range window {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range window {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return
	}
	slope := num / den
	intercept := yMean - slope*xMean

	for i := range window {
		window[i] -= intercept + slope*float64(i)
	}
}

// biquad 二阶 IIR 滤波器节（transposed direct form II）
// 一阶节通过置零 a2/b2 表达
type biquad struct {
	a0, a1, a2, b1, b2 float64
	z1, z2             float64
}

func (f *biquad) process(in float64) float64 {
	out := in*f.a0 + f.z1
	f.z1 = in*f.a1 - out*f.b1 + f.z2
	f.z2 = in*f.a2 - out*f.b2
	return out
}

func (f *biquad) reset() {
	f.z1, f.z2 = 0, 0
}

// butterworthSections 计算 N 阶巴特沃斯滤波器的级联节系数
// highpass=false 为低通，true 为高通；阶数任意（奇数阶含一个一阶节）
func butterworthSections(order int, sampleRate, cutoffHz float64, highpass bool) []*biquad {
	// 限制截止频率，防止 Nyquist 附近 tan 发散
	if cutoffHz >= sampleRate*0.499 {
		cutoffHz = sampleRate * 0.499
	}
	if cutoffHz <= 0 {
		cutoffHz = 1e-6
	}

	// 双线性变换预畸变
	w := 2.0 * sampleRate * math.Tan(math.Pi*cutoffHz/sampleRate)
	k := 2.0 * sampleRate

	sections := make([]*biquad, 0, (order+1)/2)

	// 共轭极点对
	for i := 0; i < order/2; i++ {
		theta := math.Pi * (2.0*float64(i) + 1.0) / (2.0 * float64(order))
		re := -math.Sin(theta) // 归一化极点实部，恒为负

		a := k*k - 2.0*re*w*k + w*w
		b1 := (-2.0*k*k + 2.0*w*w) / a
		b2 := (k*k + 2.0*re*w*k + w*w) / a

		sec := &biquad{b1: b1, b2: b2}
		if highpass {
			sec.a0 = k * k / a
			sec.a1 = -2.0 * k * k / a
			sec.a2 = k * k / a
		} else {
			sec.a0 = w * w / a
			sec.a1 = 2.0 * w * w / a
			sec.a2 = w * w / a
		}
		sections = append(sections, sec)
	}

	// 奇数阶的实极点一阶节
	if order%2 == 1 {
		a := k + w
		sec := &biquad{b1: (w - k) / a}
		if highpass {
			sec.a0 = k / a
			sec.a1 = -k / a
		} else {
			sec.a0 = w / a
			sec.a1 = w / a
		}
		sections = append(sections, sec)
	}

	return sections
}

// Bandpass 零相位巴特沃斯带通滤波 (in place)
//
// 低通（highHz）与高通（lowHz）级联，先正向后反向各跑一遍，
// 正反抵消相位延迟，净时移为零。
func Bandpass(window []float64, sampleRate, lowHz, highHz float64, order int) {
	sections := butterworthSections(order, sampleRate, highHz, false)
	sections = append(sections, butterworthSections(order, sampleRate, lowHz, true)...)

	// 正向
	for _, sec := range sections {
		for i := range window {
			window[i] = sec.process(window[i])
		}
		sec.reset()
	}
	// 反向
	for _, sec := range sections {
		for i := len(window) - 1; i >= 0; i-- {
			window[i] = sec.process(window[i])
		}
		sec.reset()
	}
}

// Spectrum 计算实数 FFT 幅度谱（不加窗）
// 返回前 len(window)/2 个频点的幅度
func Spectrum(window []float64) []float64 {
	spectrum := fft.FFTReal(window)
	mags := make([]float64, len(window)/2)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}
	return mags
}

// FreqAxis 生成幅度谱对应的频率轴：0 到 sampleRate/2 的均匀序列
func FreqAxis(sampleRate float64, bins int) []float64 {
	freqs := make([]float64, bins)
	if bins < 2 {
		return freqs
	}
	step := sampleRate / 2 / float64(bins-1)
	for i := range freqs {
		freqs[i] = step * float64(i)
	}
	return freqs
}

// PeakInBand 在 [lowHz, highHz]（闭区间）内寻找幅度最大的频点
// 频带内没有频点时 ok 为 false
func PeakInBand(mags, freqs []float64, lowHz, highHz float64) (peakHz float64, ok bool) {
	maxMag := math.Inf(-1)
	for i, f := range freqs {
		if f < lowHz || f > highHz || i >= len(mags) {
			continue
		}
		if mags[i] > maxMag {
			maxMag = mags[i]
			peakHz = f
			ok = true
		}
	}
	return peakHz, ok
}
