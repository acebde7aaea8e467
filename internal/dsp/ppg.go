package dsp

import "math"

// 心搏频带，对应约 45-210 BPM
const (
	heartBandLowHz  = 0.75
	heartBandHighHz = 3.5
)

// VendorHeartRate 由一对 PPG 通道估计心率（BPM）
//
// 与厂商心率原语等价的黑盒实现：对两个通道各取 fftSize 点频谱，
// 在心搏频带内取峰并做抛物线插值细化，两通道峰值频率取均值换算 BPM。
// 输入应已完成环境光扣除、去趋势与带通预处理。
func VendorHeartRate(channelA, channelB []float64, sampleRate float64, fftSize int) float64 {
	fa := dominantFrequency(channelA, sampleRate, fftSize, heartBandLowHz, heartBandHighHz)
	fb := dominantFrequency(channelB, sampleRate, fftSize, heartBandLowHz, heartBandHighHz)
	return (fa + fb) / 2 * 60
}

// VendorOxygenLevel 由红外/红光 PPG 通道估计血氧（百分比，0-100）
//
// 经典 R 值法：R = (AC_red/DC_red) / (AC_ir/DC_ir)，SpO2 = 104 - 17*R。
// 输入为环境光扣除后的原始通道（保留直流分量）。
func VendorOxygenLevel(channelIR, channelRed []float64, sampleRate float64) float64 {
	acIR, dcIR := acdc(channelIR)
	acRed, dcRed := acdc(channelRed)
	if dcIR == 0 || dcRed == 0 || acIR == 0 {
		return 0
	}

	r := (acRed / dcRed) / (acIR / dcIR)
	spo2 := 104 - 17*r

	if spo2 < 0 {
		return 0
	}
	if spo2 > 100 {
		return 100
	}
	return spo2
}

// acdc 返回通道的交流分量（偏差均方根）与直流分量（均值绝对值）
func acdc(window []float64) (ac, dc float64) {
	if len(window) == 0 {
		return 0, 0
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

	return math.Sqrt(sq / float64(len(window))), math.Abs(mean)
}

// dominantFrequency 取 fftSize 点幅度谱在 [lowHz, highHz] 内的主频
// 峰值处做抛物线插值，用相邻频点细化真实峰位置
func dominantFrequency(window []float64, sampleRate float64, fftSize int, lowHz, highHz float64) float64 {
	buf := make([]float64, fftSize)
	if len(window) >= fftSize {
		copy(buf, window[len(window)-fftSize:])
	} else {
		copy(buf[fftSize-len(window):], window)
	}

	mags := Spectrum(buf)
	binWidth := sampleRate / float64(fftSize)

	start := int(lowHz / binWidth)
	end := int(highHz/binWidth) + 1
	if start < 1 {
		start = 1
	}
	if end > len(mags) {
		end = len(mags)
	}

	maxMag := 0.0
	maxIdx := start
	for i := start; i < end; i++ {
		if mags[i] > maxMag {
			maxMag = mags[i]
			maxIdx = i
		}
	}

	freq := float64(maxIdx) * binWidth
	if maxIdx > 0 && maxIdx < len(mags)-1 {
		alpha := mags[maxIdx-1]
		beta := mags[maxIdx]
		gamma := mags[maxIdx+1]
		denom := alpha - 2*beta + gamma
		if denom != 0 {
			p := 0.5 * (alpha - gamma) / denom
			freq = (float64(maxIdx) + p) * binWidth
		}
	}
	return freq
}
