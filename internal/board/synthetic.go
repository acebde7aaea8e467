package board

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// SyntheticBoardID 合成板的板卡 ID（与厂商驱动的合成板约定一致）
const SyntheticBoardID = -1

const (
	syntheticEEGRate = 256 // 主配置档采样率
	syntheticPPGRate = 64  // 辅助配置档采样率
)

// 合成波形参数：心率 72 BPM，呼吸 15 BPM
const (
	syntheticHeartHz = 1.2
	syntheticRespHz  = 0.25
)

// Synthetic 合成生物传感器板
//
// 无硬件时的驱动实现：按相位累加生成确定性的 EEG/PPG 波形，
// 数据流启动后缓冲按真实时间增长，不足请求量时返回 ErrTimeout，
// 与真实驱动的窗口拉取语义一致。
type Synthetic struct {
	logger *zap.Logger
	now    func() time.Time

	prepared    bool
	streaming   bool
	streamStart time.Time
}

// NewSynthetic 创建合成板驱动
func NewSynthetic(logger *zap.Logger) *Synthetic {
	return NewSyntheticWithClock(logger, time.Now)
}

// NewSyntheticWithClock 创建使用指定时钟的合成板驱动（测试用）
func NewSyntheticWithClock(logger *zap.Logger, now func() time.Time) *Synthetic {
	return &Synthetic{
		logger: logger,
		now:    now,
	}
}

// Prepare 建立会话
func (s *Synthetic) Prepare() error {
	s.prepared = true
	s.logger.Debug("Synthetic board session prepared")
	return nil
}

// StartStream 启动数据流
func (s *Synthetic) StartStream(params string) error {
	if !s.prepared {
		return fmt.Errorf("synthetic board: session not prepared")
	}
	s.streaming = true
	s.streamStart = s.now()
	s.logger.Debug("Synthetic board stream started", zap.String("params", params))
	return nil
}

// StopStream 停止数据流
func (s *Synthetic) StopStream() error {
	s.streaming = false
	return nil
}

// Release 释放会话
func (s *Synthetic) Release() error {
	s.streaming = false
	s.prepared = false
	return nil
}

// Model 板卡型号
func (s *Synthetic) Model() string {
	return "synthetic"
}

// SamplingRate 配置档采样率
func (s *Synthetic) SamplingRate(p Preset) (int, error) {
	switch p {
	case DefaultPreset:
		return syntheticEEGRate, nil
	case AncillaryPreset:
		return syntheticPPGRate, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrPresetUnsupported, p)
	}
}

// ChannelIndices 配置档通道行索引
// 主配置档：4 个 EEG 通道；辅助配置档：红光、红外、环境光 PPG 通道
func (s *Synthetic) ChannelIndices(p Preset) ([]int, error) {
	switch p {
	case DefaultPreset:
		return []int{1, 2, 3, 4}, nil
	case AncillaryPreset:
		return []int{1, 2, 3}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPresetUnsupported, p)
	}
}

// BatteryLevel 电量（合成板固定值）
func (s *Synthetic) BatteryLevel() (float64, error) {
	return 87, nil
}

// CurrentData 拉取最近 sampleCount 个采样
//
// 第 0 行为包计数，其余行按 ChannelIndices 的索引填充。
// 数据流未启动或启动后缓冲尚不足 sampleCount 时返回 ErrTimeout。
func (s *Synthetic) CurrentData(p Preset, sampleCount int) ([][]float64, error) {
	if !s.streaming {
		return nil, fmt.Errorf("%w: stream not started", ErrTimeout)
	}

	rate, err := s.SamplingRate(p)
	if err != nil {
		return nil, err
	}
	channels, err := s.ChannelIndices(p)
	if err != nil {
		return nil, err
	}

	available := int(s.now().Sub(s.streamStart).Seconds() * float64(rate))
	if available < sampleCount {
		return nil, fmt.Errorf("%w: want %d samples, buffered %d", ErrTimeout, sampleCount, available)
	}

	rows := channels[len(channels)-1] + 1
	data := make([][]float64, rows)
	for i := range data {
		data[i] = make([]float64, sampleCount)
	}

	first := available - sampleCount
	for i := 0; i < sampleCount; i++ {
		n := first + i
		t := float64(n) / float64(rate)
		data[0][i] = float64(n) // 包计数
		switch p {
		case DefaultPreset:
			for c, row := range channels {
				data[row][i] = eegSample(t, c)
			}
		case AncillaryPreset:
			red, ir, ambient := ppgSample(t)
			data[channels[0]][i] = red
			data[channels[1]][i] = ir
			data[channels[2]][i] = ambient
		}
	}

	return data, nil
}

// eegSample 合成 EEG 波形：alpha 主导 + theta/beta 成分 + 确定性噪声
func eegSample(t float64, channel int) float64 {
	phase := float64(channel) * 0.7
	v := 20*math.Sin(2*math.Pi*10*t+phase) +
		10*math.Sin(2*math.Pi*6*t) +
		8*math.Sin(2*math.Pi*20*t)
	return v + 2*detNoise(t+phase)
}

// ppgSample 合成 PPG 波形：直流分量 + 心搏 + 呼吸调制 + 环境光
func ppgSample(t float64) (red, ir, ambient float64) {
	heart := math.Sin(2 * math.Pi * syntheticHeartHz * t)
	resp := math.Sin(2 * math.Pi * syntheticRespHz * t)
	ambient = 1200 + 30*detNoise(t)
	red = 30000 + 600*heart + 250*resp + 20*detNoise(t+1) + ambient
	ir = 32000 + 800*heart + 300*resp + 20*detNoise(t+2) + ambient
	return red, ir, ambient
}

// detNoise 确定性伪噪声，范围 [-1, 1]
func detNoise(t float64) float64 {
	x := math.Sin(12345.678*t) * 9876.543
	return 2*(x-math.Floor(x)) - 1
}
