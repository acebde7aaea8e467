// Package board 定义生物传感器板驱动的访问边界
//
// 驱动负责原始波形采集和设备握手，本服务只通过 Driver 接口按窗口拉取数据。
// 采集循环（scheduler）是 Driver 的唯一生命周期所有者，指标源仅持有只读引用。
package board

import (
	"errors"
	"fmt"

	"vitals-bridge/internal/config"

	"go.uber.org/zap"
)

// Preset 通道/采样率配置档
type Preset int

const (
	// DefaultPreset 主通道配置档（EEG 通道）
	DefaultPreset Preset = iota
	// AncillaryPreset 辅助通道配置档（PPG 通道），仅部分板卡型号支持
	AncillaryPreset
)

func (p Preset) String() string {
	switch p {
	case DefaultPreset:
		return "default"
	case AncillaryPreset:
		return "ancillary"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

var (
	// ErrTimeout 在驱动无法及时满足请求的采样数时返回
	// 采集循环以此为信号进入有界重连恢复流程
	ErrTimeout = errors.New("board: timed out waiting for samples")

	// ErrPresetUnsupported 请求的配置档不被当前板卡型号支持
	ErrPresetUnsupported = errors.New("board: preset not supported by board model")
)

// Driver 生物传感器板驱动接口
//
// 返回的数据矩阵按行组织：行号即通道索引（ChannelIndices 返回的值），
// 每行是该通道最近 sampleCount 个采样，按时间升序。
type Driver interface {
	// Prepare 建立设备会话（握手、缓冲区分配）
	Prepare() error
	// StartStream 启动硬件数据流
	StartStream(params string) error
	// StopStream 停止硬件数据流
	StopStream() error
	// Release 释放设备会话，之后 Driver 不可再使用
	Release() error

	// Model 板卡型号名称
	Model() string
	// SamplingRate 指定配置档的采样率（Hz）
	SamplingRate(p Preset) (int, error)
	// ChannelIndices 指定配置档的通道行索引（顺序固定）
	ChannelIndices(p Preset) ([]int, error)
	// CurrentData 拉取指定配置档最近 sampleCount 个采样的数据矩阵
	// 缓冲不足时返回 ErrTimeout
	CurrentData(p Preset, sampleCount int) ([][]float64, error)
}

// BatteryReporter 可选能力：报告电池电量（0-100）
type BatteryReporter interface {
	BatteryLevel() (float64, error)
}

// Open 按配置构造驱动
//
// BoardID -1 返回内置合成板；真实硬件驱动作为外部协作方由厂商包提供，
// 在此按板卡 ID 接入。
func Open(cfg *config.BoardConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.BoardID {
	case SyntheticBoardID:
		return NewSynthetic(logger), nil
	default:
		return nil, fmt.Errorf("no driver available for board id %d", cfg.BoardID)
	}
}
