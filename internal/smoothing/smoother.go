// Package smoothing 提供指标向量的指数移动平均平滑
package smoothing

import "fmt"

// Smoother 指数移动平均平滑器
//
// 每个指标源持有独立实例，内部状态向量与该源的指标向量等长同序。
// 首次调用直接采纳输入并建立状态，之后按固定衰减系数混入新值：
// state[i] = (1-decay)*state[i] + decay*new[i]。
// decay 越接近 1 跟踪越快；调用方按刷新率折算 decay，
// 使平滑时间常数与主循环频率无关。
type Smoother struct {
	decay float64
	state []float64
}

// NewSmoother 创建平滑器，decay 必须落在 [0, 1]
// decay 0 表示状态建立后冻结，1 表示完全跟随最新输入
func NewSmoother(decay float64) *Smoother {
	if decay < 0 || decay > 1 {
		panic(fmt.Sprintf("smoothing: decay must be in [0, 1], got %f", decay))
	}
	return &Smoother{decay: decay}
}

// Apply 将新向量混入状态并返回平滑结果
//
// 指标源的指标集跨 tick 稳定，状态建立后输入长度不可变化。
func (s *Smoother) Apply(values []float64) []float64 {
	if s.state == nil {
		s.state = append([]float64(nil), values...)
	} else {
		if len(values) != len(s.state) {
			panic(fmt.Sprintf("smoothing: value length changed from %d to %d", len(s.state), len(values)))
		}
		for i, v := range values {
			s.state[i] = (1-s.decay)*s.state[i] + s.decay*v
		}
	}
	return append([]float64(nil), s.state...)
}

// Reset 丢弃状态，下一次 Apply 重新采纳输入
func (s *Smoother) Reset() {
	s.state = nil
}
