package metrics

import (
	"context"
	"fmt"
)

// Aggregate 按顺序调用所有指标源并合并结果
//
// 各源的键按约定由指标域命名空间隔离；若发生键冲突，
// 列表中靠后的源静默覆盖靠前的源。任一源失败则整个 tick 作废，
// 不做部分发布。
func Aggregate(ctx context.Context, sources []Source) (Record, error) {
	merged := make(Record)
	for _, src := range sources {
		rec, err := src.Produce(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		for k, v := range rec {
			merged[k] = v
		}
	}
	return merged, nil
}
