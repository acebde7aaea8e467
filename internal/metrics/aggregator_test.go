package metrics_test

import (
	"context"
	"errors"
	"testing"

	"vitals-bridge/internal/metrics"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name string
	rec  metrics.Record
	err  error
}

func (s *stubSource) Name() string       { return s.name }
func (s *stubSource) WindowSeconds() int { return 1 }
func (s *stubSource) Produce(ctx context.Context) (metrics.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	// 每次返回新映射，聚合器可安全合并
	out := make(metrics.Record, len(s.rec))
	for k, v := range s.rec {
		out[k] = v
	}
	return out, nil
}

func TestAggregate_MergesDisjointSources(t *testing.T) {
	sources := []metrics.Source{
		&stubSource{name: "telemetry", rec: metrics.Record{"osc_battery_percent": 87}},
		&stubSource{name: "heartrate", rec: metrics.Record{"osc_heart_bpm": 72, "osc_respiration_bpm": 15}},
	}

	rec, err := metrics.Aggregate(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, metrics.Record{
		"osc_battery_percent": 87,
		"osc_heart_bpm":       72,
		"osc_respiration_bpm": 15,
	}, rec)
}

// 键冲突时列表中靠后的源获胜
func TestAggregate_LastWriterWins(t *testing.T) {
	sources := []metrics.Source{
		&stubSource{name: "first", rec: metrics.Record{"shared": 1, "a": 10}},
		&stubSource{name: "second", rec: metrics.Record{"shared": 2, "b": 20}},
	}

	rec, err := metrics.Aggregate(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, 2.0, rec["shared"])
	require.Equal(t, 10.0, rec["a"])
	require.Equal(t, 20.0, rec["b"])
}

// 不相交键集下合并结果与调用顺序无关
func TestAggregate_OrderAssociativeForDisjointKeys(t *testing.T) {
	a := &stubSource{name: "a", rec: metrics.Record{"x": 1}}
	b := &stubSource{name: "b", rec: metrics.Record{"y": 2}}
	c := &stubSource{name: "c", rec: metrics.Record{"z": 3}}

	abc, err := metrics.Aggregate(context.Background(), []metrics.Source{a, b, c})
	require.NoError(t, err)
	cba, err := metrics.Aggregate(context.Background(), []metrics.Source{c, b, a})
	require.NoError(t, err)
	require.Equal(t, abc, cba)
}

// 任一源失败则整个 tick 作废，不做部分发布
func TestAggregate_AnyFailureAbortsTick(t *testing.T) {
	boom := errors.New("window not ready")
	sources := []metrics.Source{
		&stubSource{name: "ok", rec: metrics.Record{"x": 1}},
		&stubSource{name: "bad", err: boom},
	}

	rec, err := metrics.Aggregate(context.Background(), sources)
	require.Nil(t, rec)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "bad")
}
