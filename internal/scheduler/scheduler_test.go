package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"vitals-bridge/internal/board"
	"vitals-bridge/internal/metrics"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDriver struct {
	stopped  int
	released int
}

func (d *fakeDriver) Prepare() error                         { return nil }
func (d *fakeDriver) StartStream(params string) error        { return nil }
func (d *fakeDriver) StopStream() error                      { d.stopped++; return nil }
func (d *fakeDriver) Release() error                         { d.released++; return nil }
func (d *fakeDriver) Model() string                          { return "fake" }
func (d *fakeDriver) SamplingRate(board.Preset) (int, error) { return 64, nil }
func (d *fakeDriver) ChannelIndices(board.Preset) ([]int, error) {
	return []int{1, 2, 3}, nil
}
func (d *fakeDriver) CurrentData(board.Preset, int) ([][]float64, error) {
	return nil, nil
}

// tickSource 按 tick 序号注入故障的指标源
type tickSource struct {
	tick int
	fail func(tick int) error
}

func (s *tickSource) Name() string       { return "fake" }
func (s *tickSource) WindowSeconds() int { return 1 }
func (s *tickSource) Produce(ctx context.Context) (metrics.Record, error) {
	s.tick++
	if s.fail != nil {
		if err := s.fail(s.tick); err != nil {
			return nil, err
		}
	}
	return metrics.Record{"osc_heart_bpm": float64(70 + s.tick)}, nil
}

type capturePublisher struct {
	records      []metrics.Record
	connectivity []bool
}

func (p *capturePublisher) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	p.records = append(p.records, rec)
	return nil
}

func (p *capturePublisher) PublishConnectivity(ctx context.Context, connected bool) error {
	p.connectivity = append(p.connectivity, connected)
	return nil
}

func countFalse(signals []bool) int {
	n := 0
	for _, c := range signals {
		if !c {
			n++
		}
	}
	return n
}

// 第 5 个 tick 超时且设备无法重建：恰好 3 次重建尝试、
// 该 tick 无输出、连通丢失信号恰好一次，循环带错误退出
func TestRun_TimeoutRecoveryExhausted(t *testing.T) {
	driver := &fakeDriver{}
	factoryCalls := 0
	factory := func(ctx context.Context) (*Session, error) {
		factoryCalls++
		if factoryCalls > 1 {
			return nil, fmt.Errorf("device unreachable")
		}
		src := &tickSource{fail: func(tick int) error {
			if tick >= 5 {
				return fmt.Errorf("pull ppg window: %w", board.ErrTimeout)
			}
			return nil
		}}
		return &Session{ID: "s1", Driver: driver, Sources: []metrics.Source{src}}, nil
	}

	pub := &capturePublisher{}
	sched := New(factory, pub, 1000, zap.NewNop())
	sched.sleep = func(time.Duration) {}

	err := sched.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, board.ErrTimeout)

	require.Equal(t, 4, factoryCalls, "1 initial + exactly 3 reinitialization attempts")
	require.Len(t, pub.records, 4, "no aggregate record for the failed tick")
	require.Equal(t, 1, countFalse(pub.connectivity), "connectivity-lost signaled exactly once")
	require.Equal(t, 1, driver.released)
	require.Equal(t, StateShutDown, sched.State())
}

// 超时后重建成功：恢复回 STREAMING，平滑状态随新会话重建
func TestRun_RecoverySucceedsAndResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := &fakeDriver{}
	second := &fakeDriver{}
	factoryCalls := 0
	factory := func(ctx context.Context) (*Session, error) {
		factoryCalls++
		if factoryCalls == 1 {
			src := &tickSource{fail: func(tick int) error {
				if tick >= 3 {
					return fmt.Errorf("pull eeg window: %w", board.ErrTimeout)
				}
				return nil
			}}
			return &Session{ID: "s1", Driver: first, Sources: []metrics.Source{src}}, nil
		}
		src := &tickSource{fail: func(tick int) error {
			if tick >= 2 {
				cancel() // 操作员请求关停
			}
			return nil
		}}
		return &Session{ID: "s2", Driver: second, Sources: []metrics.Source{src}}, nil
	}

	pub := &capturePublisher{}
	sched := New(factory, pub, 1000, zap.NewNop())
	sched.sleep = func(time.Duration) {}

	err := sched.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, factoryCalls)
	require.Len(t, pub.records, 4, "2 ticks before the fault, 2 after recovery")
	require.Equal(t, []bool{true, false, true, false}, pub.connectivity)
	require.Equal(t, 1, first.released)
	require.Equal(t, 1, second.released)
	require.Equal(t, StateShutDown, sched.State())
}

// 非超时类错误对进程致命：释放会话后带错误退出，不触发恢复
func TestRun_FatalErrorReleasesSession(t *testing.T) {
	driver := &fakeDriver{}
	factoryCalls := 0
	factory := func(ctx context.Context) (*Session, error) {
		factoryCalls++
		src := &tickSource{fail: func(int) error {
			return errors.New("spectral band contains no bins")
		}}
		return &Session{ID: "s1", Driver: driver, Sources: []metrics.Source{src}}, nil
	}

	pub := &capturePublisher{}
	sched := New(factory, pub, 1000, zap.NewNop())
	sched.sleep = func(time.Duration) {}

	err := sched.Run(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, board.ErrTimeout)

	require.Equal(t, 1, factoryCalls, "no recovery for non-timeout errors")
	require.Empty(t, pub.records)
	require.Equal(t, 1, driver.released)
}

// 配速为刷新率设置上限：剩余时间睡眠，超时 tick 不睡眠
func TestRun_PacesToRefreshRate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	driver := &fakeDriver{}
	factory := func(ctx context.Context) (*Session, error) {
		src := &tickSource{fail: func(tick int) error {
			if tick >= 3 {
				cancel()
			}
			return nil
		}}
		return &Session{ID: "s1", Driver: driver, Sources: []metrics.Source{src}}, nil
	}

	pub := &capturePublisher{}
	sched := New(factory, pub, 100, zap.NewNop()) // 周期 10ms

	// 注入时钟：每次读取前进 2ms，每个 tick 读两次 → 执行耗时 2ms
	cur := time.Unix(0, 0)
	sched.now = func() time.Time {
		cur = cur.Add(2 * time.Millisecond)
		return cur
	}
	var sleeps []time.Duration
	sched.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	err := sched.Run(ctx)
	require.NoError(t, err)

	require.Len(t, sleeps, 3)
	for _, d := range sleeps {
		require.Equal(t, 8*time.Millisecond, d)
	}
}

// 过载时不补偿：执行耗时超过周期则不睡眠（只设上限，不保证下限）
func TestRun_NoSleepUnderOverload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	driver := &fakeDriver{}
	factory := func(ctx context.Context) (*Session, error) {
		src := &tickSource{fail: func(tick int) error {
			if tick >= 2 {
				cancel()
			}
			return nil
		}}
		return &Session{ID: "s1", Driver: driver, Sources: []metrics.Source{src}}, nil
	}

	pub := &capturePublisher{}
	sched := New(factory, pub, 100, zap.NewNop())

	cur := time.Unix(0, 0)
	sched.now = func() time.Time {
		cur = cur.Add(20 * time.Millisecond) // 每 tick 耗时 20ms > 10ms 周期
		return cur
	}
	var sleeps []time.Duration
	sched.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	err := sched.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, sleeps)
}
