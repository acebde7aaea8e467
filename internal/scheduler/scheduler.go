// Package scheduler 实现采集主循环
//
// 按目标刷新率驱动 tick：调用聚合器、交付发布协作方、按剩余时间配速。
// 设备级超时触发有界重连恢复（单次断连事件内最多 3 次重建会话），
// 恢复失败则将错误上报运维，不做跨事件的自动续试。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vitals-bridge/internal/board"
	"vitals-bridge/internal/metrics"

	"go.uber.org/zap"
)

// State 采集循环状态
type State int

const (
	StateInitializing State = iota
	StateStreaming
	StateRecovering
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateStreaming:
		return "STREAMING"
	case StateRecovering:
		return "RECOVERING"
	case StateShutDown:
		return "SHUT_DOWN"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// 单次断连事件内的会话重建次数上限
const maxRecoveryAttempts = 3

// Publisher 发布协作方接口
//
// 每个成功 tick 收到一条聚合记录；连接状态变化时收到布尔连通信号。
type Publisher interface {
	PublishMetrics(ctx context.Context, rec metrics.Record) error
	PublishConnectivity(ctx context.Context, connected bool) error
}

// Session 一次设备会话：驱动句柄与为其装配的指标源列表
//
// 任一时刻最多存在一个活动会话，由调度器独占持有；
// 重连时旧会话完全释放后才构造新会话（指标源的平滑状态随会话重建）。
type Session struct {
	ID      string
	Driver  board.Driver
	Sources []metrics.Source
}

// SessionFactory 构造设备会话：建立连接、装配指标源、启动数据流
// 并等待启动缓冲期（所有源所需窗口时长的最大值）
type SessionFactory func(ctx context.Context) (*Session, error)

// Scheduler 采集调度器
type Scheduler struct {
	factory       SessionFactory
	publisher     Publisher
	refreshRateHz int
	logger        *zap.Logger

	// 可注入时钟（测试用）
	now   func() time.Time
	sleep func(time.Duration)

	state   State
	session *Session
}

// New 创建调度器
func New(factory SessionFactory, publisher Publisher, refreshRateHz int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		factory:       factory,
		publisher:     publisher,
		refreshRateHz: refreshRateHz,
		logger:        logger,
		now:           time.Now,
		sleep:         time.Sleep,
		state:         StateInitializing,
	}
}

// State 当前状态
func (s *Scheduler) State() State {
	return s.state
}

// Run 运行采集循环，阻塞直到 ctx 取消（正常关停返回 nil）
// 或发生不可恢复错误
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateInitializing)
	session, err := s.factory(ctx)
	if err != nil {
		s.setState(StateShutDown)
		return fmt.Errorf("initialize device session: %w", err)
	}
	s.session = session
	s.notifyConnectivity(ctx, true)
	s.setState(StateStreaming)

	period := time.Second / time.Duration(s.refreshRateHz)

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		default:
		}

		start := s.now()

		rec, err := metrics.Aggregate(ctx, s.session.Sources)
		if err != nil {
			if ctx.Err() != nil {
				return s.shutdown()
			}
			if errors.Is(err, board.ErrTimeout) {
				// tick 整体作废，进入恢复流程
				if rerr := s.recover(ctx, err); rerr != nil {
					return rerr
				}
				continue
			}
			// 非超时类错误对进程致命：释放会话后带错误退出
			s.releaseSession()
			s.setState(StateShutDown)
			return fmt.Errorf("tick aborted: %w", err)
		}

		if err := s.publisher.PublishMetrics(ctx, rec); err != nil {
			s.logger.Warn("Failed to publish aggregate record", zap.Error(err))
		}

		// 配速：为刷新率设上限，过载时不保证下限
		if wait := period - s.now().Sub(start); wait > 0 {
			s.sleep(wait)
		}
	}
}

// recover 设备超时后的有界恢复
//
// 发出一次连通丢失信号，完全释放旧会话，最多重建 maxRecoveryAttempts 次。
// 全部失败时返回错误，当前断连事件不再自动重试。
func (s *Scheduler) recover(ctx context.Context, cause error) error {
	s.setState(StateRecovering)
	s.logger.Info("Biosensor board error, attempting recovery", zap.Error(cause))

	s.notifyConnectivity(ctx, false)
	s.releaseSession()

	for attempt := 1; attempt <= maxRecoveryAttempts; attempt++ {
		if ctx.Err() != nil {
			s.setState(StateShutDown)
			return nil
		}

		session, err := s.factory(ctx)
		if err != nil {
			s.logger.Info("Session reinitialization failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		s.session = session
		s.notifyConnectivity(ctx, true)
		s.setState(StateStreaming)
		s.logger.Info("Device session recovered",
			zap.Int("attempt", attempt),
			zap.String("session_id", session.ID),
		)
		return nil
	}

	s.setState(StateShutDown)
	return fmt.Errorf("device recovery failed after %d attempts: %w", maxRecoveryAttempts, cause)
}

// shutdown 操作员请求的关停：停流、发连通丢失信号、无条件释放会话
func (s *Scheduler) shutdown() error {
	s.setState(StateShutDown)
	s.logger.Info("Shutting down acquisition loop")

	if s.session != nil {
		if err := s.session.Driver.StopStream(); err != nil {
			s.logger.Debug("Failed to stop stream", zap.Error(err))
		}
	}
	s.notifyConnectivity(context.Background(), false)
	s.releaseSession()
	return nil
}

// releaseSession 释放当前会话（若有）
func (s *Scheduler) releaseSession() {
	if s.session == nil {
		return
	}
	if err := s.session.Driver.Release(); err != nil {
		s.logger.Warn("Failed to release device session",
			zap.String("session_id", s.session.ID),
			zap.Error(err),
		)
	}
	s.session = nil
}

func (s *Scheduler) notifyConnectivity(ctx context.Context, connected bool) {
	if err := s.publisher.PublishConnectivity(ctx, connected); err != nil {
		s.logger.Warn("Failed to publish connectivity signal",
			zap.Bool("connected", connected),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("Scheduler state transition",
		zap.String("from", s.state.String()),
		zap.String("to", next.String()),
	)
	s.state = next
}
