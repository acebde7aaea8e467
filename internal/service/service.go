// Package service 装配 vitals-bridge 的各组件
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vitals-bridge/internal/board"
	"vitals-bridge/internal/config"
	"vitals-bridge/internal/metrics"
	"vitals-bridge/internal/publisher"
	"vitals-bridge/internal/repository"
	"vitals-bridge/internal/scheduler"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VitalsService 生命体征桥接服务
type VitalsService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttPub     *publisher.MQTTPublisher
	scheduler   *scheduler.Scheduler
}

// NewVitalsService 创建服务
func NewVitalsService(cfg *config.Config, logger *zap.Logger) (*VitalsService, error) {
	svc := &VitalsService{
		config: cfg,
		logger: logger,
	}

	var outputs publisher.Fanout

	// MQTT 发布器（主发布通道）
	if cfg.MQTT.Enabled {
		mqttPub, err := publisher.NewMQTTPublisher(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		svc.mqttPub = mqttPub
		outputs = append(outputs, mqttPub)
	}

	// Redis Streams 镜像
	if cfg.Redis.Enabled {
		redisClient := publisher.NewRedisClient(&cfg.Redis)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			svc.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		svc.redisClient = redisClient
		outputs = append(outputs, publisher.NewRedisPublisher(redisClient, cfg.Redis.Stream, logger))
	}

	// Postgres 时序落库
	if cfg.Database.Enabled {
		db, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		svc.db = db
		repo := repository.NewVitalsRepository(db, logger)
		outputs = append(outputs, repository.NewTimeSeriesSink(repo, logger))
	}

	if len(outputs) == 0 {
		logger.Warn("No publishers enabled, aggregate records will be discarded")
	}

	svc.scheduler = scheduler.New(
		sessionFactory(cfg, logger),
		outputs,
		cfg.Sampling.RefreshRateHz,
		logger,
	)

	return svc, nil
}

// Run 运行采集循环，阻塞直到 ctx 取消或发生不可恢复错误
func (s *VitalsService) Run(ctx context.Context) error {
	s.logger.Info("Starting vitals acquisition loop",
		zap.Int("refresh_rate_hz", s.config.Sampling.RefreshRateHz),
		zap.Int("window_seconds", s.config.Sampling.WindowSeconds),
	)
	return s.scheduler.Run(ctx)
}

// Stop 关闭外部连接
func (s *VitalsService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vitals service")
	s.close()
	s.logger.Info("Vitals service stopped")
	return nil
}

func (s *VitalsService) close() {
	if s.mqttPub != nil {
		s.mqttPub.Close()
		s.mqttPub = nil
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
		s.redisClient = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
		s.db = nil
	}
}

// sessionFactory 构造设备会话工厂
//
// 每次调用：建立设备会话 → 按板卡能力装配指标源 → 启动数据流 →
// 等待启动缓冲期（所有源窗口时长的最大值），保证首个 tick 的窗口已填满。
// 中途任何失败都先释放设备会话再返回。
func sessionFactory(cfg *config.Config, logger *zap.Logger) scheduler.SessionFactory {
	return func(ctx context.Context) (*scheduler.Session, error) {
		driver, err := board.Open(&cfg.Board, logger)
		if err != nil {
			return nil, err
		}
		if err := driver.Prepare(); err != nil {
			return nil, fmt.Errorf("prepare device session: %w", err)
		}

		// 按刷新率折算平滑系数，使时间常数与 tick 频率无关
		emaDecay := cfg.Sampling.EMADecay / float64(cfg.Sampling.RefreshRateHz)

		var sources []metrics.Source
		startupSeconds := cfg.Sampling.WindowSeconds

		telemetry, err := metrics.NewTelemetrySource(driver, cfg.Sampling.WindowSeconds, logger)
		if err != nil {
			releaseQuiet(driver, logger)
			return nil, err
		}
		sources = append(sources, telemetry)

		focusRelax, err := metrics.NewFocusRelaxSource(driver, cfg.Sampling.WindowSeconds, emaDecay, logger)
		if err != nil {
			releaseQuiet(driver, logger)
			return nil, err
		}
		sources = append(sources, focusRelax)

		// 心率源仅在板卡支持辅助 PPG 配置档时装配；
		// 不支持属于配置面限制，不视为致命错误
		if cfg.HeartRate.Enabled {
			heartRate, err := metrics.NewHeartRateSource(driver, cfg.HeartRate.FFTSize, cfg.HeartRate.EMADecay, logger)
			switch {
			case errors.Is(err, board.ErrPresetUnsupported):
				logger.Warn("Board model does not support ancillary PPG preset, heart rate source disabled",
					zap.String("model", driver.Model()),
				)
			case err != nil:
				releaseQuiet(driver, logger)
				return nil, err
			default:
				sources = append(sources, heartRate)
				if heartRate.WindowSeconds() > startupSeconds {
					startupSeconds = heartRate.WindowSeconds()
				}
			}
		}

		if err := driver.StartStream(cfg.Board.StreamerParams); err != nil {
			releaseQuiet(driver, logger)
			return nil, fmt.Errorf("start stream: %w", err)
		}

		logger.Info("Initializing device session",
			zap.String("model", driver.Model()),
			zap.Int("startup_wait_seconds", startupSeconds),
		)

		select {
		case <-ctx.Done():
			releaseQuiet(driver, logger)
			return nil, ctx.Err()
		case <-time.After(time.Duration(startupSeconds) * time.Second):
		}

		session := &scheduler.Session{
			ID:      uuid.NewString(),
			Driver:  driver,
			Sources: sources,
		}
		logger.Info("Tracking started",
			zap.String("session_id", session.ID),
			zap.Int("sources", len(sources)),
		)
		return session, nil
	}
}

func releaseQuiet(driver board.Driver, logger *zap.Logger) {
	if err := driver.Release(); err != nil {
		logger.Warn("Failed to release device session", zap.Error(err))
	}
}
