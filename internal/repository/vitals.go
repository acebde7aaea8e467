// Package repository 提供生命体征时序数据的落库
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vitals-bridge/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VitalsRepository 生命体征时序数据仓库
type VitalsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVitalsRepository 创建时序数据仓库
func NewVitalsRepository(db *sql.DB, logger *zap.Logger) *VitalsRepository {
	return &VitalsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertRecord 写入一条聚合记录
//
// 心率/呼吸/血氧写入专列（缺失的键落 NULL），完整记录另存 JSON 列。
func (r *VitalsRepository) InsertRecord(ctx context.Context, runID string, ts time.Time, rec metrics.Record) error {
	full, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO vitals_timeseries
			(run_id, ts, heart_rate, respiratory_rate, oxygen_percent, metrics)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		runID,
		ts,
		nullKey(rec, metrics.KeyHeartBPM),
		nullKey(rec, metrics.KeyRespirationBPM),
		nullKey(rec, metrics.KeyOxygenPercent),
		full,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vitals record: %w", err)
	}
	return nil
}

func nullKey(rec metrics.Record, key string) sql.NullFloat64 {
	v, ok := rec[key]
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// TimeSeriesSink 将聚合记录落库的发布器适配
//
// 每次收到连通建立信号开启一个新的 run（run_id 轮换），
// 便于按断连事件切分历史数据。
type TimeSeriesSink struct {
	repo   *VitalsRepository
	logger *zap.Logger
	runID  string
}

// NewTimeSeriesSink 创建落库发布器
func NewTimeSeriesSink(repo *VitalsRepository, logger *zap.Logger) *TimeSeriesSink {
	return &TimeSeriesSink{
		repo:   repo,
		logger: logger,
		runID:  uuid.NewString(),
	}
}

// PublishMetrics 落库一条聚合记录
func (s *TimeSeriesSink) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	return s.repo.InsertRecord(ctx, s.runID, time.Now(), rec)
}

// PublishConnectivity 连接建立时轮换 run_id
func (s *TimeSeriesSink) PublishConnectivity(ctx context.Context, connected bool) error {
	if connected {
		s.runID = uuid.NewString()
		s.logger.Debug("Started new vitals run", zap.String("run_id", s.runID))
	}
	return nil
}
