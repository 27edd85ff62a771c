package repository

import (
	"context"
	"database/sql"
	"fmt"

	"anxiease-alert/internal/models"

	"go.uber.org/zap"
)

// BaselineRepository 静息心率基线仓库（baselines 表，本服务只读）
type BaselineRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBaselineRepository 创建基线仓库
func NewBaselineRepository(db *sql.DB, logger *zap.Logger) *BaselineRepository {
	return &BaselineRepository{
		db:     db,
		logger: logger,
	}
}

// GetBaseline 获取 (user, device) 的有效基线（不存在返回 nil）
func (r *BaselineRepository) GetBaseline(ctx context.Context, userID, deviceID string) (*models.Baseline, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			user_id,
			device_id,
			resting_heart_rate,
			recorded_at
		FROM baselines
		WHERE user_id = $1
		  AND device_id = $2
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var baseline models.Baseline
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(
		&baseline.UserID,
		&baseline.DeviceID,
		&baseline.RestingHeartRate,
		&baseline.RecordedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 基线缺失：跳过检测，不默认填充
		}
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}

	return &baseline, nil
}
