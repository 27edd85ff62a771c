package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// DeviceRepository 设备归属仓库（device_assignments 表，由管理端维护，本服务只读）
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备归属仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetAssignedUser 获取设备当前归属的用户（未分配返回空字符串）
func (r *DeviceRepository) GetAssignedUser(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}

	query := `
		SELECT user_id
		FROM device_assignments
		WHERE device_id = $1
		  AND active = true
		LIMIT 1
	`

	var userID string
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query device assignment: %w", err)
	}

	return userID, nil
}
