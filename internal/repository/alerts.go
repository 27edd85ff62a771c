package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"anxiease-alert/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 告警记录仓库（alert_events 表，按用户追加写入）
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建告警记录仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlert 写入告警记录
// dedup_key 唯一约束 + ON CONFLICT DO NOTHING：重放同一告警不会产生第二条记录
// 返回是否实际插入
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert == nil {
		return false, fmt.Errorf("alert is required")
	}
	if alert.UserID == "" {
		return false, fmt.Errorf("user_id is required")
	}
	if alert.DedupKey == "" {
		return false, fmt.Errorf("dedup_key is required")
	}

	query := `
		INSERT INTO alert_events (
			alert_id,
			user_id,
			device_id,
			severity,
			heart_rate,
			baseline_hr,
			percent_above,
			window_seconds,
			triggered_at,
			dedup_key,
			context,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (dedup_key) DO NOTHING
	`

	contextJSON := alert.Context
	if len(contextJSON) == 0 {
		contextJSON = json.RawMessage("{}")
	}

	result, err := r.db.ExecContext(ctx,
		query,
		alert.AlertID,
		alert.UserID,
		alert.DeviceID,
		alert.Severity.String(),
		alert.HeartRate,
		alert.BaselineHR,
		alert.PercentAboveBaseline,
		alert.WindowSeconds,
		alert.TriggeredAt,
		alert.DedupKey,
		[]byte(contextJSON),
		time.Now(),
	)

	if err != nil {
		return false, fmt.Errorf("failed to create alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// UpdateDelivery 回写分发结果（delivery JSONB）
func (r *AlertRepository) UpdateDelivery(ctx context.Context, alertID string, delivery *models.DeliveryResult) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	deliveryJSON, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery result: %w", err)
	}

	query := `
		UPDATE alert_events
		SET delivery = $1
		WHERE alert_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, deliveryJSON, alertID); err != nil {
		return fmt.Errorf("failed to update delivery result: %w", err)
	}

	return nil
}

// GetRecentAlert 获取用户最近一条告警（没有则返回 nil）
func (r *AlertRepository) GetRecentAlert(ctx context.Context, userID string, within time.Duration) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	thresholdTime := time.Now().Add(-within)

	query := `
		SELECT
			alert_id,
			user_id,
			device_id,
			severity,
			heart_rate,
			baseline_hr,
			percent_above,
			window_seconds,
			triggered_at,
			dedup_key,
			context
		FROM alert_events
		WHERE user_id = $1
		  AND triggered_at > $2
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, userID, thresholdTime)

	alert, err := scanAlert(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query recent alert: %w", err)
	}

	return alert, nil
}

// ListAlertsByUser 按时间倒序列出用户告警（历史页读取）
func (r *AlertRepository) ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			alert_id,
			user_id,
			device_id,
			severity,
			heart_rate,
			baseline_hr,
			percent_above,
			window_seconds,
			triggered_at,
			dedup_key,
			context
		FROM alert_events
		WHERE user_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var severity string
	var contextData []byte

	err := row.Scan(
		&alert.AlertID,
		&alert.UserID,
		&alert.DeviceID,
		&severity,
		&alert.HeartRate,
		&alert.BaselineHR,
		&alert.PercentAboveBaseline,
		&alert.WindowSeconds,
		&alert.TriggeredAt,
		&alert.DedupKey,
		&contextData,
	)
	if err != nil {
		return nil, err
	}

	alert.Severity = models.Severity(severity)
	if len(contextData) > 0 {
		alert.Context = contextData
	} else {
		alert.Context = json.RawMessage("{}")
	}

	return &alert, nil
}
