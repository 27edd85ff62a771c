package models

import (
	"encoding/json"
	"time"
)

// Alert 告警事件（由分类器在级别发生变化时创建，经限流器后分发，落库为不可变审计记录）
type Alert struct {
	AlertID              string          `json:"alert_id" db:"alert_id"`
	UserID               string          `json:"user_id" db:"user_id"`
	DeviceID             string          `json:"device_id" db:"device_id"`
	Severity             Severity        `json:"severity" db:"severity"`
	HeartRate            float64         `json:"heart_rate" db:"heart_rate"`
	BaselineHR           float64         `json:"baseline_hr" db:"baseline_hr"`
	PercentAboveBaseline float64         `json:"percent_above_baseline" db:"percent_above"`
	WindowSeconds        float64         `json:"window_duration_seconds" db:"window_seconds"`
	TriggeredAt          time.Time       `json:"triggered_at" db:"triggered_at"`
	DedupKey             string          `json:"dedup_key" db:"dedup_key"`
	Context              json.RawMessage `json:"context" db:"context"` // JSONB：body_temp、spo2 等诊断透传
}

// AlertContext 告警诊断上下文（JSONB 结构）
type AlertContext struct {
	SampleCount     int      `json:"sample_count"`
	MotionMagnitude *float64 `json:"motion_magnitude,omitempty"`
	BodyTemp        *float64 `json:"body_temp,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty"`
}

// DeliveryResult 分发结果（各通道相互独立）
type DeliveryResult struct {
	PushDelivered bool   `json:"push_delivered"`
	MQTTDelivered bool   `json:"mqtt_delivered"`
	Persisted     bool   `json:"persisted"`
	PushError     string `json:"push_error,omitempty"`
	MQTTError     string `json:"mqtt_error,omitempty"`
}

// SeverityState 用户最近一次已通知级别（仅在成功准入后更新）
type SeverityState struct {
	UserID               string    `json:"user_id"`
	DeviceID             string    `json:"device_id"`
	LastNotifiedSeverity Severity  `json:"last_notified_severity"`
	LastNotifiedAt       time.Time `json:"last_notified_at"`
}
