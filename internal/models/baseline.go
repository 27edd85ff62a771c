package models

import "time"

// Baseline 用户个性化静息心率基线（由基线标定流程维护，本服务只读）
// 每个 (user, device) 仅一条有效记录；缺失时跳过检测，不得默认填充
type Baseline struct {
	UserID             string    `json:"user_id"`
	DeviceID           string    `json:"device_id"`
	RestingHeartRate   float64   `json:"resting_heart_rate"`
	RecordedAt         time.Time `json:"recorded_at"`
}
