package models

import (
	"fmt"
	"strconv"
	"time"
)

// TelemetrySample 设备上报的单条遥测样本（由设备上云通道写入 Redis Stream）
// 接收后不可变
type TelemetrySample struct {
	UserID    string   `json:"user_id"`
	DeviceID  string   `json:"device_id"`
	Timestamp int64    `json:"timestamp"` // Unix 秒
	HeartRate *float64 `json:"heart_rate,omitempty"`
	Worn      bool     `json:"worn"`

	// 运动传感器
	AccelX *float64 `json:"accel_x,omitempty"`
	AccelY *float64 `json:"accel_y,omitempty"`
	AccelZ *float64 `json:"accel_z,omitempty"`
	GyroX  *float64 `json:"gyro_x,omitempty"`
	GyroY  *float64 `json:"gyro_y,omitempty"`
	GyroZ  *float64 `json:"gyro_z,omitempty"`

	// 其他字段透传到告警记录（诊断上下文）
	BodyTemp *float64 `json:"body_temp,omitempty"`
	SpO2     *float64 `json:"spo2,omitempty"`
}

// Time 返回样本时间
func (s *TelemetrySample) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// HasMotionData 检查是否携带完整的加速度数据
func (s *TelemetrySample) HasMotionData() bool {
	return s.AccelX != nil && s.AccelY != nil && s.AccelZ != nil
}

// ParseTelemetrySample 从 Stream 消息字段解析遥测样本
// 字段缺失的心率保留为 nil（由上层按 MalformedSample 处理）
func ParseTelemetrySample(values map[string]interface{}) (*TelemetrySample, error) {
	deviceID := stringField(values, "device_id")
	if deviceID == "" {
		return nil, fmt.Errorf("missing device_id")
	}

	ts, err := intField(values, "timestamp")
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}

	sample := &TelemetrySample{
		DeviceID:  deviceID,
		Timestamp: ts,
	}

	// worn 以 0|1 上报
	if worn, err := intField(values, "worn"); err == nil {
		sample.Worn = worn == 1
	}

	// 心率：缺失保留 nil，非数值视为格式错误
	if raw, ok := values["heart_rate"]; ok {
		hr, err := floatValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid heart_rate: %w", err)
		}
		sample.HeartRate = &hr
	}

	sample.AccelX = optionalFloat(values, "accel_x")
	sample.AccelY = optionalFloat(values, "accel_y")
	sample.AccelZ = optionalFloat(values, "accel_z")
	sample.GyroX = optionalFloat(values, "gyro_x")
	sample.GyroY = optionalFloat(values, "gyro_y")
	sample.GyroZ = optionalFloat(values, "gyro_z")
	sample.BodyTemp = optionalFloat(values, "body_temp")
	sample.SpO2 = optionalFloat(values, "spo2")

	return sample, nil
}

func stringField(values map[string]interface{}, key string) string {
	if raw, ok := values[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func intField(values map[string]interface{}, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing field: %s", key)
	}
	switch v := raw.(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected type for %s", key)
	}
}

func floatValue(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case string:
		return strconv.ParseFloat(v, 64)
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

func optionalFloat(values map[string]interface{}, key string) *float64 {
	raw, ok := values[key]
	if !ok {
		return nil
	}
	f, err := floatValue(raw)
	if err != nil {
		return nil
	}
	return &f
}
