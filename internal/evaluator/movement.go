package evaluator

import (
	"math"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"
)

// MovementClassifier 运动判定策略
// 阈值为经验调参，按部署可调，因此定义为可插拔接口
type MovementClassifier interface {
	// IsLikelyActivity 判断样本是否来自身体活动期（运动期心率升高不触发告警）
	IsLikelyActivity(sample *models.TelemetrySample) bool
}

// ThresholdMovementFilter 阈值运动过滤器（MovementClassifier 的默认实现）
type ThresholdMovementFilter struct {
	highThreshold     float64
	moderateThreshold float64
	elevatedHeartRate float64
	suppressOnMissing bool
}

// NewThresholdMovementFilter 创建阈值运动过滤器
func NewThresholdMovementFilter(cfg *config.Config) *ThresholdMovementFilter {
	return &ThresholdMovementFilter{
		highThreshold:     cfg.Movement.HighThreshold,
		moderateThreshold: cfg.Movement.ModerateThreshold,
		elevatedHeartRate: cfg.Movement.ElevatedHeartRate,
		suppressOnMissing: cfg.Movement.SuppressOnMissing,
	}
}

// IsLikelyActivity 判断样本是否来自身体活动期
// 幅值超高阈值直接判定为活动；超中阈值且心率升高也判定为活动
// 运动数据缺失时按配置的保守策略处理（默认判定为活动，宁可漏报不误报）
func (f *ThresholdMovementFilter) IsLikelyActivity(sample *models.TelemetrySample) bool {
	magnitude := MotionMagnitude(sample)
	if magnitude == nil {
		return f.suppressOnMissing
	}

	if *magnitude > f.highThreshold {
		return true
	}

	if *magnitude > f.moderateThreshold &&
		sample.HeartRate != nil && *sample.HeartRate >= f.elevatedHeartRate {
		return true
	}

	return false
}

// MotionMagnitude 计算运动幅值 sqrt(x² + y² + z²)（重力已在设备端去除）
// 加速度数据缺失返回 nil
func MotionMagnitude(sample *models.TelemetrySample) *float64 {
	if !sample.HasMotionData() {
		return nil
	}

	m := math.Sqrt(
		*sample.AccelX**sample.AccelX +
			*sample.AccelY**sample.AccelY +
			*sample.AccelZ**sample.AccelZ,
	)
	return &m
}
