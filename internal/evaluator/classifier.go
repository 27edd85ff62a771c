package evaluator

import (
	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"
)

// Classifier 严重级别分类器
// 按相对基线的升高比例映射到有序级别；阈值来自配置
type Classifier struct {
	mildPercent     float64
	moderatePercent float64
	severePercent   float64
	criticalPercent float64
}

// NewClassifier 创建严重级别分类器
func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{
		mildPercent:     cfg.Detection.MildPercent,
		moderatePercent: cfg.Detection.ModeratePercent,
		severePercent:   cfg.Detection.SeverePercent,
		criticalPercent: cfg.Detection.CriticalPercent,
	}
}

// Classify 计算级别与相对基线升高比例
func (c *Classifier) Classify(baselineHR, averageHR float64) (models.Severity, float64) {
	if baselineHR <= 0 {
		return models.SeverityNormal, 0
	}

	percent := (averageHR - baselineHR) / baselineHR

	switch {
	case percent >= c.criticalPercent:
		return models.SeverityCritical, percent
	case percent >= c.severePercent:
		return models.SeveritySevere, percent
	case percent >= c.moderatePercent:
		return models.SeverityModerate, percent
	case percent >= c.mildPercent:
		return models.SeverityMild, percent
	default:
		return models.SeverityNormal, percent
	}
}
