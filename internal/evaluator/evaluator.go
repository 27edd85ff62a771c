package evaluator

import (
	"context"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/metrics"
	"anxiease-alert/internal/models"
	"anxiease-alert/internal/ratelimit"

	"go.uber.org/zap"
)

// AlertSink 告警接收端（由 dispatcher 实现，入队不阻塞评估）
type AlertSink interface {
	// Enqueue 提交告警进入分发队列，队列满时返回 false
	Enqueue(alert *models.Alert) bool
}

// BaselineProvider 基线读取接口（由 consumer.CacheManager 实现）
type BaselineProvider interface {
	GetBaseline(ctx context.Context, userID, deviceID string) (*models.Baseline, error)
}

// SeverityStateStore 严重级别状态存储接口（由 consumer.StateManager 实现）
type SeverityStateStore interface {
	GetSeverityState(ctx context.Context, userID, deviceID string) (*models.SeverityState, error)
	SetSeverityState(ctx context.Context, state *models.SeverityState) error
}

// AlertAdmitter 告警准入接口（由 ratelimit.Limiter 实现）
// Admit 必须是原子的检查并占用：同一用户的并发评估恰好一个通过
type AlertAdmitter interface {
	Admit(ctx context.Context, alert *models.Alert) (ratelimit.Decision, error)
}

// Pipeline 逐样本评估管线（实现 consumer.SampleProcessor 接口）
// 样本 → 运动过滤 → 滑动窗口 → 级别分类（迟滞）→ 冷却准入 → 分发
type Pipeline struct {
	config     *config.Config
	movement   MovementClassifier
	window     *WindowEvaluator
	classifier *Classifier
	cache      BaselineProvider
	states     SeverityStateStore
	limiter    AlertAdmitter
	sink       AlertSink
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewPipeline 创建评估管线
func NewPipeline(
	cfg *config.Config,
	movement MovementClassifier,
	window *WindowEvaluator,
	classifier *Classifier,
	cache BaselineProvider,
	states SeverityStateStore,
	limiter AlertAdmitter,
	sink AlertSink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		config:     cfg,
		movement:   movement,
		window:     window,
		classifier: classifier,
		cache:      cache,
		states:     states,
		limiter:    limiter,
		sink:       sink,
		metrics:    m,
		logger:     logger,
	}
}

// Process 处理单条遥测样本
// 返回 error 仅表示共享存储不可用（消费者据此退避）；
// 样本级别的丢弃在此记录并吞掉，不影响后续样本
func (p *Pipeline) Process(ctx context.Context, sample *models.TelemetrySample) error {
	// 未佩戴：丢弃，不修改任何状态（时间空洞会自然打断持续计时）
	if !sample.Worn {
		p.metrics.SamplesTotal.WithLabelValues("unworn").Inc()
		p.logger.Debug("Dropping unworn sample",
			zap.String("device_id", sample.DeviceID),
		)
		return nil
	}

	// 心率缺失：格式错误
	if sample.HeartRate == nil {
		p.metrics.SamplesTotal.WithLabelValues("malformed").Inc()
		p.logger.Warn("Dropping sample without heart rate",
			zap.String("device_id", sample.DeviceID),
		)
		return nil
	}

	// 基线缺失：跳过检测（下一条样本会再次尝试，不默认填充）
	baseline, err := p.cache.GetBaseline(ctx, sample.UserID, sample.DeviceID)
	if err != nil {
		p.metrics.SamplesTotal.WithLabelValues("error").Inc()
		return err
	}
	if baseline == nil {
		p.metrics.SamplesTotal.WithLabelValues("no_baseline").Inc()
		p.logger.Debug("Skipping detection: no baseline",
			zap.String("user_id", sample.UserID),
			zap.String("device_id", sample.DeviceID),
		)
		return nil
	}

	// 运动过滤：活动期样本仍进入窗口（形成空洞），但不参与持续升高计算
	activity := p.movement.IsLikelyActivity(sample)

	summary, ok := p.window.Ingest(sample.UserID, sample.DeviceID, sample.Timestamp, *sample.HeartRate, !activity)
	p.metrics.ActiveWindows.Set(float64(p.window.Size()))

	if !ok {
		p.metrics.SamplesTotal.WithLabelValues("out_of_order").Inc()
		p.logger.Debug("Dropping out-of-order sample",
			zap.String("device_id", sample.DeviceID),
			zap.Int64("timestamp", sample.Timestamp),
		)
		return nil
	}

	if activity {
		p.metrics.SamplesTotal.WithLabelValues("activity").Inc()
		p.logger.Debug("Sample classified as physical activity",
			zap.String("user_id", sample.UserID),
		)
		return nil
	}

	p.metrics.SamplesTotal.WithLabelValues("processed").Inc()

	if summary.SampleCount == 0 {
		return nil
	}

	severity, percentAbove := p.classifier.Classify(baseline.RestingHeartRate, summary.AverageHR)

	// 持续时长不足：不产生候选告警
	if summary.SustainedSeconds < float64(p.config.Detection.MinSustainedSeconds) {
		return nil
	}

	// 迟滞：级别未变化不再告警；升级或降级（含回落 normal）均为有效迁移
	state, err := p.states.GetSeverityState(ctx, sample.UserID, sample.DeviceID)
	if err != nil {
		p.metrics.SamplesTotal.WithLabelValues("error").Inc()
		return err
	}

	lastNotified := models.SeverityNormal
	if state != nil {
		lastNotified = state.LastNotifiedSeverity
	}
	if severity == lastNotified {
		return nil
	}

	alert := BuildAlert(sample, severity, percentAbove, summary, baseline, p.config.RateLimit.DedupBucketSeconds)

	decision, err := p.limiter.Admit(ctx, alert)
	if err != nil {
		// fail closed：准入检查无法执行时不分发
		p.metrics.AdmissionsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !decision.Admitted {
		p.metrics.AdmissionsTotal.WithLabelValues(decision.Reason).Inc()
		return nil
	}
	p.metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()

	// 准入决策先落状态再分发：两者之间崩溃至多丢失告警，不会重复
	newState := &models.SeverityState{
		UserID:               sample.UserID,
		DeviceID:             sample.DeviceID,
		LastNotifiedSeverity: severity,
		LastNotifiedAt:       time.Now(),
	}
	if err := p.states.SetSeverityState(ctx, newState); err != nil {
		p.logger.Error("Failed to persist severity state, dropping alert",
			zap.String("user_id", sample.UserID),
			zap.Error(err),
		)
		return err
	}

	if !p.sink.Enqueue(alert) {
		p.metrics.QueueDropsTotal.Inc()
		p.logger.Error("Dispatch queue full, alert dropped",
			zap.String("alert_id", alert.AlertID),
			zap.String("user_id", alert.UserID),
		)
		return nil
	}

	p.logger.Info("Alert emitted",
		zap.String("alert_id", alert.AlertID),
		zap.String("user_id", alert.UserID),
		zap.String("severity", severity.String()),
		zap.Float64("heart_rate", summary.AverageHR),
		zap.Float64("percent_above_baseline", percentAbove),
		zap.Float64("sustained_seconds", summary.SustainedSeconds),
	)

	return nil
}
