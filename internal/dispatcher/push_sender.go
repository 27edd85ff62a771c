package dispatcher

import (
	"context"
	"fmt"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PushData 推送消息结构化数据块（客户端解析的契约部分）
type PushData struct {
	Type                 string  `json:"type"` // 固定为 "anxiety_alert"
	Severity             string  `json:"severity"`
	HeartRate            float64 `json:"heart_rate"`
	Baseline             float64 `json:"baseline"`
	PercentAboveBaseline float64 `json:"percentage_above_baseline"`
	Timestamp            int64   `json:"timestamp"`
	DedupKey             string  `json:"dedup_key"`
}

// PushMessage 推送消息（title/body 仅用于展示）
type PushMessage struct {
	UserID string   `json:"user_id"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Data   PushData `json:"data"`
}

// PushSender 推送服务商客户端（FCM 风格 HTTP 接口）
type PushSender struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewPushSender 创建推送客户端
func NewPushSender(cfg *config.PushConfig, logger *zap.Logger) *PushSender {
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	// 出站速率上限（令牌桶）
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}

	return &PushSender{
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// Send 发送推送消息（重试由 resty 有界退避处理，失败由调用方记录后丢弃）
func (s *PushSender) Send(ctx context.Context, alert *models.Alert) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limiter: %w", err)
	}

	msg := BuildPushMessage(alert)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/v1/push")

	if err != nil {
		return fmt.Errorf("failed to call push provider: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("push provider returned status %d", resp.StatusCode())
	}

	return nil
}

// BuildPushMessage 构建推送消息
func BuildPushMessage(alert *models.Alert) *PushMessage {
	return &PushMessage{
		UserID: alert.UserID,
		Title:  pushTitle(alert.Severity),
		Body:   pushBody(alert),
		Data: PushData{
			Type:                 "anxiety_alert",
			Severity:             alert.Severity.String(),
			HeartRate:            alert.HeartRate,
			Baseline:             alert.BaselineHR,
			PercentAboveBaseline: alert.PercentAboveBaseline,
			Timestamp:            alert.TriggeredAt.Unix(),
			DedupKey:             alert.DedupKey,
		},
	}
}

func pushTitle(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "Critical anxiety alert"
	case models.SeveritySevere:
		return "Severe anxiety alert"
	case models.SeverityModerate:
		return "Anxiety alert"
	case models.SeverityMild:
		return "Elevated heart rate"
	default:
		return "All clear"
	}
}

func pushBody(alert *models.Alert) string {
	if alert.Severity == models.SeverityNormal {
		return fmt.Sprintf("Heart rate back near your baseline (%.0f BPM).", alert.HeartRate)
	}
	return fmt.Sprintf("Heart rate %.0f BPM, %.0f%% above your baseline for %.0f seconds.",
		alert.HeartRate,
		alert.PercentAboveBaseline*100,
		alert.WindowSeconds,
	)
}
