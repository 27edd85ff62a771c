package ratelimit

import (
	"context"
	"fmt"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 拒绝原因
const (
	ReasonCooldownActive = "cooldown-active"
	ReasonDuplicate      = "duplicate"
)

// Decision 准入决策
type Decision struct {
	Admitted bool
	Reason   string // 拒绝原因（Admitted=false 时有效）
}

// Limiter 限流器 / 去重器
// 冷却与去重均基于 Redis SET NX + TTL：检查和占用是单次原子操作，
// 同一用户的并发评估不会同时通过检查
type Limiter struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewLimiter 创建限流器
func NewLimiter(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Cooldown 返回级别对应的冷却时长（级别越高冷却越短，可配置）
func (l *Limiter) Cooldown(severity models.Severity) time.Duration {
	if seconds, ok := l.config.RateLimit.CooldownSeconds[severity.String()]; ok {
		return time.Duration(seconds) * time.Second
	}
	return 10 * time.Minute
}

// Admit 对候选告警执行冷却准入
// Redis 不可用时返回错误（宁可漏报一次告警，也要保证冷却期内至多一次的不变式）
func (l *Limiter) Admit(ctx context.Context, alert *models.Alert) (Decision, error) {
	key := fmt.Sprintf("%s%s:%s",
		l.config.RateLimit.CooldownKeyPrefix,
		alert.UserID,
		alert.Severity,
	)

	ok, err := l.redisClient.SetNX(ctx, key, alert.TriggeredAt.Unix(), l.Cooldown(alert.Severity)).Result()
	if err != nil {
		// fail closed：原子检查无法执行时不准入
		return Decision{}, fmt.Errorf("failed to acquire cooldown: %w", err)
	}

	if !ok {
		l.logger.Debug("Alert rejected by cooldown",
			zap.String("user_id", alert.UserID),
			zap.String("severity", alert.Severity.String()),
		)
		return Decision{Admitted: false, Reason: ReasonCooldownActive}, nil
	}

	return Decision{Admitted: true}, nil
}

// ClaimDelivery 占用去重键（分发前调用）
// 返回 false 表示同一 dedup key 已在去重窗口内分发过，应抑制本次投递
func (l *Limiter) ClaimDelivery(ctx context.Context, dedupKey string) (bool, error) {
	key := l.config.RateLimit.DedupKeyPrefix + dedupKey
	window := time.Duration(l.config.RateLimit.DedupWindowSeconds) * time.Second

	ok, err := l.redisClient.SetNX(ctx, key, time.Now().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}

	return ok, nil
}
