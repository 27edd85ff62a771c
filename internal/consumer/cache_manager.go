package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"
	"anxiease-alert/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager Redis 缓存管理器（基线短 TTL 缓存 + 用户最新告警缓存）
type CacheManager struct {
	config       *config.Config
	redisClient  *redis.Client
	baselineRepo *repository.BaselineRepository
	logger       *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	baselineRepo *repository.BaselineRepository,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:       cfg,
		redisClient:  redisClient,
		baselineRepo: baselineRepo,
		logger:       logger,
	}
}

// baselineKey 构建基线缓存键
func (c *CacheManager) baselineKey(userID, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", c.config.Cache.BaselineKeyPrefix, userID, deviceID)
}

// GetBaseline 获取基线（先查缓存，未命中回源数据库并写缓存）
// 基线不存在时返回 nil 且不缓存，下一条样本会再次尝试
func (c *CacheManager) GetBaseline(ctx context.Context, userID, deviceID string) (*models.Baseline, error) {
	key := c.baselineKey(userID, deviceID)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == nil {
		var baseline models.Baseline
		if err := json.Unmarshal([]byte(val), &baseline); err == nil {
			return &baseline, nil
		}
		// 缓存内容损坏：忽略并回源
		c.logger.Warn("Corrupt baseline cache entry, falling back to database",
			zap.String("key", key),
		)
	} else if err != redis.Nil {
		// Redis 故障时直接回源，不中断评估
		c.logger.Warn("Failed to read baseline cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	baseline, err := c.baselineRepo.GetBaseline(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, nil
	}

	jsonData, err := json.Marshal(baseline)
	if err == nil {
		ttl := time.Duration(c.config.Cache.BaselineTTLSeconds) * time.Second
		if err := c.redisClient.Set(ctx, key, jsonData, ttl).Err(); err != nil {
			c.logger.Warn("Failed to write baseline cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	return baseline, nil
}

// UpdateAlertCache 更新用户最新告警缓存（移动端实时卡片读取）
func (c *CacheManager) UpdateAlertCache(ctx context.Context, userID string, alerts []models.Alert) error {
	key := fmt.Sprintf("%s%s%s",
		c.config.Cache.AlertKeyPrefix,
		userID,
		c.config.Cache.AlertSuffix,
	)

	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alert cache: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Cache.AlertTTLSeconds)*time.Second,
	).Err()

	if err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("user_id", userID),
		zap.String("key", key),
		zap.Int("alert_count", len(alerts)),
	)

	return nil
}
