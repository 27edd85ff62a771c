package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateManager 严重级别状态管理器（Redis）
// 状态仅在告警成功准入后更新；除管理端显式重置外不删除
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// StateKey 构建状态键
func (s *StateManager) StateKey(userID, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", s.config.Cache.StateKeyPrefix, userID, deviceID)
}

// GetSeverityState 获取最近一次已通知级别（不存在返回 nil）
func (s *StateManager) GetSeverityState(ctx context.Context, userID, deviceID string) (*models.SeverityState, error) {
	key := s.StateKey(userID, deviceID)

	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get severity state: %w", err)
	}

	var state models.SeverityState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal severity state: %w", err)
	}

	return &state, nil
}

// SetSeverityState 写入最近一次已通知级别（无 TTL，长期保留）
func (s *StateManager) SetSeverityState(ctx context.Context, state *models.SeverityState) error {
	key := s.StateKey(state.UserID, state.DeviceID)

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal severity state: %w", err)
	}

	if err := s.redisClient.Set(ctx, key, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set severity state: %w", err)
	}

	return nil
}
