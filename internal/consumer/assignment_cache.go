package consumer

import (
	"context"
	"sync"
	"time"

	"anxiease-alert/internal/repository"
)

// assignmentEntry 设备归属缓存条目
type assignmentEntry struct {
	userID    string
	expiresAt time.Time
}

// AssignmentCache 设备归属内存缓存（设备归属变化少，短 TTL 即可）
type AssignmentCache struct {
	deviceRepo *repository.DeviceRepository
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]assignmentEntry
}

// NewAssignmentCache 创建设备归属缓存
func NewAssignmentCache(deviceRepo *repository.DeviceRepository, ttl time.Duration) *AssignmentCache {
	return &AssignmentCache{
		deviceRepo: deviceRepo,
		ttl:        ttl,
		entries:    make(map[string]assignmentEntry),
	}
}

// ResolveUser 解析设备归属的用户（未分配返回空字符串）
func (c *AssignmentCache) ResolveUser(ctx context.Context, deviceID string) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[deviceID]
	c.mu.Unlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.userID, nil
	}

	userID, err := c.deviceRepo.GetAssignedUser(ctx, deviceID)
	if err != nil {
		return "", err
	}

	// 未分配的设备不缓存，等待分配生效
	if userID != "" {
		c.mu.Lock()
		c.entries[deviceID] = assignmentEntry{
			userID:    userID,
			expiresAt: time.Now().Add(c.ttl),
		}
		c.mu.Unlock()
	}

	return userID, nil
}
