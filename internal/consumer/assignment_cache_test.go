package consumer

import (
	"context"
	"testing"
	"time"

	"anxiease-alert/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAssignmentCache(t *testing.T, ttl time.Duration) (*AssignmentCache, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deviceRepo := repository.NewDeviceRepository(db, zap.NewNop())
	return NewAssignmentCache(deviceRepo, ttl), mock
}

func TestAssignmentCache_CachesResolvedUser(t *testing.T) {
	cache, mock := setupAssignmentCache(t, time.Minute)
	ctx := context.Background()

	// 只期望一次查库：第二次命中内存缓存
	mock.ExpectQuery("SELECT user_id FROM device_assignments").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	userID, err := cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	userID, err = cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentCache_UnassignedNotCached(t *testing.T) {
	cache, mock := setupAssignmentCache(t, time.Minute)
	ctx := context.Background()

	// 未分配的设备每次都查库，等待分配生效
	mock.ExpectQuery("SELECT user_id FROM device_assignments").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery("SELECT user_id FROM device_assignments").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	userID, err := cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "", userID)

	userID, err = cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentCache_ExpiredEntryRefetched(t *testing.T) {
	cache, mock := setupAssignmentCache(t, time.Nanosecond)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id FROM device_assignments").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery("SELECT user_id FROM device_assignments").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-2"))

	_, err := cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	userID, err := cache.ResolveUser(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}
