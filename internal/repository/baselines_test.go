package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetBaseline_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBaselineRepository(db, zap.NewNop())

	recordedAt := time.Unix(1700000000, 0)
	mock.ExpectQuery("SELECT (.+) FROM baselines").
		WithArgs("user-1", "dev-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "device_id", "resting_heart_rate", "recorded_at",
		}).AddRow("user-1", "dev-1", 73.2, recordedAt))

	baseline, err := repo.GetBaseline(context.Background(), "user-1", "dev-1")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, 73.2, baseline.RestingHeartRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBaseline_MissingReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBaselineRepository(db, zap.NewNop())

	// 基线缺失不是错误：返回 nil，调用方跳过检测
	mock.ExpectQuery("SELECT (.+) FROM baselines").
		WithArgs("user-1", "dev-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "device_id", "resting_heart_rate", "recorded_at",
		}))

	baseline, err := repo.GetBaseline(context.Background(), "user-1", "dev-1")
	require.NoError(t, err)
	assert.Nil(t, baseline)
}

func TestGetBaseline_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBaselineRepository(db, zap.NewNop())

	_, err = repo.GetBaseline(context.Background(), "", "dev-1")
	assert.Error(t, err)

	_, err = repo.GetBaseline(context.Background(), "user-1", "")
	assert.Error(t, err)
}
