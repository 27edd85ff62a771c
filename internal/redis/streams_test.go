package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStreamClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestCreateConsumerGroup_CreatesStreamAndGroup(t *testing.T) {
	client, _ := setupStreamClient(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "anxiease:stream:telemetry", "alert-service"))

	// 重复创建（BUSYGROUP）不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "anxiease:stream:telemetry", "alert-service"))
}

func TestReadFromStream_ReturnsPendingMessages(t *testing.T) {
	client, _ := setupStreamClient(t)
	ctx := context.Background()

	stream := "anxiease:stream:telemetry"
	require.NoError(t, CreateConsumerGroup(ctx, client, stream, "alert-service"))

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"device_id":  "dev-1",
			"timestamp":  "1700000000",
			"heart_rate": "96",
		},
	}).Err())

	messages, err := ReadFromStream(ctx, client, stream, "alert-service", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "dev-1", messages[0].Values["device_id"])
	assert.NotEmpty(t, messages[0].ID)
}

func TestAckMessage(t *testing.T) {
	client, _ := setupStreamClient(t)
	ctx := context.Background()

	stream := "anxiease:stream:telemetry"
	require.NoError(t, CreateConsumerGroup(ctx, client, stream, "alert-service"))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"device_id": "dev-1", "timestamp": "1700000000"},
	}).Err())

	messages, err := ReadFromStream(ctx, client, stream, "alert-service", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, AckMessage(ctx, client, stream, "alert-service", messages[0].ID))

	// 确认后无待处理消息
	pending, err := client.XPending(ctx, stream, "alert-service").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
