package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/metrics"
	"anxiease-alert/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePush struct {
	sent []*models.Alert
	err  error
}

func (f *fakePush) Send(ctx context.Context, alert *models.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, alert)
	return nil
}

type fakeMQTT struct {
	connected bool
	topics    []string
	payloads  [][]byte
	err       error
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

type fakeStore struct {
	mu         sync.Mutex
	created    []*models.Alert
	deliveries map[string]*models.DeliveryResult
	inserted   bool
	createErr  error
}

func (f *fakeStore) CreateAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, alert)
	return f.inserted, nil
}

func (f *fakeStore) UpdateDelivery(ctx context.Context, alertID string, delivery *models.DeliveryResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliveries == nil {
		f.deliveries = make(map[string]*models.DeliveryResult)
	}
	f.deliveries[alertID] = delivery
	return nil
}

func (f *fakeStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeCache struct {
	updates map[string][]models.Alert
}

func (f *fakeCache) UpdateAlertCache(ctx context.Context, userID string, alerts []models.Alert) error {
	if f.updates == nil {
		f.updates = make(map[string][]models.Alert)
	}
	f.updates[userID] = alerts
	return nil
}

type fakeClaimer struct {
	claimed map[string]bool
	err     error
}

func (f *fakeClaimer) ClaimDelivery(ctx context.Context, dedupKey string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed == nil {
		f.claimed = make(map[string]bool)
	}
	if f.claimed[dedupKey] {
		return false, nil
	}
	f.claimed[dedupKey] = true
	return true, nil
}

func dispatchConfig() *config.Config {
	cfg := &config.Config{}
	cfg.MQTT.TopicPrefix = "anxiease/user/"
	cfg.MQTT.QoS = 1
	cfg.Dispatch.QueueSize = 4
	cfg.Dispatch.Workers = 1
	return cfg
}

func dispatchAlert() *models.Alert {
	return &models.Alert{
		AlertID:              "alert-1",
		UserID:               "user-1",
		DeviceID:             "dev-1",
		Severity:             models.SeverityModerate,
		HeartRate:            96,
		BaselineHR:           73.2,
		PercentAboveBaseline: 0.3115,
		WindowSeconds:        60,
		TriggeredAt:          time.Unix(1700000000, 0),
		DedupKey:             "abc123",
	}
}

func TestDispatcher_DeliverAllChannels(t *testing.T) {
	push := &fakePush{}
	mqtt := &fakeMQTT{connected: true}
	store := &fakeStore{inserted: true}
	cache := &fakeCache{}
	claimer := &fakeClaimer{}

	d := NewDispatcher(dispatchConfig(), push, mqtt, store, cache, claimer, metrics.NewMetrics(), zap.NewNop())
	d.Deliver(context.Background(), dispatchAlert())

	require.Len(t, push.sent, 1)
	require.Len(t, mqtt.topics, 1)
	assert.Equal(t, "anxiease/user/user-1/alerts", mqtt.topics[0])
	require.Len(t, store.created, 1)

	// delivery result recorded on the persisted row
	delivery := store.deliveries["alert-1"]
	require.NotNil(t, delivery)
	assert.True(t, delivery.PushDelivered)
	assert.True(t, delivery.MQTTDelivered)
	assert.True(t, delivery.Persisted)

	assert.Len(t, cache.updates["user-1"], 1)
}

func TestDispatcher_MQTTPayloadShape(t *testing.T) {
	mqtt := &fakeMQTT{connected: true}
	d := NewDispatcher(dispatchConfig(), &fakePush{}, mqtt, &fakeStore{inserted: true}, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())

	d.Deliver(context.Background(), dispatchAlert())

	require.Len(t, mqtt.payloads, 1)
	var data PushData
	require.NoError(t, json.Unmarshal(mqtt.payloads[0], &data))
	assert.Equal(t, "anxiety_alert", data.Type)
	assert.Equal(t, "moderate", data.Severity)
	assert.Equal(t, 96.0, data.HeartRate)
	assert.Equal(t, "abc123", data.DedupKey)
}

func TestDispatcher_PushFailureDoesNotBlockOtherChannels(t *testing.T) {
	push := &fakePush{err: errors.New("provider unavailable")}
	mqtt := &fakeMQTT{connected: true}
	store := &fakeStore{inserted: true}

	d := NewDispatcher(dispatchConfig(), push, mqtt, store, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())
	d.Deliver(context.Background(), dispatchAlert())

	// push failed but MQTT and persistence still went through
	assert.Len(t, mqtt.topics, 1)
	require.Len(t, store.created, 1)

	delivery := store.deliveries["alert-1"]
	require.NotNil(t, delivery)
	assert.False(t, delivery.PushDelivered)
	assert.Equal(t, "provider unavailable", delivery.PushError)
	assert.True(t, delivery.MQTTDelivered)
}

func TestDispatcher_MQTTDisconnectedRecordedAsFailure(t *testing.T) {
	push := &fakePush{}
	mqtt := &fakeMQTT{connected: false}
	store := &fakeStore{inserted: true}

	d := NewDispatcher(dispatchConfig(), push, mqtt, store, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())
	d.Deliver(context.Background(), dispatchAlert())

	assert.Empty(t, mqtt.topics)
	delivery := store.deliveries["alert-1"]
	require.NotNil(t, delivery)
	assert.True(t, delivery.PushDelivered)
	assert.False(t, delivery.MQTTDelivered)
	assert.Equal(t, "mqtt not connected", delivery.MQTTError)
}

func TestDispatcher_DuplicateDeliverySuppressed(t *testing.T) {
	push := &fakePush{}
	store := &fakeStore{inserted: true}
	claimer := &fakeClaimer{}

	d := NewDispatcher(dispatchConfig(), push, &fakeMQTT{connected: true}, store, nil, claimer, metrics.NewMetrics(), zap.NewNop())

	d.Deliver(context.Background(), dispatchAlert())
	// replay with the same dedup key: no side effects at all
	d.Deliver(context.Background(), dispatchAlert())

	assert.Len(t, push.sent, 1)
	assert.Len(t, store.created, 1)
}

func TestDispatcher_ClaimErrorDropsAlert(t *testing.T) {
	push := &fakePush{}
	store := &fakeStore{inserted: true}
	claimer := &fakeClaimer{err: errors.New("redis down")}

	d := NewDispatcher(dispatchConfig(), push, &fakeMQTT{connected: true}, store, nil, claimer, metrics.NewMetrics(), zap.NewNop())
	d.Deliver(context.Background(), dispatchAlert())

	// fail closed: no channel fires when the dedup claim cannot be taken
	assert.Empty(t, push.sent)
	assert.Empty(t, store.created)
}

func TestDispatcher_PersistConflictSkipsDeliveryWriteback(t *testing.T) {
	store := &fakeStore{inserted: false}

	d := NewDispatcher(dispatchConfig(), &fakePush{}, &fakeMQTT{connected: true}, store, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())
	d.Deliver(context.Background(), dispatchAlert())

	// row already existed: no delivery writeback on someone else's record
	assert.Empty(t, store.deliveries)
}

func TestDispatcher_EnqueueRejectsWhenQueueFull(t *testing.T) {
	cfg := dispatchConfig()
	cfg.Dispatch.QueueSize = 1

	d := NewDispatcher(cfg, &fakePush{}, &fakeMQTT{}, &fakeStore{}, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())

	// workers not started: the second enqueue finds the queue full
	assert.True(t, d.Enqueue(dispatchAlert()))
	assert.False(t, d.Enqueue(dispatchAlert()))
}

func TestDispatcher_StartProcessesQueuedAlerts(t *testing.T) {
	push := &fakePush{}
	store := &fakeStore{inserted: true}

	d := NewDispatcher(dispatchConfig(), push, &fakeMQTT{connected: true}, store, nil, &fakeClaimer{}, metrics.NewMetrics(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	require.True(t, d.Enqueue(dispatchAlert()))

	assert.Eventually(t, func() bool {
		return store.createdCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	d.Wait()
}
