package dispatcher

import (
	"context"
	"encoding/json"
	"sync"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/metrics"
	"anxiease-alert/internal/models"

	"go.uber.org/zap"
)

// PushChannel 推送通道
type PushChannel interface {
	Send(ctx context.Context, alert *models.Alert) error
}

// MQTTPublisher 伴生应用 MQTT 下发通道
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// AlertStore 告警持久化存储
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) (bool, error)
	UpdateDelivery(ctx context.Context, alertID string, delivery *models.DeliveryResult) error
}

// AlertCacheWriter 用户最新告警缓存
type AlertCacheWriter interface {
	UpdateAlertCache(ctx context.Context, userID string, alerts []models.Alert) error
}

// DeliveryClaimer 去重键占用（限流器提供）
type DeliveryClaimer interface {
	ClaimDelivery(ctx context.Context, dedupKey string) (bool, error)
}

// Dispatcher 告警分发器
// 评估端通过 Enqueue 投递（非阻塞），worker 执行推送 / MQTT / 落库三个相互独立的副作用
type Dispatcher struct {
	config  *config.Config
	push    PushChannel
	mqtt    MQTTPublisher
	store   AlertStore
	cache   AlertCacheWriter
	claimer DeliveryClaimer
	metrics *metrics.Metrics
	logger  *zap.Logger

	queue chan *models.Alert
	wg    sync.WaitGroup
}

// NewDispatcher 创建告警分发器
func NewDispatcher(
	cfg *config.Config,
	push PushChannel,
	mqtt MQTTPublisher,
	store AlertStore,
	cache AlertCacheWriter,
	claimer DeliveryClaimer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	queueSize := cfg.Dispatch.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Dispatcher{
		config:  cfg,
		push:    push,
		mqtt:    mqtt,
		store:   store,
		cache:   cache,
		claimer: claimer,
		metrics: m,
		logger:  logger,
		queue:   make(chan *models.Alert, queueSize),
	}
}

// Start 启动分发 worker
func (d *Dispatcher) Start(ctx context.Context) {
	workers := d.config.Dispatch.Workers
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case alert := <-d.queue:
					d.metrics.QueueDepth.Set(float64(len(d.queue)))
					d.Deliver(ctx, alert)
				}
			}
		}()
	}

	d.logger.Info("Dispatcher started",
		zap.Int("workers", workers),
		zap.Int("queue_size", cap(d.queue)),
	)
}

// Wait 等待 worker 退出
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue 提交告警进入分发队列（实现 evaluator.AlertSink）
// 队列满时返回 false，评估端不阻塞
func (d *Dispatcher) Enqueue(alert *models.Alert) bool {
	select {
	case d.queue <- alert:
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		return false
	}
}

// Deliver 执行单条告警的分发
// 三个副作用相互独立：任一失败不阻塞其余，各自记录结果
func (d *Dispatcher) Deliver(ctx context.Context, alert *models.Alert) {
	// 去重：同一 dedup key 在窗口内重放时不再产生任何副作用
	claimed, err := d.claimer.ClaimDelivery(ctx, alert.DedupKey)
	if err != nil {
		// 去重检查无法执行：放弃本次分发，保证不重复投递
		d.metrics.DispatchTotal.WithLabelValues("push", "failed").Inc()
		d.logger.Error("Failed to claim delivery, dropping alert",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return
	}
	if !claimed {
		d.metrics.DispatchTotal.WithLabelValues("push", "suppressed").Inc()
		d.logger.Debug("Duplicate delivery suppressed",
			zap.String("alert_id", alert.AlertID),
			zap.String("dedup_key", alert.DedupKey),
		)
		return
	}

	result := &models.DeliveryResult{}

	// 1. 推送服务商
	if err := d.push.Send(ctx, alert); err != nil {
		result.PushError = err.Error()
		d.metrics.DispatchTotal.WithLabelValues("push", "failed").Inc()
		d.logger.Error("Failed to send push notification",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	} else {
		result.PushDelivered = true
		d.metrics.DispatchTotal.WithLabelValues("push", "ok").Inc()
	}

	// 2. 伴生应用 MQTT 主题
	d.publishMQTT(alert, result)

	// 3. 落库（dedup_key 冲突时不产生第二条记录）
	inserted, err := d.store.CreateAlert(ctx, alert)
	if err != nil {
		d.metrics.DispatchTotal.WithLabelValues("persist", "failed").Inc()
		d.logger.Error("Failed to persist alert",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	} else if !inserted {
		d.metrics.DispatchTotal.WithLabelValues("persist", "suppressed").Inc()
		d.logger.Debug("Alert record already exists",
			zap.String("dedup_key", alert.DedupKey),
		)
	} else {
		result.Persisted = true
		d.metrics.DispatchTotal.WithLabelValues("persist", "ok").Inc()

		if err := d.store.UpdateDelivery(ctx, alert.AlertID, result); err != nil {
			d.logger.Warn("Failed to record delivery result",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		}
	}

	// 更新用户最新告警缓存（移动端实时卡片）
	if d.cache != nil {
		if err := d.cache.UpdateAlertCache(ctx, alert.UserID, []models.Alert{*alert}); err != nil {
			d.logger.Warn("Failed to update alert cache",
				zap.String("user_id", alert.UserID),
				zap.Error(err),
			)
		}
	}

	d.logger.Info("Alert dispatched",
		zap.String("alert_id", alert.AlertID),
		zap.String("user_id", alert.UserID),
		zap.String("severity", alert.Severity.String()),
		zap.Bool("push_delivered", result.PushDelivered),
		zap.Bool("mqtt_delivered", result.MQTTDelivered),
		zap.Bool("persisted", result.Persisted),
	)
}

// publishMQTT 发布告警到用户的 MQTT 主题
func (d *Dispatcher) publishMQTT(alert *models.Alert, result *models.DeliveryResult) {
	if d.mqtt == nil || !d.mqtt.IsConnected() {
		result.MQTTError = "mqtt not connected"
		d.metrics.DispatchTotal.WithLabelValues("mqtt", "failed").Inc()
		return
	}

	payload, err := json.Marshal(BuildPushMessage(alert).Data)
	if err != nil {
		result.MQTTError = err.Error()
		d.metrics.DispatchTotal.WithLabelValues("mqtt", "failed").Inc()
		return
	}

	topic := d.config.MQTT.TopicPrefix + alert.UserID + "/alerts"
	if err := d.mqtt.Publish(topic, d.config.MQTT.QoS, false, payload); err != nil {
		result.MQTTError = err.Error()
		d.metrics.DispatchTotal.WithLabelValues("mqtt", "failed").Inc()
		d.logger.Error("Failed to publish alert to MQTT",
			zap.String("alert_id", alert.AlertID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	result.MQTTDelivered = true
	d.metrics.DispatchTotal.WithLabelValues("mqtt", "ok").Inc()
}
