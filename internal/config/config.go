package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// 告警下发主题前缀，如 "anxiease/user/"（完整主题为 <prefix><user_id>/alerts）
	TopicPrefix string
}

// PushConfig 推送服务商配置（FCM 风格的 HTTP 接口）
type PushConfig struct {
	Endpoint   string  // 推送服务商地址
	APIKey     string  // 服务商认证密钥
	TimeoutSec int     // 单次请求超时（秒）
	RetryCount int     // 失败重试次数（有界退避）
	RatePerSec float64 // 出站推送速率上限（令牌桶）
}

// Config 告警服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Push     PushConfig

	// 遥测流配置
	Stream struct {
		Telemetry     string // 遥测数据流，如 "anxiease:stream:telemetry"
		ConsumerGroup string // 消费者组名
		ConsumerName  string // 消费者名（默认主机名）
		BatchSize     int64  // 单次读取条数
	}

	// 检测配置
	Detection struct {
		WindowSeconds           int     // 滑动窗口回看时长 W（秒）
		MinSustainedSeconds     int     // 最小持续时长（秒）
		ExpectedIntervalSeconds int     // 设备期望采样间隔（秒）
		GapGraceMultiplier      float64 // 间隔宽限倍数，超过则重置持续计时
		StaleSampleSeconds      int     // 样本过期阈值（秒），早于此的样本丢弃

		// 严重级别百分比阈值（相对静息心率的升高比例）
		MildPercent     float64
		ModeratePercent float64
		SeverePercent   float64
		CriticalPercent float64
	}

	// 运动过滤配置
	Movement struct {
		HighThreshold     float64 // 运动幅值高阈值，超过直接判定为活动
		ModerateThreshold float64 // 运动幅值中阈值，叠加心率升高判定为活动
		ElevatedHeartRate float64 // 与中阈值配合使用的心率升高判定值（BPM）
		SuppressOnMissing bool    // 缺失运动数据时是否按活动处理（保守默认）
	}

	// 限流 / 去重配置
	RateLimit struct {
		CooldownKeyPrefix  string // 冷却键前缀，如 "anxiease:cooldown:"
		DedupKeyPrefix     string // 去重键前缀，如 "anxiease:dedup:"
		DedupWindowSeconds int    // 去重窗口（秒）
		DedupBucketSeconds int    // dedup key 时间取整粒度（秒）

		// 每级别冷却时长（秒），级别越高冷却越短
		CooldownSeconds map[string]int
	}

	// 缓存配置
	Cache struct {
		BaselineKeyPrefix  string // 基线缓存键前缀，如 "anxiease:baseline:"
		BaselineTTLSeconds int    // 基线缓存 TTL（秒）
		StateKeyPrefix     string // 严重级别状态键前缀，如 "anxiease:state:"
		AlertKeyPrefix     string // 用户最新告警缓存键前缀，如 "anxiease:user:"
		AlertSuffix        string // 用户最新告警缓存键后缀，如 ":alerts"
		AlertTTLSeconds    int    // 告警缓存 TTL（秒）
		AssignmentTTLSec   int    // 设备归属内存缓存 TTL（秒）
	}

	// 分发配置
	Dispatch struct {
		QueueSize int // 分发队列长度（评估端不阻塞）
		Workers   int // 分发 worker 数量
	}

	Metrics struct {
		Addr string // Prometheus 监听地址，如 ":9091"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "anxiease")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "anxiease-alert")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "anxiease/user/")

	cfg.Push.Endpoint = getEnv("PUSH_ENDPOINT", "http://localhost:8088")
	cfg.Push.APIKey = getEnv("PUSH_API_KEY", "")
	cfg.Push.TimeoutSec = getEnvInt("PUSH_TIMEOUT_SEC", 10)
	cfg.Push.RetryCount = getEnvInt("PUSH_RETRY_COUNT", 3)
	cfg.Push.RatePerSec = getEnvFloat("PUSH_RATE_PER_SEC", 20)

	cfg.Stream.Telemetry = getEnv("STREAM_TELEMETRY", "anxiease:stream:telemetry")
	cfg.Stream.ConsumerGroup = getEnv("STREAM_CONSUMER_GROUP", "anxiease-alert")
	cfg.Stream.ConsumerName = getEnv("STREAM_CONSUMER_NAME", defaultConsumerName())
	cfg.Stream.BatchSize = int64(getEnvInt("STREAM_BATCH_SIZE", 20))

	cfg.Detection.WindowSeconds = getEnvInt("DETECTION_WINDOW_SEC", 90)
	cfg.Detection.MinSustainedSeconds = getEnvInt("DETECTION_MIN_SUSTAINED_SEC", 60)
	cfg.Detection.ExpectedIntervalSeconds = getEnvInt("DETECTION_EXPECTED_INTERVAL_SEC", 10)
	cfg.Detection.GapGraceMultiplier = getEnvFloat("DETECTION_GAP_GRACE_MULTIPLIER", 1.5)
	cfg.Detection.StaleSampleSeconds = getEnvInt("DETECTION_STALE_SAMPLE_SEC", 300)
	cfg.Detection.MildPercent = getEnvFloat("DETECTION_MILD_PERCENT", 0.20)
	cfg.Detection.ModeratePercent = getEnvFloat("DETECTION_MODERATE_PERCENT", 0.30)
	cfg.Detection.SeverePercent = getEnvFloat("DETECTION_SEVERE_PERCENT", 0.50)
	cfg.Detection.CriticalPercent = getEnvFloat("DETECTION_CRITICAL_PERCENT", 0.80)

	cfg.Movement.HighThreshold = getEnvFloat("MOVEMENT_HIGH_THRESHOLD", 1.2)
	cfg.Movement.ModerateThreshold = getEnvFloat("MOVEMENT_MODERATE_THRESHOLD", 0.5)
	cfg.Movement.ElevatedHeartRate = getEnvFloat("MOVEMENT_ELEVATED_HR", 100)
	cfg.Movement.SuppressOnMissing = getEnvBool("MOVEMENT_SUPPRESS_ON_MISSING", true)

	cfg.RateLimit.CooldownKeyPrefix = getEnv("RATELIMIT_COOLDOWN_PREFIX", "anxiease:cooldown:")
	cfg.RateLimit.DedupKeyPrefix = getEnv("RATELIMIT_DEDUP_PREFIX", "anxiease:dedup:")
	cfg.RateLimit.DedupWindowSeconds = getEnvInt("RATELIMIT_DEDUP_WINDOW_SEC", 300)
	cfg.RateLimit.DedupBucketSeconds = getEnvInt("RATELIMIT_DEDUP_BUCKET_SEC", 60)
	cfg.RateLimit.CooldownSeconds = map[string]int{
		"critical": getEnvInt("COOLDOWN_CRITICAL_SEC", 120),
		"severe":   getEnvInt("COOLDOWN_SEVERE_SEC", 300),
		"moderate": getEnvInt("COOLDOWN_MODERATE_SEC", 600),
		"mild":     getEnvInt("COOLDOWN_MILD_SEC", 900),
		"normal":   getEnvInt("COOLDOWN_NORMAL_SEC", 1800),
	}

	cfg.Cache.BaselineKeyPrefix = getEnv("CACHE_BASELINE_PREFIX", "anxiease:baseline:")
	cfg.Cache.BaselineTTLSeconds = getEnvInt("CACHE_BASELINE_TTL_SEC", 60)
	cfg.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "anxiease:state:")
	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "anxiease:user:")
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.AlertTTLSeconds = getEnvInt("CACHE_ALERT_TTL_SEC", 60)
	cfg.Cache.AssignmentTTLSec = getEnvInt("CACHE_ASSIGNMENT_TTL_SEC", 300)

	cfg.Dispatch.QueueSize = getEnvInt("DISPATCH_QUEUE_SIZE", 256)
	cfg.Dispatch.Workers = getEnvInt("DISPATCH_WORKERS", 2)

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9091")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func defaultConsumerName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "anxiease-alert-1"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
