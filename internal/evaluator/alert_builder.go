package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"anxiease-alert/internal/models"

	"github.com/google/uuid"
)

// BuildAlert 构建告警事件
func BuildAlert(
	sample *models.TelemetrySample,
	severity models.Severity,
	percentAbove float64,
	summary WindowSummary,
	baseline *models.Baseline,
	dedupBucketSeconds int,
) *models.Alert {
	triggeredAt := sample.Time()

	context := models.AlertContext{
		SampleCount:     summary.SampleCount,
		MotionMagnitude: MotionMagnitude(sample),
		BodyTemp:        sample.BodyTemp,
		SpO2:            sample.SpO2,
	}

	contextJSON, err := json.Marshal(context)
	if err != nil {
		contextJSON = []byte("{}")
	}

	return &models.Alert{
		AlertID:              uuid.New().String(),
		UserID:               sample.UserID,
		DeviceID:             sample.DeviceID,
		Severity:             severity,
		HeartRate:            summary.AverageHR,
		BaselineHR:           baseline.RestingHeartRate,
		PercentAboveBaseline: percentAbove,
		WindowSeconds:        summary.SustainedSeconds,
		TriggeredAt:          triggeredAt,
		DedupKey:             BuildDedupKey(sample.UserID, severity, triggeredAt, dedupBucketSeconds),
		Context:              contextJSON,
	}
}

// BuildDedupKey 构建去重键：hash(userId + severity + 取整时间戳)
// 同一用户同一级别在同一时间桶内的告警视为同一事件
func BuildDedupKey(userID string, severity models.Severity, ts time.Time, bucketSeconds int) string {
	if bucketSeconds <= 0 {
		bucketSeconds = 60
	}
	bucket := ts.Unix() - ts.Unix()%int64(bucketSeconds)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", userID, severity, bucket)))
	return hex.EncodeToString(sum[:16])
}
