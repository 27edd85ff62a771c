package evaluator

import (
	"testing"

	"anxiease-alert/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Detection.WindowSeconds = 90
	cfg.Detection.MinSustainedSeconds = 60
	cfg.Detection.ExpectedIntervalSeconds = 10
	cfg.Detection.GapGraceMultiplier = 1.5
	cfg.Detection.MildPercent = 0.20
	cfg.Detection.ModeratePercent = 0.30
	cfg.Detection.SeverePercent = 0.50
	cfg.Detection.CriticalPercent = 0.80
	cfg.Movement.HighThreshold = 1.2
	cfg.Movement.ModerateThreshold = 0.5
	cfg.Movement.ElevatedHeartRate = 100
	cfg.Movement.SuppressOnMissing = true
	cfg.RateLimit.DedupBucketSeconds = 60
	cfg.RateLimit.CooldownKeyPrefix = "anxiease:cooldown:"
	cfg.RateLimit.DedupKeyPrefix = "anxiease:dedup:"
	cfg.RateLimit.DedupWindowSeconds = 300
	cfg.RateLimit.CooldownSeconds = map[string]int{
		"critical": 120,
		"severe":   300,
		"moderate": 600,
		"mild":     900,
		"normal":   1800,
	}
	cfg.Cache.StateKeyPrefix = "anxiease:state:"
	cfg.Cache.BaselineKeyPrefix = "anxiease:baseline:"
	cfg.Cache.BaselineTTLSeconds = 60
	cfg.Cache.AlertKeyPrefix = "anxiease:user:"
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.AlertTTLSeconds = 60
	return cfg
}

func TestWindowEvaluator_SustainedElevation(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	// 6 条间隔 10 秒的样本：覆盖 60 秒
	var summary WindowSummary
	var ok bool
	for i := 0; i < 6; i++ {
		summary, ok = w.Ingest("user-1", "dev-1", int64(1000+i*10), 96, true)
		require.True(t, ok)
	}

	assert.InDelta(t, 96.0, summary.AverageHR, 0.001)
	assert.InDelta(t, 60.0, summary.SustainedSeconds, 0.001)
	assert.Equal(t, 6, summary.SampleCount)
}

func TestWindowEvaluator_EvictsOldSamples(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	w.Ingest("user-1", "dev-1", 1000, 80, true)
	// 窗口回看 90 秒：t=1100 时 t=1000 的样本被淘汰
	summary, ok := w.Ingest("user-1", "dev-1", 1100, 96, true)
	require.True(t, ok)

	assert.Equal(t, 1, summary.SampleCount)
	assert.InDelta(t, 96.0, summary.AverageHR, 0.001)
}

func TestWindowEvaluator_DropsOutOfOrderSamples(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	_, ok := w.Ingest("user-1", "dev-1", 1000, 96, true)
	require.True(t, ok)

	// 早于窗口内最新样本：丢弃
	_, ok = w.Ingest("user-1", "dev-1", 990, 97, true)
	assert.False(t, ok)

	// 同一时间戳（重复投递）：丢弃
	_, ok = w.Ingest("user-1", "dev-1", 1000, 96, true)
	assert.False(t, ok)
}

func TestWindowEvaluator_GapResetsSustainedRun(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	// 前 3 条连续，然后 30 秒空洞（超过 10s * 1.5 宽限），再 2 条
	w.Ingest("user-1", "dev-1", 1000, 96, true)
	w.Ingest("user-1", "dev-1", 1010, 96, true)
	w.Ingest("user-1", "dev-1", 1020, 96, true)
	w.Ingest("user-1", "dev-1", 1050, 96, true)
	summary, ok := w.Ingest("user-1", "dev-1", 1060, 96, true)
	require.True(t, ok)

	// 持续计时从空洞之后重新开始：仅覆盖 1050-1060 两条
	assert.InDelta(t, 20.0, summary.SustainedSeconds, 0.001)
}

func TestWindowEvaluator_IneligibleSamplesExcludedButCreateGap(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	w.Ingest("user-1", "dev-1", 1000, 96, true)
	w.Ingest("user-1", "dev-1", 1010, 96, true)
	// 活动期样本：不参与平均，但打断持续计时（前后有效样本间隔 20s > 15s 宽限）
	w.Ingest("user-1", "dev-1", 1020, 140, false)
	summary, ok := w.Ingest("user-1", "dev-1", 1030, 96, true)
	require.True(t, ok)

	assert.InDelta(t, 96.0, summary.AverageHR, 0.001)
	assert.Equal(t, 3, summary.SampleCount)
	assert.InDelta(t, 10.0, summary.SustainedSeconds, 0.001)
}

func TestWindowEvaluator_SeparateWindowsPerUserDevice(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	w.Ingest("user-1", "dev-1", 1000, 96, true)
	summary, ok := w.Ingest("user-2", "dev-2", 1000, 72, true)
	require.True(t, ok)

	assert.Equal(t, 1, summary.SampleCount)
	assert.InDelta(t, 72.0, summary.AverageHR, 0.001)
	assert.Equal(t, 2, w.Size())
}

func TestWindowEvaluator_AllIneligibleWindow(t *testing.T) {
	w := NewWindowEvaluator(testConfig())

	summary, ok := w.Ingest("user-1", "dev-1", 1000, 140, false)
	require.True(t, ok)

	assert.Equal(t, 0, summary.SampleCount)
	assert.Equal(t, 0.0, summary.AverageHR)
	assert.Equal(t, 0.0, summary.SustainedSeconds)
}
