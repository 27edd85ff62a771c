package evaluator

import (
	"fmt"
	"sync"

	"anxiease-alert/internal/config"
)

// WindowSummary 窗口评估结果
type WindowSummary struct {
	AverageHR        float64 // 窗口内有效样本的平均心率
	SustainedSeconds float64 // 最近一段连续有效样本覆盖的时长（秒）
	SampleCount      int     // 窗口内有效样本数
}

// windowSample 窗口内的单条样本
// eligible=false 的样本（活动期）占据时间但不参与平均和持续时长计算
type windowSample struct {
	ts       int64
	hr       float64
	eligible bool
}

// WindowEvaluator 滑动窗口评估器
// 每个 (user, device) 维护一个按时间有序的有界窗口；插入时淘汰超出回看时长的样本
// 同一用户的写入由消费循环串行化，map 本身由互斥锁保护
type WindowEvaluator struct {
	windowSeconds   int64
	maxGapSeconds   float64
	intervalSeconds float64

	mu      sync.Mutex
	windows map[string][]windowSample
}

// NewWindowEvaluator 创建滑动窗口评估器
func NewWindowEvaluator(cfg *config.Config) *WindowEvaluator {
	return &WindowEvaluator{
		windowSeconds:   int64(cfg.Detection.WindowSeconds),
		maxGapSeconds:   float64(cfg.Detection.ExpectedIntervalSeconds) * cfg.Detection.GapGraceMultiplier,
		intervalSeconds: float64(cfg.Detection.ExpectedIntervalSeconds),
		windows:         make(map[string][]windowSample),
	}
}

// Ingest 插入一条样本并计算窗口摘要
// 乱序样本（时间戳不晚于窗口内最新样本）被丢弃，返回 ok=false 以保持窗口不变式
func (w *WindowEvaluator) Ingest(userID, deviceID string, ts int64, hr float64, eligible bool) (WindowSummary, bool) {
	key := windowKey(userID, deviceID)

	w.mu.Lock()
	defer w.mu.Unlock()

	window := w.windows[key]

	if len(window) > 0 && ts <= window[len(window)-1].ts {
		return WindowSummary{}, false
	}

	window = append(window, windowSample{ts: ts, hr: hr, eligible: eligible})

	// 淘汰超出回看时长的样本
	cutoff := ts - w.windowSeconds
	start := 0
	for start < len(window) && window[start].ts < cutoff {
		start++
	}
	window = window[start:]
	w.windows[key] = window

	return w.summarize(window), true
}

// summarize 计算窗口摘要
func (w *WindowEvaluator) summarize(window []windowSample) WindowSummary {
	var sum float64
	var count int
	for _, s := range window {
		if s.eligible {
			sum += s.hr
			count++
		}
	}

	summary := WindowSummary{SampleCount: count}
	if count == 0 {
		return summary
	}
	summary.AverageHR = sum / float64(count)

	// 持续时长：从最新的有效样本向前回溯，相邻有效样本间隔超过宽限值则中断
	// （活动期或未佩戴造成的时间空洞会打断持续计时，避免拼接无关片段）
	var runEnd, runStart int64
	found := false
	for i := len(window) - 1; i >= 0; i-- {
		s := window[i]
		if !s.eligible {
			continue
		}
		if !found {
			runEnd = s.ts
			runStart = s.ts
			found = true
			continue
		}
		if float64(runStart-s.ts) > w.maxGapSeconds {
			break
		}
		runStart = s.ts
	}

	// 每条样本覆盖一个采样间隔，6 条间隔 10 秒的样本覆盖 60 秒
	if found {
		summary.SustainedSeconds = float64(runEnd-runStart) + w.intervalSeconds
	}

	return summary
}

// Size 当前维护窗口的 (user, device) 数量
func (w *WindowEvaluator) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.windows)
}

func windowKey(userID, deviceID string) string {
	return fmt.Sprintf("%s:%s", userID, deviceID)
}
