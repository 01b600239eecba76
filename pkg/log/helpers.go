package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func typed(logType, msg string, kvs []interface{}) []interface{} {
	allKvs := make([]interface{}, 0, len(kvs)+4)
	allKvs = append(allKvs, "msg", msg)
	allKvs = append(allKvs, kvs...)
	return append(allKvs, "type", logType)
}

// Auth 记录认证相关日志（表情符号: 🔓）
func (h *LogHelper) Auth(msg string, kvs ...interface{}) {
	h.Infow(typed("auth", msg, kvs)...)
}

// Breaker 记录熔断器状态变化（表情符号: 🔌）
// 打开熔断器是需要关注的事件，使用 WARN 级别
func (h *LogHelper) Breaker(opened bool, msg string, kvs ...interface{}) {
	if opened {
		h.Warnw(typed("breaker", msg, kvs)...)
		return
	}
	h.Infow(typed("breaker", msg, kvs)...)
}

// Cache 记录缓存读写日志（表情符号: 📦）
func (h *LogHelper) Cache(msg string, kvs ...interface{}) {
	h.Debugw(typed("cache", msg, kvs)...)
}

// Degraded 记录降级日志，存储或依赖失败时业务继续（表情符号: 🛟）
func (h *LogHelper) Degraded(msg string, kvs ...interface{}) {
	h.Warnw(typed("degraded", msg, kvs)...)
}

// Dependency 记录外部依赖调用日志（表情符号: 🛰️）
func (h *LogHelper) Dependency(msg string, kvs ...interface{}) {
	h.Infow(typed("dependency", msg, kvs)...)
}

// Task 记录后台任务日志（表情符号: 🧵）
func (h *LogHelper) Task(msg string, kvs ...interface{}) {
	h.Infow(typed("task", msg, kvs)...)
}

// DeadLetter 记录死信日志（表情符号: 🪦）
func (h *LogHelper) DeadLetter(msg string, kvs ...interface{}) {
	h.Errorw(typed("dead_letter", msg, kvs)...)
}

// Scheduler 记录调度器相关日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(typed("scheduler", msg, kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed("startup", msg, kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(typed("database", msg, kvs)...)
}

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s", method, url, status, durationMs, reqCtx.RequestID)

	allKvs := typed("request", msg, kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"user_id", GetUserID(ctx),
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	if durationMs > slowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, slowRequestThresholdMs)
	}
}

// slowRequestThresholdMs 超过该耗时的请求会额外记录一条警告
const slowRequestThresholdMs = 1000

// SlowRequest 记录慢请求警告（表情符号: 🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := typed("slow_request", msg, kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(allKvs...)
}
