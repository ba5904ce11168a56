package models

import "fmt"

// ItemStatus 转录任务状态
type ItemStatus string

const (
	StatusQueued     ItemStatus = "queued"     // 已入队，等待处理
	StatusProcessing ItemStatus = "processing" // 处理中
	StatusCompleted  ItemStatus = "completed"  // 完成（终态）
	StatusFailed     ItemStatus = "failed"     // 失败（可重新提交）
)

// CanTransition 状态机规则：
// queued -> processing -> {completed | failed}
// failed -> processing（显式重新提交）
// completed 是终态，只能整条删除
func CanTransition(from, to ItemStatus) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing
	case StatusCompleted:
		return false
	default:
		return false
	}
}

// ValidateTransition 校验状态转换，非法时返回 ErrInvalidTransition
func ValidateTransition(from, to ItemStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Claimable 是否允许被 Worker 认领（queued 或 failed）
func Claimable(s ItemStatus) bool {
	return s == StatusQueued || s == StatusFailed
}

// IsTerminal 是否为终态
func IsTerminal(s ItemStatus) bool {
	return s == StatusCompleted || s == StatusFailed
}
