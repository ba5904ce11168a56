package storage

import (
	"context"

	"github.com/z-wentao/audioscribe/pkg/models"
)

// Store 音频库存储接口：条目元数据 + 片段集合
// 状态一致性由调用方保证，Store 只负责原子性
type Store interface {
	// CreateItem 保存新条目（ID 重复返回 ErrConflict）
	CreateItem(ctx context.Context, item *models.AudioItem) error

	// GetItem 获取条目（不存在返回 ErrNotFound）
	GetItem(ctx context.Context, id string) (*models.AudioItem, error)

	// ListItems 按创建时间倒序列出条目
	ListItems(ctx context.Context) ([]*models.AudioItem, error)

	// UpdateStatus 按状态机规则更新状态（非法转换返回 ErrInvalidTransition）
	// reason 只在转入 failed 时记录，其余情况清空
	UpdateStatus(ctx context.Context, id string, status models.ItemStatus, reason models.FailReason) (*models.AudioItem, error)

	// Claim 原子认领：仅当前状态为 queued 或 failed 时写入 processing
	// 这是唯一的条件写，串行化并发处理尝试
	Claim(ctx context.Context, id string) (*models.AudioItem, error)

	// SetDuration 记录音频时长（秒）
	SetDuration(ctx context.Context, id string, seconds float64) error

	// ReplaceSegments 校验并原子替换条目的全部片段
	// 重试覆盖而不是追加，读方看不到中间状态
	ReplaceSegments(ctx context.Context, id string, drafts []models.SegmentDraft) error

	// GetSegments 按序号升序返回片段，没有则返回空切片
	GetSegments(ctx context.Context, id string) ([]models.Segment, error)

	// DeleteItem 在一个事务里删除条目和它的全部片段
	// 文件删除由调用方在之后处理
	DeleteItem(ctx context.Context, id string) error

	// Close 关闭存储连接
	Close() error
}
