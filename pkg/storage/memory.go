package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/z-wentao/audioscribe/pkg/models"
)

// MemoryStore 内存实现（单进程部署和测试用）
// 使用 RWMutex 保证并发安全，Claim 在同一把锁下完成检查和写入
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]*models.AudioItem
	segments map[string][]models.Segment
	now      func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]*models.AudioItem),
		segments: make(map[string][]models.Segment),
		now:      time.Now,
	}
}

func (ms *MemoryStore) CreateItem(ctx context.Context, item *models.AudioItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.items[item.ID]; exists {
		return models.ErrConflict
	}

	// 存副本，防止外部修改穿透到存储
	cp := *item
	ms.items[item.ID] = &cp
	return nil
}

func (ms *MemoryStore) GetItem(ctx context.Context, id string) (*models.AudioItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, exists := ms.items[id]
	if !exists {
		return nil, models.ErrNotFound
	}

	cp := *item
	return &cp, nil
}

func (ms *MemoryStore) ListItems(ctx context.Context) ([]*models.AudioItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	items := make([]*models.AudioItem, 0, len(ms.items))
	for _, item := range ms.items {
		cp := *item
		items = append(items, &cp)
	}

	// 最新的排前面
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

func (ms *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, reason models.FailReason) (*models.AudioItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[id]
	if !exists {
		return nil, models.ErrNotFound
	}

	if err := models.ValidateTransition(item.Status, status); err != nil {
		return nil, err
	}

	item.Status = status
	item.UpdatedAt = ms.now()
	if status == models.StatusFailed {
		item.ErrorReason = reason
	} else {
		item.ErrorReason = ""
	}

	cp := *item
	return &cp, nil
}

// Claim 认领条目：检查和写入在同一临界区内完成
func (ms *MemoryStore) Claim(ctx context.Context, id string) (*models.AudioItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[id]
	if !exists {
		return nil, models.ErrNotFound
	}

	if !models.Claimable(item.Status) {
		return nil, models.ValidateTransition(item.Status, models.StatusProcessing)
	}

	item.Status = models.StatusProcessing
	item.ErrorReason = ""
	item.UpdatedAt = ms.now()

	cp := *item
	return &cp, nil
}

func (ms *MemoryStore) SetDuration(ctx context.Context, id string, seconds float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[id]
	if !exists {
		return models.ErrNotFound
	}

	item.Duration = seconds
	item.UpdatedAt = ms.now()
	return nil
}

// ReplaceSegments 整批替换：单次 map 赋值，读方要么看到旧集合要么看到新集合
func (ms *MemoryStore) ReplaceSegments(ctx context.Context, id string, drafts []models.SegmentDraft) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := models.ValidateDrafts(drafts); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.items[id]; !exists {
		return models.ErrNotFound
	}

	ms.segments[id] = models.BuildSegments(id, drafts)
	return nil
}

func (ms *MemoryStore) GetSegments(ctx context.Context, id string) ([]models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	segments := make([]models.Segment, len(ms.segments[id]))
	copy(segments, ms.segments[id])
	return segments, nil
}

func (ms *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.items[id]; !exists {
		return models.ErrNotFound
	}

	delete(ms.items, id)
	delete(ms.segments, id)
	return nil
}

// Close 内存存储无需关闭
func (ms *MemoryStore) Close() error {
	return nil
}
