package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/audioscribe/pkg/models"
)

func newTestItem() *models.AudioItem {
	now := time.Now()
	return &models.AudioItem{
		ID:         uuid.New().String(),
		Filename:   "lecture.mp3",
		StorageRef: uuid.New().String() + ".mp3",
		Language:   "ja",
		ModelSize:  "base",
		Device:     "cpu",
		Status:     models.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()

	require.NoError(t, ms.CreateItem(ctx, item))

	got, err := ms.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.Filename, got.Filename)
	require.Equal(t, models.StatusQueued, got.Status)

	// 重复 ID 冲突
	require.ErrorIs(t, ms.CreateItem(ctx, item), models.ErrConflict)

	// 返回的是副本，外部修改不应穿透
	got.Filename = "mutated"
	again, err := ms.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "lecture.mp3", again.Filename)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	ms := NewMemoryStore()
	_, err := ms.GetItem(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	older := newTestItem()
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTestItem()

	require.NoError(t, ms.CreateItem(ctx, older))
	require.NoError(t, ms.CreateItem(ctx, newer))

	items, err := ms.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, newer.ID, items[0].ID)
	require.Equal(t, older.ID, items[1].ID)
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))

	// queued -> completed 非法
	_, err := ms.UpdateStatus(ctx, item.ID, models.StatusCompleted, "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := ms.UpdateStatus(ctx, item.ID, models.StatusProcessing, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)

	got, err = ms.UpdateStatus(ctx, item.ID, models.StatusFailed, models.ReasonRecognition)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, models.ReasonRecognition, got.ErrorReason)

	// 重新提交后失败原因清空
	got, err = ms.UpdateStatus(ctx, item.ID, models.StatusProcessing, "")
	require.NoError(t, err)
	require.Empty(t, got.ErrorReason)

	got, err = ms.UpdateStatus(ctx, item.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)

	// 终态不允许再变
	_, err = ms.UpdateStatus(ctx, item.ID, models.StatusProcessing, "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMemoryStore_ClaimExclusive(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))

	got, err := ms.Claim(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)

	// 已经在处理中，第二次认领必须失败
	_, err = ms.Claim(ctx, item.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	// failed 之后可以再次认领
	_, err = ms.UpdateStatus(ctx, item.ID, models.StatusFailed, models.ReasonTimeout)
	require.NoError(t, err)
	got, err = ms.Claim(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)
	require.Empty(t, got.ErrorReason)
}

func TestMemoryStore_ClaimConcurrent(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))

	// 并发认领只能有一个成功
	const n = 16
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ms.Claim(ctx, item.ID); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	require.Len(t, succeeded, 1)
}

func TestMemoryStore_ClaimNotFound(t *testing.T) {
	ms := NewMemoryStore()
	_, err := ms.Claim(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_ReplaceSegments(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))

	// 没有片段时返回空切片
	segments, err := ms.GetSegments(ctx, item.ID)
	require.NoError(t, err)
	require.Empty(t, segments)

	drafts := []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 4.5, Text: "hello"},
		{StartSeconds: 4.5, EndSeconds: 9.8, Text: "world"},
	}
	require.NoError(t, ms.ReplaceSegments(ctx, item.ID, drafts))

	segments, err = ms.GetSegments(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.Equal(t, 0, segments[0].Index)
	require.Equal(t, "hello", segments[0].Text)

	// 幂等：重跑覆盖而不是追加
	require.NoError(t, ms.ReplaceSegments(ctx, item.ID, drafts))
	segments, err = ms.GetSegments(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	// 非法批次被拒绝，旧集合不受影响
	bad := []models.SegmentDraft{
		{StartSeconds: 3.0, EndSeconds: 2.0, Text: "broken"},
	}
	require.ErrorIs(t, ms.ReplaceSegments(ctx, item.ID, bad), models.ErrValidation)
	segments, err = ms.GetSegments(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	// 条目不存在
	require.ErrorIs(t, ms.ReplaceSegments(ctx, "missing", drafts), models.ErrNotFound)
}

func TestMemoryStore_SetDuration(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))

	require.NoError(t, ms.SetDuration(ctx, item.ID, 9.8))
	got, err := ms.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 9.8, got.Duration)

	require.ErrorIs(t, ms.SetDuration(ctx, "missing", 1), models.ErrNotFound)
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	item := newTestItem()
	require.NoError(t, ms.CreateItem(ctx, item))
	require.NoError(t, ms.ReplaceSegments(ctx, item.ID, []models.SegmentDraft{
		{StartSeconds: 0, EndSeconds: 1, Text: "a"},
	}))

	require.NoError(t, ms.DeleteItem(ctx, item.ID))

	_, err := ms.GetItem(ctx, item.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	// 片段一起删掉了
	segments, err := ms.GetSegments(ctx, item.ID)
	require.NoError(t, err)
	require.Empty(t, segments)

	require.ErrorIs(t, ms.DeleteItem(ctx, item.ID), models.ErrNotFound)
}
