package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/z-wentao/audioscribe/pkg/models"
	"github.com/z-wentao/audioscribe/pkg/storage"
)

// seedItem 建一个 completed 条目并落入给定片段
func seedItem(t *testing.T, store *storage.MemoryStore, drafts []models.SegmentDraft) string {
	t.Helper()
	ctx := context.Background()

	now := time.Now()
	item := &models.AudioItem{
		ID:         "item-1",
		Filename:   "clip.mp3",
		StorageRef: "ref.mp3",
		Status:     models.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.CreateItem(ctx, item))

	_, err := store.Claim(ctx, item.ID)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceSegments(ctx, item.ID, drafts))
	_, err = store.UpdateStatus(ctx, item.ID, models.StatusCompleted, "")
	require.NoError(t, err)

	return item.ID
}

func TestFetchTranscript(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 4.5, Text: "hello"},
		{StartSeconds: 4.5, EndSeconds: 9.8, Text: "world"},
	})

	tr, err := svc.FetchTranscript(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, tr.Item.Status)
	require.Len(t, tr.Segments, 2)
	require.Equal(t, "hello", tr.Segments[0].Text)
}

func TestFetchTranscript_PendingItemEmptySegments(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	item := &models.AudioItem{ID: "pending", Status: models.StatusQueued}
	require.NoError(t, store.CreateItem(ctx, item))

	// 还在排队的条目：空列表，不是错误
	tr, err := svc.FetchTranscript(ctx, "pending")
	require.NoError(t, err)
	require.NotNil(t, tr.Segments)
	require.Empty(t, tr.Segments)
}

func TestFetchTranscript_NotFound(t *testing.T) {
	svc := New(storage.NewMemoryStore())

	_, err := svc.FetchTranscript(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocateSegmentAt(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	// 第二三段之间留一个 1 秒的间隙
	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 1.0, EndSeconds: 4.5, Text: "a"},
		{StartSeconds: 4.5, EndSeconds: 9.8, Text: "b"},
		{StartSeconds: 10.8, EndSeconds: 15.0, Text: "c"},
	})

	tests := []struct {
		name     string
		playhead float64
		wantIdx  int
		wantOK   bool
	}{
		{"第一段之前", 0.5, 0, false},
		{"恰好在第一段起点", 1.0, 0, true},
		{"第一段中间", 3.0, 0, true},
		{"边界归属后一段", 4.5, 1, true},
		{"第二段中间", 5.0, 1, true},
		{"间隙里取最近的前一段", 10.0, 1, true},
		{"最后一段之后", 99.0, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok, err := svc.LocateSegmentAt(ctx, id, tt.playhead)
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.wantIdx, idx)
			}
		})
	}
}

func TestLocateSegmentAt_Monotonic(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 4.5, Text: "a"},
		{StartSeconds: 4.5, EndSeconds: 9.8, Text: "b"},
		{StartSeconds: 9.8, EndSeconds: 15.0, Text: "c"},
	})

	// 播放位置前进时高亮序号不能回退
	prev := -1
	for playhead := 0.0; playhead <= 16.0; playhead += 0.25 {
		idx, ok, err := svc.LocateSegmentAt(ctx, id, playhead)
		require.NoError(t, err)
		if !ok {
			continue
		}
		require.GreaterOrEqual(t, idx, prev, "playhead=%.2f", playhead)
		prev = idx
	}
}

func TestLocateSegmentAt_OverlapPrefersEarlier(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	// 第二段和第一段重叠
	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 6.0, Text: "a"},
		{StartSeconds: 4.0, EndSeconds: 9.0, Text: "b"},
	})

	idx, ok, err := svc.LocateSegmentAt(ctx, id, 5.0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, idx)
}

func TestLocateSegmentAt_NestedOverlapPrefersEarlier(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	// 第一段横跨全程，中间隔着一个不包含播放位置的短段
	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 100.0, Text: "a"},
		{StartSeconds: 5.0, EndSeconds: 6.0, Text: "b"},
		{StartSeconds: 7.0, EndSeconds: 8.0, Text: "c"},
	})

	// 7.5 同时落在第一段和第三段里，取序号最小的
	idx, ok, err := svc.LocateSegmentAt(ctx, id, 7.5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	// 6.5 只落在第一段里
	idx, ok, err = svc.LocateSegmentAt(ctx, id, 6.5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, idx)
}

func TestLocateSegmentAt_NoSegments(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	item := &models.AudioItem{ID: "empty", Status: models.StatusQueued}
	require.NoError(t, store.CreateItem(ctx, item))

	_, ok, err := svc.LocateSegmentAt(ctx, "empty", 3.0)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = svc.LocateSegmentAt(ctx, "missing", 3.0)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSeekTargetForSegment(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store)
	ctx := context.Background()

	id := seedItem(t, store, []models.SegmentDraft{
		{StartSeconds: 0.0, EndSeconds: 4.5, Text: "hello"},
		{StartSeconds: 4.5, EndSeconds: 9.8, Text: "world"},
	})

	target, err := svc.SeekTargetForSegment(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, 4.5, target)

	// 跳转后再定位应回到同一段
	idx, ok, err := svc.LocateSegmentAt(ctx, id, target)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, err = svc.SeekTargetForSegment(ctx, id, -1)
	require.ErrorIs(t, err, models.ErrOutOfRange)
	_, err = svc.SeekTargetForSegment(ctx, id, 2)
	require.ErrorIs(t, err, models.ErrOutOfRange)

	_, err = svc.SeekTargetForSegment(ctx, "missing", 0)
	require.ErrorIs(t, err, models.ErrNotFound)
}
