package playback

import (
	"context"
	"sort"

	"github.com/z-wentao/audioscribe/pkg/models"
	"github.com/z-wentao/audioscribe/pkg/storage"
)

// Transcript 播放客户端一次拉走的同步数据
type Transcript struct {
	Item     *models.AudioItem `json:"item"`
	Segments []models.Segment  `json:"segments"`
}

// Service 同步协议层：条目 + 片段的查询契约
// 片段可见性是全有或全无的，这里不需要额外读锁
type Service struct {
	store storage.Store
}

// New 创建同步服务
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// FetchTranscript 获取条目和它的全部片段
// 条目不存在返回 ErrNotFound；queued/processing/failed 返回空片段列表而不是错误
func (s *Service) FetchTranscript(ctx context.Context, id string) (*Transcript, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	segments, err := s.store.GetSegments(ctx, id)
	if err != nil {
		return nil, err
	}
	if segments == nil {
		segments = []models.Segment{}
	}

	return &Transcript{Item: item, Segments: segments}, nil
}

// LocateSegmentAt 定位播放位置所在的片段序号
// 播放器在每个 timeupdate 上调用它决定高亮哪一段：
//   - 命中 [start, end) 区间返回该片段
//   - 落在间隙里返回 start <= playhead 的最近一段
//   - 在第一段之前返回 ok=false
//
// 片段重叠时取序号较小的那段
func (s *Service) LocateSegmentAt(ctx context.Context, id string, playheadSeconds float64) (int, bool, error) {
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return 0, false, err
	}

	segments, err := s.store.GetSegments(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if len(segments) == 0 {
		return 0, false, nil
	}

	// start 随序号单调不减，二分找第一个 start > playhead 的片段
	i := sort.Search(len(segments), func(i int) bool {
		return segments[i].StartSeconds > playheadSeconds
	})
	if i == 0 {
		// 播放位置在第一段之前
		return 0, false, nil
	}

	idx := i - 1
	// 重叠时回退到序号最小的包含段
	// 嵌套重叠下中间可能隔着不包含播放位置的段，所以要一路扫到头
	for j := idx - 1; j >= 0; j-- {
		if segments[j].EndSeconds > playheadSeconds {
			idx = j
		}
	}

	return idx, true, nil
}

// SeekTargetForSegment 把点击的片段映射回播放偏移
func (s *Service) SeekTargetForSegment(ctx context.Context, id string, index int) (float64, error) {
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return 0, err
	}

	segments, err := s.store.GetSegments(ctx, id)
	if err != nil {
		return 0, err
	}

	if index < 0 || index >= len(segments) {
		return 0, models.ErrOutOfRange
	}

	return segments[index].StartSeconds, nil
}
