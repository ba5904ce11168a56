package models

import (
	"fmt"
	"strings"
	"time"
)

// FailReason 失败原因（机器可读）
type FailReason string

const (
	ReasonRecognition     FailReason = "recognition_error"
	ReasonInvalidSegments FailReason = "invalid_segments"
	ReasonStorage         FailReason = "storage_error"
	ReasonTimeout         FailReason = "timeout"
)

// AudioItem 一条已上传音频的元数据和转录状态
// Language/ModelSize/Device 在创建时快照，之后修改配置不影响已有条目
type AudioItem struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	StorageRef  string     `json:"storage_ref"`
	Language    string     `json:"language"`
	ModelSize   string     `json:"model_size"`
	Device      string     `json:"device"`
	Status      ItemStatus `json:"status"`
	ErrorReason FailReason `json:"error_reason,omitempty"`
	Duration    float64    `json:"duration"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Segment 一条带时间戳的转录文本片段
type Segment struct {
	AudioItemID  string  `json:"-"`
	Index        int     `json:"index"`
	StartSeconds float64 `json:"start"`
	EndSeconds   float64 `json:"end"`
	Text         string  `json:"text"`
}

// SegmentDraft 待持久化的片段（还没有归属和序号）
type SegmentDraft struct {
	StartSeconds float64 `json:"start"`
	EndSeconds   float64 `json:"end"`
	Text         string  `json:"text"`
}

// ValidateDrafts 校验片段批次的时间不变量：
// 每条 0 <= start < end，且 start 随序号单调不减（允许轻微重叠）
func ValidateDrafts(drafts []SegmentDraft) error {
	prevStart := 0.0
	for i, d := range drafts {
		if d.StartSeconds < 0 {
			return fmt.Errorf("%w: segment %d has negative start %.3f", ErrValidation, i, d.StartSeconds)
		}
		if d.StartSeconds >= d.EndSeconds {
			return fmt.Errorf("%w: segment %d has start %.3f >= end %.3f", ErrValidation, i, d.StartSeconds, d.EndSeconds)
		}
		if d.StartSeconds < prevStart {
			return fmt.Errorf("%w: segment %d start %.3f precedes segment %d start %.3f", ErrValidation, i, d.StartSeconds, i-1, prevStart)
		}
		prevStart = d.StartSeconds
	}
	return nil
}

// BuildSegments 给校验过的草稿分配归属和序号
func BuildSegments(itemID string, drafts []SegmentDraft) []Segment {
	segments := make([]Segment, len(drafts))
	for i, d := range drafts {
		segments[i] = Segment{
			AudioItemID:  itemID,
			Index:        i,
			StartSeconds: d.StartSeconds,
			EndSeconds:   d.EndSeconds,
			Text:         strings.TrimSpace(d.Text),
		}
	}
	return segments
}
