package transcriber

import "context"

// Options 一次识别的配置快照（来自条目创建时的记录）
type Options struct {
	Language  string
	ModelSize string
	Device    string
}

// RawSegment 识别引擎返回的原始片段
// 在编排层立即归一化成强类型的 SegmentDraft，校验只发生在这一个边界上
type RawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result 识别结果
type Result struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []RawSegment `json:"segments"`
}

// Recognizer 语音识别协作方（黑盒能力）
// 调用可能持续几秒到几分钟，必须尊重 ctx 的超时和取消
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}
