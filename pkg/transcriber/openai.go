package transcriber

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI Whisper API 客户端
// 托管服务只有 whisper-1 一个模型，ModelSize/Device 快照对它不生效
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient 创建 OpenAI 客户端
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}
}

// Transcribe 调用转录接口，verbose_json 格式带时间戳片段
func (oc *OpenAIClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	resp, err := oc.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Language: opts.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("调用 OpenAI API 失败: %w", err)
	}

	segments := make([]RawSegment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = RawSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}

	return &Result{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: segments,
	}, nil
}
