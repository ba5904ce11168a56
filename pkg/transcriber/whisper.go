package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// WhisperClient 本地 faster-whisper HTTP sidecar 客户端
// CPU 离线部署用：音频通过 multipart 发给 sidecar 的 /transcribe
type WhisperClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewWhisperClient 创建 sidecar 客户端
// 超时由调用方的 ctx 控制，这里不再叠加客户端级超时
func NewWhisperClient(baseURL string) *WhisperClient {
	return &WhisperClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// IsAvailable 检查 sidecar 是否可达
func (wc *WhisperClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wc.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := wc.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe 转换音频为带时间戳的片段
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %v", err)
	}
	defer file.Close()

	// 构造 multipart 表单
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("创建表单失败: %v", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("复制文件失败: %v", err)
	}

	if opts.ModelSize != "" {
		writer.WriteField("model", opts.ModelSize)
	}
	if opts.Language != "" {
		writer.WriteField("language", opts.Language)
	}
	if opts.Device != "" {
		writer.WriteField("device", opts.Device)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭表单失败: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := wc.httpClient.Do(req)
	if err != nil {
		// ctx 超时/取消原样外传，编排层据此区分 timeout
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("识别服务返回错误 (状态码 %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	// sidecar 不一定回传 duration，用最后一个片段的结束时间兜底
	if result.Duration == 0 && len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}

	return &result, nil
}
