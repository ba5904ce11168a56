package playback

import (
	"fmt"
	"io"
	"strings"

	"github.com/z-wentao/audioscribe/pkg/models"
)

// WriteSRT 把片段集合导出为 SRT 字幕
// 空文本的片段跳过，序号从 1 连续编号
func WriteSRT(w io.Writer, segments []models.Segment) error {
	var builder strings.Builder
	subtitleIndex := 1

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		// 1
		// 00:00:00,000 --> 00:00:05,200
		// 字幕文本
		//
		builder.WriteString(fmt.Sprintf("%d\n", subtitleIndex))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(seg.StartSeconds), formatSRTTime(seg.EndSeconds)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))

		subtitleIndex++
	}

	_, err := io.WriteString(w, builder.String())
	return err
}

// WriteVTT 把片段集合导出为 WebVTT 字幕（HTML5 播放器可直接挂载）
func WriteVTT(w io.Writer, segments []models.Segment) error {
	var builder strings.Builder

	// VTT 文件必须以 "WEBVTT" 开头
	builder.WriteString("WEBVTT\n\n")

	subtitleIndex := 1
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		builder.WriteString(fmt.Sprintf("%d\n", subtitleIndex))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatVTTTime(seg.StartSeconds), formatVTTTime(seg.EndSeconds)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))

		subtitleIndex++
	}

	_, err := io.WriteString(w, builder.String())
	return err
}

// formatSRTTime 秒数 -> SRT 时间格式
// 例如: 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// formatVTTTime 秒数 -> WebVTT 时间格式（毫秒用点号分隔）
func formatVTTTime(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
