package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/z-wentao/audioscribe/pkg/models"
	"github.com/z-wentao/audioscribe/pkg/playback"
	"github.com/z-wentao/audioscribe/pkg/queue"
)

// isValidAudioFormat 验证音频文件格式
// Whisper 支持的格式：mp3, mp4, mpeg, mpga, m4a, wav, webm, flac, aac
func isValidAudioFormat(ext string) bool {
	validFormats := map[string]bool{
		".mp3":  true,
		".mp4":  true, // 视频文件，Whisper 可以提取音频
		".mpeg": true,
		".mpga": true,
		".m4a":  true,
		".wav":  true,
		".webm": true,
		".flac": true,
		".aac":  true,
	}

	return validFormats[strings.ToLower(ext)]
}

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"version": "0.1.0",
	})
}

// handleUpload 处理文件上传：存文件 -> 建条目（queued）-> 入队
// 转录是异步的，客户端轮询条目状态
func (app *App) handleUpload(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传文件"})
		return
	}

	ext := filepath.Ext(file.Filename)
	if !isValidAudioFormat(ext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("不支持的文件格式 %s，支持: .mp3, .wav, .m4a, .mp4, .flac, .aac", ext),
		})
		return
	}

	if file.Size > app.config.Server.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("文件太大，最大 %.0f MB", float64(app.config.Server.MaxUploadSize)/1024/1024),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer src.Close()

	ref, err := app.files.Save(src, file.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败"})
		return
	}

	log.Printf("✓ 文件已保存: %s (%.2f MB)", ref, float64(file.Size)/1024/1024)

	// 创建条目，识别配置在此刻快照，之后改配置不影响这条
	now := time.Now()
	item := &models.AudioItem{
		ID:         uuid.New().String(),
		Filename:   file.Filename,
		StorageRef: ref,
		Language:   app.config.Whisper.Language,
		ModelSize:  app.config.Whisper.ModelSize,
		Device:     app.config.Whisper.Device,
		Status:     models.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := app.store.CreateItem(c.Request.Context(), item); err != nil {
		app.files.Delete(ref)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存条目失败"})
		return
	}

	if err := app.queue.Enqueue(&queue.Task{ItemID: item.ID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务加入队列失败"})
		return
	}

	log.Printf("✓ 转录任务已入队: %s", item.ID)

	c.JSON(http.StatusAccepted, gin.H{
		"id":       item.ID,
		"filename": item.Filename,
		"size":     file.Size,
		"status":   item.Status,
		"message":  "上传成功，正在排队转录...",
	})
}

// handleGetItem 获取条目状态（客户端轮询用）
func (app *App) handleGetItem(c *gin.Context) {
	item, err := app.store.GetItem(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// handleListItems 音频库列表（最新的排前面）
func (app *App) handleListItems(c *gin.Context) {
	items, err := app.store.ListItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

// handleRetry 重新提交转录
// 只允许 failed（或还在排队的 queued）重新入队；processing/completed 拒绝
func (app *App) handleRetry(c *gin.Context) {
	item, err := app.store.GetItem(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !models.Claimable(item.Status) {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("当前状态 %s 不允许重新提交", item.Status),
		})
		return
	}

	if err := app.queue.Enqueue(&queue.Task{ItemID: item.ID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务加入队列失败"})
		return
	}

	log.Printf("✓ 条目 %s 已重新入队", item.ID)

	c.JSON(http.StatusAccepted, gin.H{
		"id":      item.ID,
		"status":  item.Status,
		"message": "已重新提交转录",
	})
}

// handleDeleteItem 级联删除
// 片段 + 元数据在一个事务里删；文件删除在之后单独尝试，
// 失败只作为 warning 返回——文件丢了可以重新上传，元数据不一致没法恢复
func (app *App) handleDeleteItem(c *gin.Context) {
	ctx := c.Request.Context()

	item, err := app.store.GetItem(ctx, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := app.store.DeleteItem(ctx, item.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除条目失败"})
		return
	}

	resp := gin.H{"status": "deleted", "id": item.ID}
	if err := app.files.Delete(item.StorageRef); err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Printf("⚠️ 删除音频文件失败: %v", err)
		resp["warning"] = fmt.Sprintf("音频文件删除失败: %v", err)
	}

	log.Printf("✓ 条目已删除: %s", item.ID)
	c.JSON(http.StatusOK, resp)
}

// handleFetchTranscript 获取条目和全部片段
// 未完成时返回空片段列表，不报错
func (app *App) handleFetchTranscript(c *gin.Context) {
	transcript, err := app.playback.FetchTranscript(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transcript)
}

// handleLocateSegment 定位播放位置所在的片段
// GET /api/items/:id/locate?position=5.0
func (app *App) handleLocateSegment(c *gin.Context) {
	position, err := strconv.ParseFloat(c.Query("position"), 64)
	if err != nil || position < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position 参数必须是非负数字"})
		return
	}

	index, ok, err := app.playback.LocateSegmentAt(c.Request.Context(), c.Param("id"), position)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !ok {
		c.JSON(http.StatusOK, gin.H{"index": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index})
}

// handleSeekTarget 把片段序号映射回播放偏移
func (app *App) handleSeekTarget(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index 参数必须是整数"})
		return
	}

	start, err := app.playback.SeekTargetForSegment(c.Request.Context(), c.Param("id"), index)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if errors.Is(err, models.ErrOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "片段序号超出范围"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"index": index, "start": start})
}

// handleExport 导出字幕文件
// GET /api/items/:id/export?format=srt|vtt
func (app *App) handleExport(c *gin.Context) {
	ctx := c.Request.Context()

	item, err := app.store.GetItem(ctx, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "条目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if item.Status != models.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "转录尚未完成"})
		return
	}

	segments, err := app.store.GetSegments(ctx, item.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	base := strings.TrimSuffix(item.Filename, filepath.Ext(item.Filename))
	format := c.DefaultQuery("format", "srt")

	switch format {
	case "srt":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".srt"))
		c.Header("Content-Type", "application/x-subrip")
		playback.WriteSRT(c.Writer, segments)
	case "vtt":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".vtt"))
		c.Header("Content-Type", "text/vtt")
		playback.WriteVTT(c.Writer, segments)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format 只支持 srt 或 vtt"})
	}
}

// handleStreamAudio 把存储的音频流给播放器
func (app *App) handleStreamAudio(c *gin.Context) {
	path, err := app.files.Path(c.Param("ref"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
		return
	}

	c.File(path)
}
