package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/z-wentao/audioscribe/pkg/filestore"
	"github.com/z-wentao/audioscribe/pkg/models"
	"github.com/z-wentao/audioscribe/pkg/queue"
	"github.com/z-wentao/audioscribe/pkg/storage"
	"github.com/z-wentao/audioscribe/pkg/transcriber"
)

// Options Worker 行为配置
type Options struct {
	// Concurrency 并发 Worker 数（不同条目可以并行处理）
	Concurrency int

	// Timeout 单次识别调用的超时，超时的条目转入 failed/timeout 而不是卡在 processing
	Timeout time.Duration

	// MinAudioSeconds 音频超过该时长却识别出 0 个片段时判定为 invalid_segments
	MinAudioSeconds float64

	// Prober 音频时长探测（可选，nil 时退化为只信识别结果的时长）
	Prober transcriber.Prober
}

// Worker 转录编排器
// 每次处理尝试：原子认领 -> 调识别引擎 -> 归一化校验 -> 原子落片段 -> 翻终态
// 任何失败路径都落到 failed + 原因，绝不把条目留在 processing
type Worker struct {
	queue      queue.Queue
	store      storage.Store
	files      filestore.FileStore
	recognizer transcriber.Recognizer
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker 创建编排器
func NewWorker(q queue.Queue, store storage.Store, files filestore.FileStore, rec transcriber.Recognizer, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		queue:      q,
		store:      store,
		files:      files,
		recognizer: rec,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动 Worker 池
func (w *Worker) Start() {
	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	log.Printf("✓ 已启动 %d 个转录 Worker", w.opts.Concurrency)
}

// Stop 停止所有 Worker 并等待退出
func (w *Worker) Stop() {
	log.Println("正在停止 Worker...")
	w.cancel()
	w.wg.Wait()
	log.Println("✓ Worker 已全部停止")
}

// run Worker 主循环
func (w *Worker) run(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue()
		if err != nil {
			// 队列关闭或暂时不可用
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		w.process(task)
	}
}

// process 执行一次处理尝试
func (w *Worker) process(task *queue.Task) {
	// 1. 原子认领：queued/failed -> processing，并发认领只会有一个成功
	item, err := w.store.Claim(w.ctx, task.ItemID)
	if errors.Is(err, models.ErrNotFound) {
		// 排队期间条目已被删除
		log.Printf("条目 %s 已不存在，丢弃任务", task.ItemID)
		w.queue.Ack(task)
		return
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		// 过期消息：已有别的尝试在跑，或已经完成
		log.Printf("条目 %s 状态不允许认领，丢弃任务", task.ItemID)
		w.queue.Ack(task)
		return
	}
	if err != nil {
		// 存储暂时不可用，留给下一次投递
		log.Printf("⚠️ 认领条目 %s 失败: %v", task.ItemID, err)
		w.queue.Nack(task, true)
		return
	}

	log.Printf("📝 开始转录: %s (%s)", item.ID, item.Filename)
	startTime := time.Now()

	// 2. 定位音频文件
	audioPath, err := w.files.Path(item.StorageRef)
	if err != nil {
		w.fail(item.ID, models.ReasonStorage, err)
		w.queue.Ack(task)
		return
	}

	// 先探测实际时长（零片段判定要用）
	duration := w.probeDuration(audioPath)

	// 3. 调识别引擎，超时受控
	cctx, cancel := context.WithTimeout(w.ctx, w.opts.Timeout)
	defer cancel()

	result, err := w.recognizer.Transcribe(cctx, audioPath, transcriber.Options{
		Language:  item.Language,
		ModelSize: item.ModelSize,
		Device:    item.Device,
	})
	if err != nil {
		reason := models.ReasonRecognition
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			reason = models.ReasonTimeout
		}
		w.fail(item.ID, reason, err)
		w.queue.Ack(task)
		return
	}

	if duration == 0 {
		duration = result.Duration
	}

	// 4. 归一化：按返回顺序编号，时间不变量交给 ReplaceSegments 统一校验
	drafts := normalize(result.Segments)

	// 有实际内容的音频识别出 0 个片段视为无效结果
	if len(drafts) == 0 && duration >= w.opts.MinAudioSeconds {
		w.fail(item.ID, models.ReasonInvalidSegments,
			errors.New("识别结果为空，但音频并非空白"))
		w.queue.Ack(task)
		return
	}

	// 5. 原子落片段，成功之后才翻 completed
	// 终态写入用独立上下文：关停取消 w.ctx 后写库也必须完成
	sctx, scancel := detachedStoreCtx()
	defer scancel()

	if err := w.store.ReplaceSegments(sctx, item.ID, drafts); err != nil {
		reason := models.ReasonStorage
		if errors.Is(err, models.ErrValidation) {
			reason = models.ReasonInvalidSegments
		}
		w.fail(item.ID, reason, err)
		w.queue.Ack(task)
		return
	}

	if err := w.store.SetDuration(sctx, item.ID, duration); err != nil {
		log.Printf("⚠️ 记录时长失败: %v", err)
	}

	if _, err := w.store.UpdateStatus(sctx, item.ID, models.StatusCompleted, ""); err != nil {
		// 片段已落库但状态没翻过去，下一次重新提交会覆盖重建
		w.fail(item.ID, models.ReasonStorage, err)
		w.queue.Ack(task)
		return
	}

	log.Printf("🎉 转录完成: %s | 片段数: %d | 耗时: %.1f 秒",
		item.ID, len(drafts), time.Since(startTime).Seconds())
	w.queue.Ack(task)
}

// fail 把条目转入 failed 终态并记录原因
// 不能用 w.ctx：关停打断的尝试也要落到终态，否则条目永远停在 processing
func (w *Worker) fail(itemID string, reason models.FailReason, cause error) {
	log.Printf("❌ 条目 %s 转录失败 (%s): %v", itemID, reason, cause)

	ctx, cancel := detachedStoreCtx()
	defer cancel()

	if _, err := w.store.UpdateStatus(ctx, itemID, models.StatusFailed, reason); err != nil {
		log.Printf("⚠️ 写入失败状态也失败了: %v", err)
	}
}

// detachedStoreCtx 终态落库用的上下文，不随 Worker 关停一起取消
func detachedStoreCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// probeDuration 探测音频时长，失败不阻断主流程
func (w *Worker) probeDuration(audioPath string) float64 {
	if w.opts.Prober == nil {
		return 0
	}

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	duration, err := w.opts.Prober.Duration(ctx, audioPath)
	if err != nil {
		log.Printf("⚠️ 探测音频时长失败: %v", err)
		return 0
	}
	return duration
}

// normalize 把识别引擎的原始输出归一化为片段草稿
// start 负值钳到 0（引擎偶尔会回传微小负偏移），文本去掉首尾空格
func normalize(raw []transcriber.RawSegment) []models.SegmentDraft {
	drafts := make([]models.SegmentDraft, 0, len(raw))
	for _, seg := range raw {
		start := seg.Start
		if start < 0 {
			start = 0
		}
		drafts = append(drafts, models.SegmentDraft{
			StartSeconds: start,
			EndSeconds:   seg.End,
			Text:         seg.Text,
		})
	}
	return drafts
}
