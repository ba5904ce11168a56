package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/z-wentao/audioscribe/pkg/config"
	"github.com/z-wentao/audioscribe/pkg/filestore"
	"github.com/z-wentao/audioscribe/pkg/playback"
	"github.com/z-wentao/audioscribe/pkg/queue"
	"github.com/z-wentao/audioscribe/pkg/storage"
	"github.com/z-wentao/audioscribe/pkg/transcriber"
	"github.com/z-wentao/audioscribe/pkg/worker"
)

// App 应用上下文（依赖注入）
type App struct {
	config   *config.Config
	store    storage.Store
	files    filestore.FileStore
	queue    queue.Queue
	worker   *worker.Worker
	playback *playback.Service
}

func main() {
	// 1. 加载配置
	configPath := os.Getenv("AUDIOSCRIBE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Println("✓ 配置加载成功")

	app := &App{config: cfg}

	// 2. 初始化文件存储
	files, err := filestore.NewLocalStore(cfg.Server.UploadDir)
	if err != nil {
		log.Fatalf("❌ 初始化文件存储失败: %v", err)
	}
	app.files = files

	// 3. 初始化条目/片段存储（根据配置选择类型）
	switch cfg.Storage.Type {
	case "memory":
		app.store = storage.NewMemoryStore()
		log.Println("✓ 使用内存存储")
	case "postgres":
		pg, err := storage.NewPostgresStore(cfg.Storage.Postgres)
		if err != nil {
			log.Fatalf("❌ 初始化 PostgreSQL 存储失败: %v", err)
		}
		app.store = pg
		log.Println("✓ 使用 PostgreSQL 存储")
	default:
		log.Fatalf("❌ 不支持的存储类型: %s", cfg.Storage.Type)
	}

	// 3.1 可选的 Redis 读缓存
	if cfg.Storage.Redis.Enabled {
		cached, err := storage.NewCachedStore(
			app.store,
			cfg.Storage.Redis.Addr,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			time.Duration(cfg.Storage.Redis.TTLMinutes)*time.Minute,
		)
		if err != nil {
			log.Fatalf("❌ 初始化 Redis 缓存失败: %v", err)
		}
		app.store = cached
		log.Println("✓ Redis 读缓存已启用")
	}

	// 4. 初始化队列
	switch cfg.Queue.Type {
	case "memory":
		app.queue = queue.NewMemoryQueue(cfg.Queue.BufferSize)
		log.Println("✓ 使用内存队列")
	case "rabbitmq":
		rq, err := queue.NewRabbitMQQueue(cfg.Queue.RabbitMQ.URL, cfg.Queue.RabbitMQ.QueueName, cfg.Queue.RabbitMQ.Prefetch)
		if err != nil {
			log.Fatalf("❌ 初始化 RabbitMQ 队列失败: %v", err)
		}
		app.queue = rq
	default:
		log.Fatalf("❌ 不支持的队列类型: %s", cfg.Queue.Type)
	}

	// 5. 初始化识别引擎
	var recognizer transcriber.Recognizer
	switch cfg.Whisper.Provider {
	case "sidecar":
		recognizer = transcriber.NewWhisperClient(cfg.Whisper.SidecarURL)
		log.Printf("✓ 使用本地 whisper sidecar: %s", cfg.Whisper.SidecarURL)
	case "openai":
		recognizer = transcriber.NewOpenAIClient(cfg.Whisper.APIKey)
		log.Println("✓ 使用 OpenAI Whisper API")
	default:
		log.Fatalf("❌ 不支持的识别引擎: %s", cfg.Whisper.Provider)
	}

	// 6. 启动转录编排 Worker
	app.worker = worker.NewWorker(app.queue, app.store, app.files, recognizer, worker.Options{
		Concurrency:     cfg.Queue.Workers,
		Timeout:         time.Duration(cfg.Whisper.TimeoutSeconds) * time.Second,
		MinAudioSeconds: cfg.Whisper.MinAudioSeconds,
		Prober:          transcriber.FFProbe{},
	})
	app.worker.Start()

	// 7. 同步查询服务
	app.playback = playback.New(app.store)

	// 8. 启动 HTTP 服务器
	router := app.setupRouter()
	port := fmt.Sprintf(":%d", cfg.Server.Port)

	log.Printf("🚀 audioscribe 服务器启动在 http://localhost:%d", cfg.Server.Port)
	log.Printf("📝 配置信息:")
	log.Printf("   - 识别引擎: %s (model=%s, lang=%s, device=%s)",
		cfg.Whisper.Provider, cfg.Whisper.ModelSize, cfg.Whisper.Language, cfg.Whisper.Device)
	log.Printf("   - 并发 Worker: %d", cfg.Queue.Workers)
	log.Printf("   - 存储类型: %s", cfg.Storage.Type)
	log.Printf("   - 队列类型: %s", cfg.Queue.Type)

	go func() {
		if err := router.Run(port); err != nil {
			log.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 先关队列让阻塞在 Dequeue 的 Worker 退出，再等它们收尾
	log.Println("🛑 正在关闭服务器...")
	app.queue.Close()
	app.worker.Stop()
	app.store.Close()
	log.Println("✓ 服务器已关闭")
}

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.Default()

	// 播放页面和音频流
	r.StaticFile("/", "./web/index.html")
	r.GET("/audio/:ref", app.handleStreamAudio)

	// API 路由
	api := r.Group("/api")
	{
		api.GET("/ping", app.handlePing)
		api.POST("/upload", app.handleUpload)
		api.GET("/items", app.handleListItems)
		api.GET("/items/:id", app.handleGetItem)
		api.POST("/items/:id/retry", app.handleRetry)
		api.DELETE("/items/:id", app.handleDeleteItem)
		api.GET("/items/:id/transcript", app.handleFetchTranscript)
		api.GET("/items/:id/locate", app.handleLocateSegment)
		api.GET("/items/:id/segments/:index/seek", app.handleSeekTarget)
		api.GET("/items/:id/export", app.handleExport)
	}

	return r
}
