package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Sonara/config"
	"Sonara/core/audio"
	"Sonara/core/notify"
	"Sonara/db"
	"Sonara/logger"
	"Sonara/model"
	"Sonara/repository"
	"Sonara/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/sonara.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 流式响应可能持续很久，不限制写超时
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端（可选依赖，失败只告警）
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO初始化失败，HLS产物将只保留在本地磁盘", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.DB.Close()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("初始化数据库结构失败", logger.ErrorField(err))
	}

	// GORM 连接与自动迁移（任务记录和缓存产物表）
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("GORM连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.TranscodeJob{}, &model.CacheEntry{}); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Redis连接失败", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Redis连接成功")

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.OriginalDir)
	ensureDirExists(cfg.HLSDir)
	ensureDirExists(cfg.CacheDir)

	// 组装转码核心
	encoder := audio.NewFFmpegEncoder(cfg)
	notifier := notify.NewNotifier()
	trackRepo := repository.NewMySQLTrackRepository()
	jobRepo := repository.NewGormJobRepository(db.GormDB)
	entryRepo := repository.NewGormCacheEntryRepository(db.GormDB)
	pipeline := audio.NewHLSPipeline(encoder, cfg, notifier, entryRepo)
	transcoder := audio.NewCacheTranscoder(encoder, cfg, entryRepo)
	scheduler := audio.NewScheduler(cfg.MaxConcurrentTranscodes, jobRepo)

	apiHandler := NewAPIHandler(trackRepo, jobRepo, entryRepo, pipeline, transcoder, scheduler, notifier, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 曲目列表与上传移交
	router.HandleFunc("/api/tracks", apiHandler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.RegisterTrackHandler).Methods(http.MethodPost)

	// 流媒体相关的API端点
	router.HandleFunc("/api/stream/{track_id}", apiHandler.StreamHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/stream/{track_id}/quality", apiHandler.QualityHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stream/{track_id}/master.m3u8", apiHandler.MasterPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stream/{track_id}/{quality}/{file}", apiHandler.HLSFileHandler).Methods(http.MethodGet, http.MethodHead)

	// 转码任务相关的API端点
	router.HandleFunc("/api/transcode/job/{job_id}", apiHandler.JobStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcode/{track_id}", apiHandler.EnqueueTranscodeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/transcode/{track_id}/jobs", apiHandler.TrackJobsHandler).Methods(http.MethodGet)

	// 转码进度推送
	router.HandleFunc("/api/ws/notify", apiHandler.NotifyHandler).Methods(http.MethodGet)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP服务启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("优雅关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务已退出")
}

func ensureDirExists(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Fatal("创建目录失败", logger.String("dir", dir), logger.ErrorField(err))
	}
}
