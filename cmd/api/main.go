// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/anshikanegi280/pdf-merger/internal/artifacts"
	"github.com/anshikanegi280/pdf-merger/internal/config"
	"github.com/anshikanegi280/pdf-merger/internal/files"
	"github.com/anshikanegi280/pdf-merger/internal/jobs"
	"github.com/anshikanegi280/pdf-merger/internal/pdf"
	"github.com/anshikanegi280/pdf-merger/internal/session"
	"github.com/anshikanegi280/pdf-merger/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションミドルウェア（オーナートークンの発行に使用）
	router.Use(session.Middleware(cfg.SessionSecret, cfg.GinMode == gin.ReleaseMode))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	corsConfig.ExposeHeaders = []string{"X-Job-Id"}
	router.Use(cors.New(corsConfig))

	app, err := buildApp(cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// ルーティングの設定
	setupRoutes(router, app)

	// ワーカーの起動
	app.manager.StartWorkers()

	// サーバーの起動
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// シグナル受信でグレースフルシャットダウン
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.manager.Shutdown(ctx); err != nil {
		log.Printf("Worker shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// app は初期化済みのサービス群をまとめます。
type app struct {
	cfg      *config.Config
	manager  *jobs.Manager
	registry *artifacts.Registry
	files    *files.Service
	blobs    *storage.Local
}

// buildApp は設定からサービス群を組み立てます。
func buildApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)

	blobs, err := storage.NewLocal(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	engine := pdf.NewService(cfg)
	jobStore := jobs.NewStore(redisClient)
	fileStore := files.NewRedisStore(redisClient)

	fileService := files.NewService(cfg, fileStore, blobs, engine, logger)
	registry := artifacts.NewRegistry(jobStore, blobs, logger)

	manager, err := jobs.NewManager(cfg, jobStore, engine, fileService, registry, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		manager:  manager,
		registry: registry,
		files:    fileService,
		blobs:    blobs,
	}, nil
}
