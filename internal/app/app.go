// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mediawatch/internal/config"
	"github.com/hitoshi/mediawatch/internal/database"
	"github.com/hitoshi/mediawatch/internal/feedback"
	"github.com/hitoshi/mediawatch/internal/handler"
	"github.com/hitoshi/mediawatch/internal/ingest"
	"github.com/hitoshi/mediawatch/internal/logger"
	"github.com/hitoshi/mediawatch/internal/metrics"
	"github.com/hitoshi/mediawatch/internal/middleware"
	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/pipeline"
	"github.com/hitoshi/mediawatch/internal/provider"
	"github.com/hitoshi/mediawatch/internal/registry"
	"github.com/hitoshi/mediawatch/internal/repository"
	"github.com/hitoshi/mediawatch/internal/security"
	"github.com/hitoshi/mediawatch/internal/worker/cleanup"
	"github.com/hitoshi/mediawatch/internal/worker/scan"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はワイヤリング済みのバックグラウンドコンポーネント群。
type components struct {
	itemRepo repository.ItemRepository

	registrySvc *registry.Service
	feedbackSvc *feedback.Service
	pipeline    *pipeline.Pipeline
	checker     *scan.Checker
	scheduler   *scan.Scheduler
	cleanupJob  *cleanup.CleanupJob

	promRegistry *prometheus.Registry
}

// wire はDB接続から全コンポーネントを構築する。
func wire(cfg *config.Config, db *sql.DB) *components {
	log := slog.Default()

	// リポジトリ
	sourceRepo := repository.NewPostgresSourceRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	policyRepo := repository.NewPostgresPolicyRepo(db)

	// セキュリティサービス
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewCaptionSanitizer()

	// メトリクス
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// プロバイダ
	scrapeClient := provider.NewScrapeClient(cfg.ScrapeAPIURL, cfg.ProviderTimeout, log)
	feedClient := provider.NewFeedClient(cfg.ProviderTimeout, log)
	transcriber := provider.NewTranscribeClient(cfg.TranscribeAPIURL, cfg.TranscribeAPIKey, cfg.ProviderTimeout, log)
	scorer := provider.NewScoreClient(cfg.ScoreAPIURL, cfg.ScoreAPIKey, cfg.ScoreModel, cfg.ProviderTimeout, log)
	credStore := provider.NewEnvCredentialStore()

	// フィードバックループ
	feedbackSvc := feedback.NewService(policyRepo, log)

	// パイプライン
	pipe := pipeline.New(
		pipeline.Options{
			RetrievalLimit:   cfg.RetrievalLimit,
			TranscriptLimit:  cfg.TranscriptLimit,
			ScoringLimit:     cfg.ScoringLimit,
			StageQueueSize:   cfg.StageQueueSize,
			StageTaskDelay:   cfg.StageTaskDelay,
			ScoringTaskDelay: cfg.ScoringTaskDelay,
			SessionBudgetCap: cfg.SessionBudgetCap,
			SessionBudgetTTL: cfg.SessionBudgetTTL,
			MediaDir:         cfg.MediaDir,
			MediaMaxSize:     cfg.MediaMaxSize,
			MediaTimeout:     cfg.ProviderTimeout,
		},
		itemRepo, ssrfGuard, transcriber, scorer, feedbackSvc, log, collector,
	)

	// 取り込みとチェック
	ingestor := ingest.NewIngestor(ingest.SQLTxBeginner{DB: db}, itemRepo, sourceRepo, sanitizer, pipe, log)
	checker := scan.NewChecker(
		sourceRepo,
		map[model.SourceKind]provider.Fetcher{
			model.SourceKindAccount: scrapeClient,
			model.SourceKindFeed:    feedClient,
		},
		credStore, ingestor, log, collector,
		cfg.ScrapeAPIProvider, cfg.LightCheckLimit, cfg.DefaultIntervalH,
	)
	scheduler := scan.NewScheduler(sourceRepo, checker, log, cfg.ScanMaxConcurrent)

	// クリーンアップ
	cleanupJob := cleanup.NewCleanupJob(itemRepo, log)
	cleanupJob.RetentionDays = cfg.MediaRetentionDays

	// ソース登録
	registrySvc := registry.NewService(sourceRepo, log, cfg.DefaultIntervalH)

	return &components{
		itemRepo:     itemRepo,
		registrySvc:  registrySvc,
		feedbackSvc:  feedbackSvc,
		pipeline:     pipe,
		checker:      checker,
		scheduler:    scheduler,
		cleanupJob:   cleanupJob,
		promRegistry: promRegistry,
	}
}

// runCleanupLoop はクリーンアップジョブを起動直後に1回、以後は日次で実行する。
func runCleanupLoop(ctx context.Context, job *cleanup.CleanupJob) {
	if err := job.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、バックグラウンド処理と
// HTTPサーバーを起動する。SIGINTまたはSIGTERMシグナルを受信すると
// グレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	c := wire(cfg, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.pipeline.Start(ctx)
	go c.scheduler.Start(ctx, cfg.ScanInterval)
	go runCleanupLoop(ctx, c.cleanupJob)

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.CheckNowRatePerMin))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          slog.Default(),
		RateLimiter:     rateLimiter,
		SourceService:   c.registrySvc,
		Checker:         c.checker,
		FeedbackService: c.feedbackSvc,
		ItemRepo:        c.itemRepo,
		PipelineStats:   c.pipeline,
		MetricsGatherer: c.promRegistry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// バックグラウンド処理を停止
	cancel()
	c.pipeline.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモード（APIサーバーなし）で起動する。
// DB接続を開き、スキャンスケジューラとパイプラインを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	c := wire(cfg, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("scan_interval", cfg.ScanInterval),
		slog.Int("max_concurrent", cfg.ScanMaxConcurrent),
	)

	c.pipeline.Start(ctx)
	go runCleanupLoop(ctx, c.cleanupJob)

	// スキャンスケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(ctx, cfg.ScanInterval)

	c.pipeline.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
