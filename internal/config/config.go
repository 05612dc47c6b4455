package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scan（ソース監視）
	ScanInterval      time.Duration // スケジューラのティック間隔
	ScanMaxConcurrent int           // 同時チェックの上限
	LightCheckLimit   int           // ライトチェックで取得する最新アイテム数
	DefaultIntervalH  int           // ソースのデフォルトチェック間隔（時間）

	// Pipeline（段階別処理キュー）
	RetrievalLimit   int           // メディア取得の同時実行上限
	TranscriptLimit  int           // 文字起こしの同時実行上限
	ScoringLimit     int           // スコアリングの同時実行上限
	StageTaskDelay   time.Duration // ステージ共通のタスク間ディレイ
	ScoringTaskDelay time.Duration // スコアリングのタスク間ディレイ（コスト配慮で長め）
	StageQueueSize   int           // 各ステージのキュー容量

	// Session Budget（スコアリング予算）
	SessionBudgetCap int           // セッションあたりのスコアリング上限回数
	SessionBudgetTTL time.Duration // セッションエントリの有効期限

	// Providers
	ScrapeAPIURL      string
	ScrapeAPIProvider string // 資格情報検索に使用するプロバイダ名
	TranscribeAPIURL  string
	TranscribeAPIKey  string
	ScoreAPIURL       string
	ScoreAPIKey       string
	ScoreModel        string
	ProviderTimeout   time.Duration

	// Media
	MediaDir           string
	MediaMaxSize       int64
	MediaRetentionDays int

	// Rate Limit（check nowエンドポイント）
	CheckNowRatePerMin int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ScanInterval = getEnvDuration("SCAN_INTERVAL", time.Hour)
	cfg.ScanMaxConcurrent = getEnvInt("SCAN_MAX_CONCURRENT", 2)
	cfg.LightCheckLimit = getEnvInt("LIGHT_CHECK_LIMIT", 20)
	cfg.DefaultIntervalH = getEnvInt("DEFAULT_CHECK_INTERVAL_HOURS", 6)

	cfg.RetrievalLimit = getEnvInt("RETRIEVAL_LIMIT", 2)
	cfg.TranscriptLimit = getEnvInt("TRANSCRIPT_LIMIT", 1)
	cfg.ScoringLimit = getEnvInt("SCORING_LIMIT", 1)
	cfg.StageTaskDelay = getEnvDuration("STAGE_TASK_DELAY", 2*time.Second)
	cfg.ScoringTaskDelay = getEnvDuration("SCORING_TASK_DELAY", 4*time.Second)
	cfg.StageQueueSize = getEnvInt("STAGE_QUEUE_SIZE", 256)

	cfg.SessionBudgetCap = getEnvInt("SESSION_BUDGET_CAP", 10)
	cfg.SessionBudgetTTL = getEnvDuration("SESSION_BUDGET_TTL", 10*time.Minute)

	cfg.ScrapeAPIURL = getEnvString("SCRAPE_API_URL", "https://api.scrapeprovider.example/v1")
	cfg.ScrapeAPIProvider = getEnvString("SCRAPE_API_PROVIDER", "scrapeprovider")
	cfg.TranscribeAPIURL = getEnvString("TRANSCRIBE_API_URL", "https://api.openai.com/v1/audio/transcriptions")
	cfg.TranscribeAPIKey = getEnvString("TRANSCRIBE_API_KEY", "")
	cfg.ScoreAPIURL = getEnvString("SCORE_API_URL", "https://api.openai.com/v1/chat/completions")
	cfg.ScoreAPIKey = getEnvString("SCORE_API_KEY", "")
	cfg.ScoreModel = getEnvString("SCORE_MODEL", "gpt-4o-mini")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second)

	cfg.MediaDir = getEnvString("MEDIA_DIR", "/var/lib/mediawatch/media")
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 104857600) // 100MB
	cfg.MediaRetentionDays = getEnvInt("MEDIA_RETENTION_DAYS", 30)

	cfg.CheckNowRatePerMin = getEnvInt("CHECK_NOW_RATE_PER_MIN", 6)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
