package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hitoshi/mediawatch/internal/metrics"
	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/provider"
	"github.com/hitoshi/mediawatch/internal/repository"
	"github.com/hitoshi/mediawatch/internal/retry"
	"github.com/hitoshi/mediawatch/internal/security"
)

// ステージ名。ログとメトリクスのラベルに使用する。
const (
	StageRetrieval     = "retrieval"
	StageTranscription = "transcription"
	StageScoring       = "scoring"
)

// InstructionSource は学習済み却下パターンから得たスコアリング指示を返すインターフェース。
type InstructionSource interface {
	GetInstructions(ctx context.Context, userID string) ([]string, error)
}

// Pipeline は3ステージ（メディア取得→文字起こし→スコアリング）のエンリッチメント
// パイプライン。ステージ完了が次ステージへのエンキューを連鎖させる。
// スコアリングのエンキュー前にはセッション予算による許可判定を行う。
type Pipeline struct {
	retrieval     *StageQueue
	transcription *StageQueue
	scoring       *StageQueue
	budget        *SessionBudget

	itemRepo     repository.ItemRepository
	guard        security.SSRFGuardService
	mediaClient  *http.Client
	transcriber  provider.Transcriber
	scorer       provider.Scorer
	instructions InstructionSource

	mediaDir     string
	mediaMaxSize int64

	logger    *slog.Logger
	collector metrics.MetricsCollector

	retryOpts []retry.Option // テストで待機を差し替えるためのフック
}

// Options はPipeline構築時の設定。
type Options struct {
	RetrievalLimit   int
	TranscriptLimit  int
	ScoringLimit     int
	StageQueueSize   int
	StageTaskDelay   time.Duration
	ScoringTaskDelay time.Duration
	SessionBudgetCap int
	SessionBudgetTTL time.Duration
	MediaDir         string
	MediaMaxSize     int64
	MediaTimeout     time.Duration
}

// New はPipelineの新しいインスタンスを生成する。
// メディアダウンロードにはSSRF防止機能付きのHTTPクライアントを使用する。
func New(
	opts Options,
	itemRepo repository.ItemRepository,
	guard security.SSRFGuardService,
	transcriber provider.Transcriber,
	scorer provider.Scorer,
	instructions InstructionSource,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Pipeline {
	return &Pipeline{
		retrieval:     NewStageQueue(StageRetrieval, opts.StageQueueSize, opts.RetrievalLimit, opts.StageTaskDelay, logger, collector),
		transcription: NewStageQueue(StageTranscription, opts.StageQueueSize, opts.TranscriptLimit, opts.StageTaskDelay, logger, collector),
		scoring:       NewStageQueue(StageScoring, opts.StageQueueSize, opts.ScoringLimit, opts.ScoringTaskDelay, logger, collector),
		budget:        NewSessionBudget(opts.SessionBudgetCap, opts.SessionBudgetTTL),
		itemRepo:      itemRepo,
		guard:         guard,
		mediaClient:   guard.NewSafeClient(opts.MediaTimeout),
		transcriber:   transcriber,
		scorer:        scorer,
		instructions:  instructions,
		mediaDir:      opts.MediaDir,
		mediaMaxSize:  opts.MediaMaxSize,
		logger:        logger,
		collector:     collector,
	}
}

// Start は全ステージのディスパッチワーカーを起動する。
func (p *Pipeline) Start(ctx context.Context) {
	p.retrieval.Start(ctx)
	p.transcription.Start(ctx)
	p.scoring.Start(ctx)
}

// Wait は全ステージのワーカー停止を待つ。
func (p *Pipeline) Wait() {
	p.retrieval.Wait()
	p.transcription.Wait()
	p.scoring.Wait()
}

// StageStats は全ステージの観測用スナップショット。
type StageStats struct {
	Retrieval     Stats `json:"retrieval"`
	Transcription Stats `json:"transcription"`
	Scoring       Stats `json:"scoring"`
}

// Stats は全ステージの現在のキュー状態を返す。
func (p *Pipeline) Stats() StageStats {
	return StageStats{
		Retrieval:     p.retrieval.Stats(),
		Transcription: p.transcription.Stats(),
		Scoring:       p.scoring.Stats(),
	}
}

// EnqueueRetrieval はアイテムをメディア取得ステージにエンキューする。
// キューが満杯の場合はfalseを返す。
func (p *Pipeline) EnqueueRetrieval(item *model.Item, sessionKey string) bool {
	return p.retrieval.Add(item.ID, func(ctx context.Context) error {
		return p.runRetrieval(ctx, item, sessionKey)
	})
}

// runRetrieval はメディア取得ステージの本体。
// SSRF検証を通過したメディアURLをローカルディスクに保存し、
// 成功時に文字起こしステージへ連鎖する。
func (p *Pipeline) runRetrieval(ctx context.Context, item *model.Item, sessionKey string) error {
	if !model.CanTransitionDownload(item.DownloadStatus, model.DownloadStatusDownloading) {
		return fmt.Errorf("不正なメディア取得状態遷移です: %s -> %s", item.DownloadStatus, model.DownloadStatusDownloading)
	}
	if err := p.itemRepo.UpdateDownloadState(ctx, item.ID, model.DownloadStatusDownloading, "", ""); err != nil {
		return fmt.Errorf("メディア取得状態の更新に失敗しました: %w", err)
	}
	item.DownloadStatus = model.DownloadStatusDownloading

	localPath, err := p.downloadMedia(ctx, item)
	if err != nil {
		item.DownloadStatus = model.DownloadStatusFailed
		if updateErr := p.itemRepo.UpdateDownloadState(ctx, item.ID, model.DownloadStatusFailed, "", err.Error()); updateErr != nil {
			p.logger.Error("メディア取得失敗の記録に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", updateErr.Error()),
			)
		}
		return fmt.Errorf("メディアのダウンロードに失敗しました: %w", err)
	}

	if err := p.itemRepo.UpdateDownloadState(ctx, item.ID, model.DownloadStatusCompleted, localPath, ""); err != nil {
		return fmt.Errorf("メディア取得完了の記録に失敗しました: %w", err)
	}
	item.DownloadStatus = model.DownloadStatusCompleted
	item.LocalMediaPath = localPath

	if !p.enqueueTranscription(item, sessionKey) {
		p.logger.Warn("文字起こしキューが満杯のためエンキューをスキップします",
			slog.String("item_id", item.ID),
		)
	}
	return nil
}

// downloadMedia はメディアURLの内容をローカルディスクに保存し、保存先パスを返す。
func (p *Pipeline) downloadMedia(ctx context.Context, item *model.Item) (string, error) {
	if err := p.guard.ValidateURL(item.MediaURL); err != nil {
		return "", fmt.Errorf("メディアURLの検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.MediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("メディアリクエストの作成に失敗しました: %w", err)
	}

	resp, err := p.mediaClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newMediaError(resp.StatusCode)
	}
	if resp.ContentLength > p.mediaMaxSize {
		return "", fmt.Errorf("メディアサイズが上限を超えています: %d bytes", resp.ContentLength)
	}

	if err := os.MkdirAll(p.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("メディアディレクトリの作成に失敗しました: %w", err)
	}

	localPath := filepath.Join(p.mediaDir, item.ID+mediaExt(item.MediaURL))
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("メディアファイルの作成に失敗しました: %w", err)
	}
	defer file.Close()

	// ContentLength不明のレスポンスに備えて書き込み側でも上限を強制する
	written, err := io.Copy(file, io.LimitReader(resp.Body, p.mediaMaxSize+1))
	if err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("メディアの保存に失敗しました: %w", err)
	}
	if written > p.mediaMaxSize {
		os.Remove(localPath)
		return "", fmt.Errorf("メディアサイズが上限を超えています: %d bytes", written)
	}

	return localPath, nil
}

// enqueueTranscription はアイテムを文字起こしステージにエンキューする。
func (p *Pipeline) enqueueTranscription(item *model.Item, sessionKey string) bool {
	return p.transcription.Add(item.ID, func(ctx context.Context) error {
		return p.runTranscription(ctx, item, sessionKey)
	})
}

// runTranscription は文字起こしステージの本体。
// 文字起こしテキストが空でない場合のみスコアリングステージへ連鎖する。
func (p *Pipeline) runTranscription(ctx context.Context, item *model.Item, sessionKey string) error {
	if !model.CanTransitionTranscript(item.TranscriptStatus, model.TranscriptStatusProcessing) {
		return fmt.Errorf("不正な文字起こし状態遷移です: %s -> %s", item.TranscriptStatus, model.TranscriptStatusProcessing)
	}
	if err := p.itemRepo.UpdateTranscript(ctx, item.ID, model.TranscriptStatusProcessing, "", "", ""); err != nil {
		return fmt.Errorf("文字起こし状態の更新に失敗しました: %w", err)
	}
	item.TranscriptStatus = model.TranscriptStatusProcessing

	// 一時的な429/5xxで即座にアイテムを失敗させないようリトライで包む
	var result *provider.Transcription
	err := retry.Do(ctx, p.logger, "transcribe", func(ctx context.Context) error {
		r, trErr := p.transcriber.Transcribe(ctx, item.LocalMediaPath)
		if trErr != nil {
			return trErr
		}
		result = r
		return nil
	}, p.retryOpts...)
	if err != nil {
		item.TranscriptStatus = model.TranscriptStatusFailed
		if updateErr := p.itemRepo.UpdateTranscript(ctx, item.ID, model.TranscriptStatusFailed, "", "", err.Error()); updateErr != nil {
			p.logger.Error("文字起こし失敗の記録に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", updateErr.Error()),
			)
		}
		return fmt.Errorf("文字起こしに失敗しました: %w", err)
	}

	if err := p.itemRepo.UpdateTranscript(ctx, item.ID, model.TranscriptStatusCompleted, result.Text, result.Language, ""); err != nil {
		return fmt.Errorf("文字起こし完了の記録に失敗しました: %w", err)
	}
	item.TranscriptStatus = model.TranscriptStatusCompleted
	item.Transcript = result.Text
	item.TranscriptLang = result.Language

	if result.Text == "" {
		p.logger.Info("文字起こしテキストが空のためスコアリングをスキップします",
			slog.String("item_id", item.ID),
		)
		return nil
	}

	p.enqueueScoring(item, sessionKey)
	return nil
}

// enqueueScoring はスコアリングステージへのエンキューを試みる。
// エンキュー前にセッション予算の予約を行い、予算超過の場合はスキップする。
// スキップはエラーではなく、後続の実行でも再試行されない。
func (p *Pipeline) enqueueScoring(item *model.Item, sessionKey string) {
	if !p.budget.Reserve(sessionKey) {
		p.collector.RecordScoringSkip()
		p.logger.Info("セッション予算超過のためスコアリングをスキップします",
			slog.String("item_id", item.ID),
			slog.String("session_key", sessionKey),
		)
		return
	}

	if !p.scoring.Add(item.ID, func(ctx context.Context) error {
		return p.runScoring(ctx, item)
	}) {
		p.logger.Warn("スコアリングキューが満杯のためエンキューをスキップします",
			slog.String("item_id", item.ID),
		)
	}
}

// runScoring はスコアリングステージの本体。
// 学習済み却下パターンの指示をプロンプト条件として渡す。
func (p *Pipeline) runScoring(ctx context.Context, item *model.Item) error {
	instructions, err := p.instructions.GetInstructions(ctx, item.UserID)
	if err != nil {
		// 指示の取得失敗はスコアリング自体を妨げない
		p.logger.Warn("スコアリング指示の取得に失敗しました",
			slog.String("user_id", item.UserID),
			slog.String("error", err.Error()),
		)
		instructions = nil
	}

	var score *provider.Score
	err = retry.Do(ctx, p.logger, "score", func(ctx context.Context) error {
		s, scoreErr := p.scorer.Score(ctx, item.Transcript, provider.ScoreMetadata{
			Caption:      item.Caption,
			PlayCount:    item.PlayCount,
			LikeCount:    item.LikeCount,
			CommentCount: item.CommentCount,
			Instructions: instructions,
		})
		if scoreErr != nil {
			return scoreErr
		}
		score = s
		return nil
	}, p.retryOpts...)
	if err != nil {
		return fmt.Errorf("スコアリングに失敗しました: %w", err)
	}

	if err := p.itemRepo.UpdateScore(ctx, item.ID, score.Overall, score.Hook, score.Content, score.Trend, score.Comment); err != nil {
		return fmt.Errorf("スコアの記録に失敗しました: %w", err)
	}
	return nil
}

// newMediaError はメディア取得のHTTPエラーを生成する。
func newMediaError(statusCode int) error {
	return fmt.Errorf("メディアの取得がステータス%dで失敗しました", statusCode)
}

// mediaExt はメディアURLから保存ファイルの拡張子を決定する。
// 判定できない場合は動画の既定値に落とす。
func mediaExt(mediaURL string) string {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return ".mp4"
	}
	ext := path.Ext(parsed.Path)
	if ext == "" || len(ext) > 5 {
		return ".mp4"
	}
	return ext
}
