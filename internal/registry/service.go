// Package registry は監視ソースの登録と監視設定の管理を提供する。
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

// Service は監視ソースの登録・設定変更サービス。
type Service struct {
	sourceRepo      repository.SourceRepository
	logger          *slog.Logger
	defaultInterval int // 未指定時のチェック間隔（時間）
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(sourceRepo repository.SourceRepository, logger *slog.Logger, defaultInterval int) *Service {
	return &Service{
		sourceRepo:      sourceRepo,
		logger:          logger,
		defaultInterval: defaultInterval,
	}
}

// RegisterInput はソース登録の入力。
type RegisterInput struct {
	UserID             string
	Handle             string
	Kind               model.SourceKind
	CheckIntervalHours int
	ViralThreshold     float64
	NotifyOnNew        bool
	NotifyViralOnly    bool
}

// Register は新しい監視ソースを登録する。
// next_check_atは未設定のまま作成され、次回のスキャンサイクルで即時チェックされる。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Source, error) {
	if input.Handle == "" {
		return nil, model.NewInvalidSourceError("ハンドルが指定されていません")
	}
	if input.Kind != model.SourceKindAccount && input.Kind != model.SourceKindFeed {
		return nil, model.NewInvalidSourceError(fmt.Sprintf("未対応のソース種別です: %s", input.Kind))
	}

	interval := input.CheckIntervalHours
	if interval == 0 {
		interval = s.defaultInterval
	}
	if interval < 1 {
		return nil, model.NewInvalidIntervalError(interval)
	}

	now := time.Now()
	source := &model.Source{
		ID:                 uuid.New().String(),
		UserID:             input.UserID,
		Handle:             input.Handle,
		Kind:               input.Kind,
		AutoCheckEnabled:   true,
		CheckIntervalHours: interval,
		ParseStatus:        model.ParseStatusPending,
		ViralThreshold:     input.ViralThreshold,
		NotifyOnNew:        input.NotifyOnNew,
		NotifyViralOnly:    input.NotifyViralOnly,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("ソースの登録に失敗しました: %w", err)
	}

	s.logger.Info("ソースを登録しました",
		slog.String("source_id", source.ID),
		slog.String("handle", source.Handle),
		slog.String("kind", string(source.Kind)),
	)

	return source, nil
}

// Get は指定IDのソースを取得する。見つからない場合はAPIErrorを返す。
func (s *Service) Get(ctx context.Context, sourceID string) (*model.Source, error) {
	source, err := s.sourceRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}
	return source, nil
}

// UpdateMonitoring は自動チェックの有効/無効とチェック間隔を部分更新する。
// nilのフィールドは変更しない。チェック間隔は1時間以上であること。
func (s *Service) UpdateMonitoring(ctx context.Context, sourceID string, enabled *bool, intervalHours *int) (*model.Source, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	newEnabled := source.AutoCheckEnabled
	if enabled != nil {
		newEnabled = *enabled
	}
	newInterval := source.CheckIntervalHours
	if intervalHours != nil {
		if *intervalHours < 1 {
			return nil, model.NewInvalidIntervalError(*intervalHours)
		}
		newInterval = *intervalHours
	}

	if err := s.sourceRepo.UpdateMonitoring(ctx, sourceID, newEnabled, newInterval); err != nil {
		return nil, fmt.Errorf("監視設定の更新に失敗しました: %w", err)
	}

	source.AutoCheckEnabled = newEnabled
	source.CheckIntervalHours = newInterval

	s.logger.Info("監視設定を更新しました",
		slog.String("source_id", sourceID),
		slog.Bool("auto_check_enabled", newEnabled),
		slog.Int("check_interval_hours", newInterval),
	)

	return source, nil
}
