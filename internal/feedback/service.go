// Package feedback はユーザーの承認/却下/修正シグナルから
// 採用判定ポリシーを適応的に調整するフィードバックループを提供する。
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

// 閾値調整のパラメータ。
const (
	// highConfidenceScore はこのスコア以上の承認では閾値を調整しない。
	highConfidenceScore = 75.0
	// highApprovalRate は閾値を下げる判定に使う承認率の下限。
	highApprovalRate = 0.8
	// lowApprovalRate は閾値を上げる判定に使う承認率の上限。
	lowApprovalRate = 0.5
	// lowerStep は承認時に閾値を下げる幅。
	lowerStep = 2.0
	// raiseStep は却下時に閾値を上げる幅。
	raiseStep = 5.0
	// minPatternCount は指示として採用する却下パターンの最小発生回数。
	minPatternCount = 2
	// categoryBoringTopic は回避トピックの蓄積対象となる却下カテゴリ。
	categoryBoringTopic = "boring_topic"
)

// reviseKeywords は修正メモのキーワードマッチングに使う
// カテゴリ→キーワードの固定テーブル。
// より高度な分析が利用できない場合のフォールバックとして
// 却下パターンのカウンタを増分する。
var reviseKeywords = map[string][]string{
	"too_long":     {"長い", "長すぎ", "冗長", "too long"},
	"boring_topic": {"つまらない", "退屈", "飽きた", "boring"},
	"bad_hook":     {"冒頭", "つかみ", "フック", "hook"},
	"low_quality":  {"質が低い", "品質", "雑", "quality"},
}

// rejectionInstructions はカテゴリごとのスコアリング指示テキスト。
var rejectionInstructions = map[string]string{
	"too_long":     "長尺で冗長なコンテンツのスコアを下げてください。",
	"boring_topic": "ユーザーが退屈と判断したトピックのスコアを下げてください。",
	"bad_hook":     "冒頭のつかみが弱いコンテンツのスコアを下げてください。",
	"low_quality":  "制作品質の低いコンテンツのスコアを下げてください。",
}

// Service は採用判定ポリシーの適応調整を行うフィードバックサービス。
// ポリシーの永続化エラーはトリガー元のユーザー操作を妨げない。
// ログに記録した上で操作は成功として完了する。
type Service struct {
	policyRepo repository.PolicyRepository
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(policyRepo repository.PolicyRepository, logger *slog.Logger) *Service {
	return &Service{
		policyRepo: policyRepo,
		logger:     logger,
	}
}

// Approve はアイテム承認シグナルを処理する。
// 承認されたアイテムのスコアが高信頼帯未満かつ全体の承認率が高い場合、
// 学習閾値を一定幅下げる（下限あり）。
func (s *Service) Approve(ctx context.Context, userID string, itemScore float64) {
	policy, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("ポリシーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	policy.ApprovedCount++

	if itemScore < highConfidenceScore && policy.ApprovalRate() > highApprovalRate {
		policy.LearnedThreshold = max(policy.LearnedThreshold-lowerStep, model.ThresholdFloor)
		s.logger.Info("学習閾値を引き下げました",
			slog.String("user_id", userID),
			slog.Float64("threshold", policy.LearnedThreshold),
		)
	}

	s.save(ctx, policy)
}

// Reject はアイテム却下シグナルを処理する。
// カテゴリ別の却下パターンを記録し、boring_topicの場合は回避トピックに蓄積する。
// 全体の承認率が低い場合、学習閾値を一定幅上げる（上限あり）。
func (s *Service) Reject(ctx context.Context, userID, category, reason, topic string) {
	policy, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("ポリシーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	policy.RejectedCount++
	s.recordPattern(policy, category, reason)

	if category == categoryBoringTopic && topic != "" {
		s.addAvoidedTopic(policy, topic)
	}

	if policy.ApprovalRate() < lowApprovalRate {
		policy.LearnedThreshold = min(policy.LearnedThreshold+raiseStep, model.ThresholdCeiling)
		s.logger.Info("学習閾値を引き上げました",
			slog.String("user_id", userID),
			slog.Float64("threshold", policy.LearnedThreshold),
		)
	}

	s.save(ctx, policy)
}

// Revise は修正メモを処理する。
// 固定のキーワードテーブルと照合し、一致したカテゴリの却下パターンを
// フォールバックとして増分する。
func (s *Service) Revise(ctx context.Context, userID, notes string) {
	policy, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("ポリシーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	lower := strings.ToLower(notes)
	matched := false
	for category, keywords := range reviseKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				s.recordPattern(policy, category, notes)
				matched = true
				break
			}
		}
	}

	if !matched {
		s.logger.Info("修正メモに一致するカテゴリがありませんでした",
			slog.String("user_id", userID),
		)
	}

	s.save(ctx, policy)
}

// GetInstructions は発生回数が最小閾値以上の却下パターンの指示テキストを返す。
// スコアリングのプロンプト条件付けに使用される唯一の読み取り経路。
func (s *Service) GetInstructions(ctx context.Context, userID string) ([]string, error) {
	policy, err := s.policyRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ポリシーの取得に失敗しました: %w", err)
	}
	if policy == nil {
		return nil, nil
	}

	var instructions []string
	for _, pattern := range policy.RejectionPatterns {
		if pattern.Count >= minPatternCount && pattern.Instruction != "" {
			instructions = append(instructions, pattern.Instruction)
		}
	}
	return instructions, nil
}

// loadOrCreate はユーザーのポリシーを取得し、存在しない場合はデフォルトで生成する。
func (s *Service) loadOrCreate(ctx context.Context, userID string) (*model.AcceptancePolicy, error) {
	policy, err := s.policyRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		policy = model.NewAcceptancePolicy(userID)
	}
	return policy, nil
}

// recordPattern はカテゴリの却下パターンを増分する。
func (s *Service) recordPattern(policy *model.AcceptancePolicy, category, reason string) {
	pattern := policy.RejectionPatterns[category]
	pattern.Count++
	pattern.LastReason = reason
	if pattern.Instruction == "" {
		if inst, ok := rejectionInstructions[category]; ok {
			pattern.Instruction = inst
		} else {
			pattern.Instruction = fmt.Sprintf("「%s」に該当するコンテンツのスコアを下げてください。", category)
		}
	}
	policy.RejectionPatterns[category] = pattern
}

// addAvoidedTopic は回避トピックを重複なく追加する。上限超過時は追加しない。
func (s *Service) addAvoidedTopic(policy *model.AcceptancePolicy, topic string) {
	if policy.HasAvoidedTopic(topic) {
		return
	}
	if len(policy.AvoidedTopics) >= model.MaxAvoidedTopics {
		s.logger.Warn("回避トピックの上限に達しているため追加をスキップします",
			slog.String("user_id", policy.UserID),
			slog.String("topic", topic),
		)
		return
	}
	policy.AvoidedTopics = append(policy.AvoidedTopics, topic)
}

// save はポリシーをUPSERTする。永続化エラーはログに記録するのみで伝播しない。
func (s *Service) save(ctx context.Context, policy *model.AcceptancePolicy) {
	policy.UpdatedAt = time.Now()
	if err := s.policyRepo.Upsert(ctx, policy); err != nil {
		s.logger.Error("ポリシーの保存に失敗しました",
			slog.String("user_id", policy.UserID),
			slog.String("error", err.Error()),
		)
	}
}
