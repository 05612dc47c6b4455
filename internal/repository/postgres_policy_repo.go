package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/mediawatch/internal/model"
)

// PostgresPolicyRepo はPostgreSQLを使用した採用判定ポリシーリポジトリ。
// rejection_patterns/avoided_topicsはJSONBカラムに格納する。
type PostgresPolicyRepo struct {
	db *sql.DB
}

// NewPostgresPolicyRepo はPostgresPolicyRepoを生成する。
func NewPostgresPolicyRepo(db *sql.DB) *PostgresPolicyRepo {
	return &PostgresPolicyRepo{db: db}
}

// FindByUserID は指定ユーザーのポリシーを取得する。見つからない場合はnilを返す。
func (r *PostgresPolicyRepo) FindByUserID(ctx context.Context, userID string) (*model.AcceptancePolicy, error) {
	policy := &model.AcceptancePolicy{}
	var patternsJSON, topicsJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, learned_threshold, approved_count, rejected_count,
		        rejection_patterns, avoided_topics, created_at, updated_at
		 FROM acceptance_policies WHERE user_id = $1`,
		userID,
	).Scan(
		&policy.UserID, &policy.LearnedThreshold,
		&policy.ApprovedCount, &policy.RejectedCount,
		&patternsJSON, &topicsJSON,
		&policy.CreatedAt, &policy.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("採用判定ポリシーの取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(patternsJSON, &policy.RejectionPatterns); err != nil {
		return nil, fmt.Errorf("却下パターンのデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(topicsJSON, &policy.AvoidedTopics); err != nil {
		return nil, fmt.Errorf("回避トピックのデコードに失敗しました: %w", err)
	}
	if policy.RejectionPatterns == nil {
		policy.RejectionPatterns = make(map[string]model.RejectionPattern)
	}

	return policy, nil
}

// Upsert はポリシーを冪等にUPSERTする。
func (r *PostgresPolicyRepo) Upsert(ctx context.Context, policy *model.AcceptancePolicy) error {
	patternsJSON, err := json.Marshal(policy.RejectionPatterns)
	if err != nil {
		return fmt.Errorf("却下パターンのエンコードに失敗しました: %w", err)
	}
	topicsJSON, err := json.Marshal(policy.AvoidedTopics)
	if err != nil {
		return fmt.Errorf("回避トピックのエンコードに失敗しました: %w", err)
	}
	if policy.AvoidedTopics == nil {
		topicsJSON = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO acceptance_policies (user_id, learned_threshold, approved_count, rejected_count,
		                                  rejection_patterns, avoided_topics, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		    learned_threshold = EXCLUDED.learned_threshold,
		    approved_count = EXCLUDED.approved_count,
		    rejected_count = EXCLUDED.rejected_count,
		    rejection_patterns = EXCLUDED.rejection_patterns,
		    avoided_topics = EXCLUDED.avoided_topics,
		    updated_at = now()`,
		policy.UserID, policy.LearnedThreshold,
		policy.ApprovedCount, policy.RejectedCount,
		patternsJSON, topicsJSON,
	)
	if err != nil {
		return fmt.Errorf("採用判定ポリシーの保存に失敗しました: %w", err)
	}
	return nil
}
