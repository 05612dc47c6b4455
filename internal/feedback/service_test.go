package feedback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/mediawatch/internal/model"
)

type fakePolicyRepo struct {
	policy    *model.AcceptancePolicy
	findErr   error
	upsertErr error
	saved     *model.AcceptancePolicy
}

func (r *fakePolicyRepo) FindByUserID(ctx context.Context, userID string) (*model.AcceptancePolicy, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.policy, nil
}

func (r *fakePolicyRepo) Upsert(ctx context.Context, policy *model.AcceptancePolicy) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.saved = policy
	return nil
}

func newTestService(repo *fakePolicyRepo) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func policyWithCounts(approved, rejected int) *model.AcceptancePolicy {
	p := model.NewAcceptancePolicy("user-1")
	p.ApprovedCount = approved
	p.RejectedCount = rejected
	return p
}

func TestApprove_LowersThresholdOnHighApprovalRate(t *testing.T) {
	// 承認9/却下1 → 承認後の承認率は10/11 > 0.8
	repo := &fakePolicyRepo{policy: policyWithCounts(9, 1)}
	svc := newTestService(repo)

	svc.Approve(context.Background(), "user-1", 70)

	if repo.saved == nil {
		t.Fatal("ポリシーが保存されるべき")
	}
	if repo.saved.LearnedThreshold != 68 {
		t.Errorf("閾値 want 68, got %v", repo.saved.LearnedThreshold)
	}
	if repo.saved.ApprovedCount != 10 {
		t.Errorf("承認カウント want 10, got %d", repo.saved.ApprovedCount)
	}
}

func TestApprove_HighScoreDoesNotAdjust(t *testing.T) {
	repo := &fakePolicyRepo{policy: policyWithCounts(9, 1)}
	svc := newTestService(repo)

	svc.Approve(context.Background(), "user-1", 85)

	if repo.saved.LearnedThreshold != model.DefaultLearnedThreshold {
		t.Errorf("高信頼帯のスコアでは閾値を調整すべきでない, got %v", repo.saved.LearnedThreshold)
	}
}

func TestApprove_ThresholdFloor(t *testing.T) {
	policy := policyWithCounts(9, 1)
	policy.LearnedThreshold = 61
	repo := &fakePolicyRepo{policy: policy}
	svc := newTestService(repo)

	svc.Approve(context.Background(), "user-1", 70)

	if repo.saved.LearnedThreshold != model.ThresholdFloor {
		t.Errorf("閾値は下限%vで止まるべき, got %v", model.ThresholdFloor, repo.saved.LearnedThreshold)
	}
}

func TestApprove_CreatesPolicyWhenMissing(t *testing.T) {
	repo := &fakePolicyRepo{policy: nil}
	svc := newTestService(repo)

	svc.Approve(context.Background(), "user-1", 80)

	if repo.saved == nil {
		t.Fatal("初回承認でポリシーが生成・保存されるべき")
	}
	if repo.saved.UserID != "user-1" {
		t.Errorf("user_id want user-1, got %s", repo.saved.UserID)
	}
	if repo.saved.ApprovedCount != 1 {
		t.Errorf("承認カウント want 1, got %d", repo.saved.ApprovedCount)
	}
}

func TestReject_RaisesThresholdOnLowApprovalRate(t *testing.T) {
	// 承認2/却下3 → 却下後の承認率は2/6 < 0.5
	repo := &fakePolicyRepo{policy: policyWithCounts(2, 3)}
	svc := newTestService(repo)

	svc.Reject(context.Background(), "user-1", "low_quality", "雑な編集", "")

	if repo.saved.LearnedThreshold != 75 {
		t.Errorf("閾値 want 75, got %v", repo.saved.LearnedThreshold)
	}
	pattern := repo.saved.RejectionPatterns["low_quality"]
	if pattern.Count != 1 {
		t.Errorf("却下パターンのカウント want 1, got %d", pattern.Count)
	}
	if pattern.LastReason != "雑な編集" {
		t.Errorf("最終理由が記録されるべき, got %s", pattern.LastReason)
	}
}

func TestReject_ThresholdCeiling(t *testing.T) {
	policy := policyWithCounts(0, 5)
	policy.LearnedThreshold = 88
	repo := &fakePolicyRepo{policy: policy}
	svc := newTestService(repo)

	svc.Reject(context.Background(), "user-1", "too_long", "", "")

	if repo.saved.LearnedThreshold != model.ThresholdCeiling {
		t.Errorf("閾値は上限%vで止まるべき, got %v", model.ThresholdCeiling, repo.saved.LearnedThreshold)
	}
}

func TestReject_BoringTopicAccumulatesAvoidedTopics(t *testing.T) {
	repo := &fakePolicyRepo{policy: policyWithCounts(10, 0)}
	svc := newTestService(repo)

	svc.Reject(context.Background(), "user-1", "boring_topic", "飽きた", "料理vlog")

	if !repo.saved.HasAvoidedTopic("料理vlog") {
		t.Error("boring_topic却下は回避トピックに蓄積されるべき")
	}
}

func TestReject_AvoidedTopicDeduplicated(t *testing.T) {
	policy := policyWithCounts(10, 0)
	policy.AvoidedTopics = []string{"料理vlog"}
	repo := &fakePolicyRepo{policy: policy}
	svc := newTestService(repo)

	svc.Reject(context.Background(), "user-1", "boring_topic", "", "料理vlog")

	if len(repo.saved.AvoidedTopics) != 1 {
		t.Errorf("重複トピックは追加すべきでない, got %v", repo.saved.AvoidedTopics)
	}
}

func TestReject_AvoidedTopicCapEnforced(t *testing.T) {
	policy := policyWithCounts(10, 0)
	for i := 0; i < model.MaxAvoidedTopics; i++ {
		policy.AvoidedTopics = append(policy.AvoidedTopics, "topic")
	}
	repo := &fakePolicyRepo{policy: policy}
	svc := newTestService(repo)

	svc.Reject(context.Background(), "user-1", "boring_topic", "", "新トピック")

	if len(repo.saved.AvoidedTopics) != model.MaxAvoidedTopics {
		t.Errorf("回避トピックは上限%dを超えるべきでない, got %d", model.MaxAvoidedTopics, len(repo.saved.AvoidedTopics))
	}
}

func TestRevise_KeywordMatchIncrementsPattern(t *testing.T) {
	repo := &fakePolicyRepo{policy: policyWithCounts(5, 0)}
	svc := newTestService(repo)

	svc.Revise(context.Background(), "user-1", "冒頭が弱いので作り直した")

	pattern := repo.saved.RejectionPatterns["bad_hook"]
	if pattern.Count != 1 {
		t.Errorf("キーワード一致で却下パターンを増分すべき, got %d", pattern.Count)
	}
}

func TestRevise_NoMatchStillSaves(t *testing.T) {
	repo := &fakePolicyRepo{policy: policyWithCounts(5, 0)}
	svc := newTestService(repo)

	svc.Revise(context.Background(), "user-1", "特記事項なし")

	if repo.saved == nil {
		t.Error("キーワード不一致でもポリシーは保存されるべき")
	}
	if len(repo.saved.RejectionPatterns) != 0 {
		t.Errorf("不一致なら却下パターンは増えるべきでない, got %v", repo.saved.RejectionPatterns)
	}
}

func TestGetInstructions_OnlyFrequentPatterns(t *testing.T) {
	policy := model.NewAcceptancePolicy("user-1")
	policy.RejectionPatterns["too_long"] = model.RejectionPattern{Count: 3, Instruction: "長尺を避ける"}
	policy.RejectionPatterns["bad_hook"] = model.RejectionPattern{Count: 1, Instruction: "フック改善"}
	repo := &fakePolicyRepo{policy: policy}
	svc := newTestService(repo)

	instructions, err := svc.GetInstructions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if len(instructions) != 1 || instructions[0] != "長尺を避ける" {
		t.Errorf("発生回数2未満のパターンは除外すべき, got %v", instructions)
	}
}

func TestGetInstructions_NoPolicy(t *testing.T) {
	repo := &fakePolicyRepo{policy: nil}
	svc := newTestService(repo)

	instructions, err := svc.GetInstructions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if instructions != nil {
		t.Errorf("ポリシー未作成ならnilを返すべき, got %v", instructions)
	}
}

func TestApprove_PersistenceErrorDoesNotPanic(t *testing.T) {
	repo := &fakePolicyRepo{policy: policyWithCounts(1, 0), upsertErr: errors.New("db down")}
	svc := newTestService(repo)

	// 永続化エラーはログに記録するのみで伝播しない
	svc.Approve(context.Background(), "user-1", 80)
}
