package model

import "testing"

func TestNewAcceptancePolicy_Defaults(t *testing.T) {
	p := NewAcceptancePolicy("user-1")

	if p.UserID != "user-1" {
		t.Errorf("user_id want user-1, got %s", p.UserID)
	}
	if p.LearnedThreshold != DefaultLearnedThreshold {
		t.Errorf("初期閾値 want %v, got %v", DefaultLearnedThreshold, p.LearnedThreshold)
	}
	if p.RejectionPatterns == nil {
		t.Error("却下パターンのマップは初期化されているべき")
	}
}

func TestApprovalRate(t *testing.T) {
	tests := []struct {
		name     string
		approved int
		rejected int
		want     float64
	}{
		{"シグナルなし", 0, 0, 0},
		{"全承認", 4, 0, 1.0},
		{"半々", 3, 3, 0.5},
		{"承認1却下3", 1, 3, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &AcceptancePolicy{ApprovedCount: tt.approved, RejectedCount: tt.rejected}
			if got := p.ApprovalRate(); got != tt.want {
				t.Errorf("ApprovalRate() want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHasAvoidedTopic(t *testing.T) {
	p := &AcceptancePolicy{AvoidedTopics: []string{"料理vlog", "ゲーム実況"}}

	if !p.HasAvoidedTopic("料理vlog") {
		t.Error("登録済みトピックはtrueを返すべき")
	}
	if p.HasAvoidedTopic("旅行") {
		t.Error("未登録トピックはfalseを返すべき")
	}
}

func TestItemScored(t *testing.T) {
	item := &Item{}
	if item.Scored() {
		t.Error("AIScoreがnilの間は未スコアであるべき")
	}

	score := 75.0
	item.AIScore = &score
	if !item.Scored() {
		t.Error("AIScore設定後はスコア済みであるべき")
	}
}
