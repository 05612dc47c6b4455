// Package model はドメインモデルを定義する。
package model

import "time"

// デフォルトの学習閾値と調整パラメータ。
const (
	// DefaultLearnedThreshold は学習閾値の初期値。
	DefaultLearnedThreshold = 70.0
	// ThresholdFloor は学習閾値の下限。
	ThresholdFloor = 60.0
	// ThresholdCeiling は学習閾値の上限。
	ThresholdCeiling = 90.0
	// MaxAvoidedTopics は回避トピックの最大保持数。
	MaxAvoidedTopics = 50
)

// RejectionPattern はカテゴリごとの却下傾向を表す。
type RejectionPattern struct {
	Count       int    `json:"count"`
	Instruction string `json:"instruction"`
	LastReason  string `json:"last_reason"`
}

// AcceptancePolicy はユーザーごとの採用判定ポリシーを表す。
// ユーザーの承認/却下シグナルから学習閾値と却下パターンを調整する。
type AcceptancePolicy struct {
	UserID            string
	LearnedThreshold  float64
	ApprovedCount     int
	RejectedCount     int
	RejectionPatterns map[string]RejectionPattern
	AvoidedTopics     []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAcceptancePolicy はデフォルト値を持つAcceptancePolicyを生成する。
func NewAcceptancePolicy(userID string) *AcceptancePolicy {
	now := time.Now()
	return &AcceptancePolicy{
		UserID:            userID,
		LearnedThreshold:  DefaultLearnedThreshold,
		RejectionPatterns: make(map[string]RejectionPattern),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ApprovalRate は全体の承認率を返す。承認も却下もない場合は0を返す。
func (p *AcceptancePolicy) ApprovalRate() float64 {
	total := p.ApprovedCount + p.RejectedCount
	if total == 0 {
		return 0
	}
	return float64(p.ApprovedCount) / float64(total)
}

// HasAvoidedTopic は指定トピックが回避リストに含まれるかを返す。
func (p *AcceptancePolicy) HasAvoidedTopic(topic string) bool {
	for _, t := range p.AvoidedTopics {
		if t == topic {
			return true
		}
	}
	return false
}
