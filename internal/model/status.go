// Package model はドメインモデルを定義する。
package model

// DownloadStatus はメディア取得ステージの状態を表す。
type DownloadStatus string

const (
	// DownloadStatusPending はメディア取得の待機状態。
	DownloadStatusPending DownloadStatus = "pending"
	// DownloadStatusDownloading はメディア取得の実行中状態。
	DownloadStatusDownloading DownloadStatus = "downloading"
	// DownloadStatusCompleted はメディア取得の完了状態。
	DownloadStatusCompleted DownloadStatus = "completed"
	// DownloadStatusFailed はメディア取得の失敗状態。
	DownloadStatusFailed DownloadStatus = "failed"
)

// TranscriptStatus は文字起こしステージの状態を表す。
type TranscriptStatus string

const (
	// TranscriptStatusPending は文字起こしの待機状態。
	TranscriptStatusPending TranscriptStatus = "pending"
	// TranscriptStatusProcessing は文字起こしの実行中状態。
	TranscriptStatusProcessing TranscriptStatus = "processing"
	// TranscriptStatusCompleted は文字起こしの完了状態。
	TranscriptStatusCompleted TranscriptStatus = "completed"
	// TranscriptStatusFailed は文字起こしの失敗状態。
	TranscriptStatusFailed TranscriptStatus = "failed"
)

// downloadTransitions はメディア取得ステージの許可された状態遷移表。
// 各軸は単調であり、完了/失敗から待機へ戻る遷移は存在しない。
var downloadTransitions = map[DownloadStatus][]DownloadStatus{
	DownloadStatusPending:     {DownloadStatusDownloading},
	DownloadStatusDownloading: {DownloadStatusCompleted, DownloadStatusFailed},
}

// transcriptTransitions は文字起こしステージの許可された状態遷移表。
var transcriptTransitions = map[TranscriptStatus][]TranscriptStatus{
	TranscriptStatusPending:    {TranscriptStatusProcessing},
	TranscriptStatusProcessing: {TranscriptStatusCompleted, TranscriptStatusFailed},
}

// CanTransitionDownload はメディア取得状態の遷移が許可されているかを返す。
func CanTransitionDownload(from, to DownloadStatus) bool {
	for _, t := range downloadTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CanTransitionTranscript は文字起こし状態の遷移が許可されているかを返す。
func CanTransitionTranscript(from, to TranscriptStatus) bool {
	for _, t := range transcriptTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
