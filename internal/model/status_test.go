package model

import "testing"

func TestCanTransitionDownload(t *testing.T) {
	tests := []struct {
		name string
		from DownloadStatus
		to   DownloadStatus
		want bool
	}{
		{"pendingからdownloading", DownloadStatusPending, DownloadStatusDownloading, true},
		{"downloadingからcompleted", DownloadStatusDownloading, DownloadStatusCompleted, true},
		{"downloadingからfailed", DownloadStatusDownloading, DownloadStatusFailed, true},
		{"pendingからcompletedの飛び越し", DownloadStatusPending, DownloadStatusCompleted, false},
		{"completedからpendingへの巻き戻し", DownloadStatusCompleted, DownloadStatusPending, false},
		{"completedからdownloadingの再実行", DownloadStatusCompleted, DownloadStatusDownloading, false},
		{"failedからdownloadingの再実行", DownloadStatusFailed, DownloadStatusDownloading, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionDownload(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionDownload(%s, %s) want %v, got %v", tt.from, tt.to, tt.want, got)
			}
		})
	}
}

func TestCanTransitionTranscript(t *testing.T) {
	tests := []struct {
		name string
		from TranscriptStatus
		to   TranscriptStatus
		want bool
	}{
		{"pendingからprocessing", TranscriptStatusPending, TranscriptStatusProcessing, true},
		{"processingからcompleted", TranscriptStatusProcessing, TranscriptStatusCompleted, true},
		{"processingからfailed", TranscriptStatusProcessing, TranscriptStatusFailed, true},
		{"pendingからcompletedの飛び越し", TranscriptStatusPending, TranscriptStatusCompleted, false},
		{"completedからpendingへの巻き戻し", TranscriptStatusCompleted, TranscriptStatusPending, false},
		{"failedからprocessingの再実行", TranscriptStatusFailed, TranscriptStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionTranscript(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionTranscript(%s, %s) want %v, got %v", tt.from, tt.to, tt.want, got)
			}
		})
	}
}
