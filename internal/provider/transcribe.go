package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// TranscribeClient はWhisper互換APIによる文字起こしクライアント。
// ローカルメディアファイルをmultipartでアップロードし、テキストと言語を受け取る。
type TranscribeClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTranscribeClient はTranscribeClientの新しいインスタンスを生成する。
func NewTranscribeClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *TranscribeClient {
	return &TranscribeClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// transcribeResponse はWhisper互換APIのレスポンスボディ。
type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe はローカルメディアファイルの文字起こしを実行する。
func (c *TranscribeClient) Transcribe(ctx context.Context, localMediaPath string) (*Transcription, error) {
	file, err := os.Open(localMediaPath)
	if err != nil {
		return nil, fmt.Errorf("メディアファイルのオープンに失敗しました: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(localMediaPath))
	if err != nil {
		return nil, fmt.Errorf("multipartフォームの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("メディアファイルの読み込みに失敗しました: %w", err)
	}
	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return nil, fmt.Errorf("multipartフィールドの書き込みに失敗しました: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("multipartフィールドの書き込みに失敗しました: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("multipartフォームのクローズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("文字起こしリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("文字起こしAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("文字起こしAPIレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("transcribe", resp.StatusCode, respBody)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("文字起こしAPIレスポンスのデコードに失敗しました: %w", err)
	}

	c.logger.Info("文字起こしが完了しました",
		slog.String("media_path", localMediaPath),
		slog.String("language", parsed.Language),
		slog.Int("text_len", len(parsed.Text)),
	)

	return &Transcription{Text: parsed.Text, Language: parsed.Language}, nil
}
