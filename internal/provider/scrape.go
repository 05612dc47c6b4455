package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
)

// ScrapeClient はスクレイピングプロバイダ経由でSNSアカウントの最新アイテムを取得する。
// 資格情報はユーザーごとにCredentialStoreから解決されたものを受け取る。
type ScrapeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScrapeClient はScrapeClientの新しいインスタンスを生成する。
func NewScrapeClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ScrapeClient {
	return &ScrapeClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// scrapeRequest はスクレイピングAPIへのリクエストボディ。
type scrapeRequest struct {
	Handle string `json:"handle"`
	Limit  int    `json:"limit"`
}

// scrapeItem はスクレイピングAPIのレスポンス内の1アイテム。
type scrapeItem struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	VideoURL     string     `json:"video_url"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Caption      string     `json:"caption"`
	PlayCount    int        `json:"play_count"`
	LikeCount    int        `json:"like_count"`
	CommentCount int        `json:"comment_count"`
	PostedAt     *time.Time `json:"posted_at"`
}

// scrapeResponse はスクレイピングAPIのレスポンスボディ。
type scrapeResponse struct {
	Items []scrapeItem `json:"items"`
}

// FetchLatest は指定ハンドルの最新アイテムをlimit件まで取得する。
// credは必須であり、リクエストの認証ヘッダに使用する。
func (c *ScrapeClient) FetchLatest(ctx context.Context, cred *Credential, handle string, limit int) ([]model.RawItem, error) {
	if cred == nil || cred.Value == "" {
		return nil, fmt.Errorf("スクレイピングプロバイダの資格情報が指定されていません")
	}

	body, err := json.Marshal(scrapeRequest{Handle: handle, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("スクレイピングリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/posts/latest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("スクレイピングリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("スクレイピングAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("スクレイピングAPIレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("scrape", resp.StatusCode, respBody)
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("スクレイピングAPIレスポンスのデコードに失敗しました: %w", err)
	}

	items := make([]model.RawItem, 0, len(parsed.Items))
	for _, si := range parsed.Items {
		items = append(items, model.RawItem{
			ExternalID:   si.ID,
			URL:          si.URL,
			MediaURL:     si.VideoURL,
			ThumbnailURL: si.ThumbnailURL,
			Caption:      si.Caption,
			PlayCount:    si.PlayCount,
			LikeCount:    si.LikeCount,
			CommentCount: si.CommentCount,
			PublishedAt:  si.PostedAt,
		})
	}

	c.logger.Info("スクレイピングAPIからアイテムを取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(items)),
	)

	return items, nil
}
