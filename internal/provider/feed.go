package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/mediawatch/internal/model"
)

// FeedClient はRSS/Atomフィード種別のソースの最新アイテムを取得する。
// ハンドルはフィードURLとして解釈する。資格情報は不要（nilを許容）。
type FeedClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFeedClient はFeedClientの新しいインスタンスを生成する。
func NewFeedClient(timeout time.Duration, logger *slog.Logger) *FeedClient {
	return &FeedClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchLatest はフィードをパースして最新アイテムをlimit件まで返す。
// ハンドルがHTMLページを指す場合は、headタグのフィードリンクを
// 自動検出してそのフィードを取得する。
func (c *FeedClient) FetchLatest(ctx context.Context, cred *Credential, handle string, limit int) ([]model.RawItem, error) {
	body, contentType, err := c.fetch(ctx, handle)
	if err != nil {
		return nil, err
	}

	feedURL := handle
	if !isDirectFeed(contentType, body) {
		candidates := discoverFeedLinks(body, handle)
		best := selectFeedCandidate(candidates, handle)
		if best == nil {
			return nil, fmt.Errorf("フィードが見つかりません: %s", handle)
		}

		c.logger.Info("HTMLページからフィードを自動検出しました",
			slog.String("page_url", handle),
			slog.String("feed_url", best.URL),
			slog.String("feed_type", best.FeedType),
		)

		feedURL = best.URL
		body, _, err = c.fetch(ctx, feedURL)
		if err != nil {
			return nil, err
		}
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	items := convertGofeedItems(parsedFeed.Items, limit)

	c.logger.Info("フィードからアイテムを取得しました",
		slog.String("feed_url", feedURL),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// maxFeedBodySize はフィード・HTMLレスポンスの最大読み込みサイズ（5MB）。
const maxFeedBodySize = 5 * 1024 * 1024

// fetch は指定URLを取得してボディとContent-Typeを返す。
func (c *FeedClient) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("フィードリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Mediawatch/1.0 Source Monitor")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", newAPIError("feed", resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("フィードの読み込みに失敗しました: %w", err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// convertGofeedItems はgofeedのアイテムをmodel.RawItemに変換する。
// メディアURLは最初のenclosureから取得する。enclosureのないアイテムは
// メディアURLが空となり、取り込み時のバリデーションでドロップされる。
func convertGofeedItems(items []*gofeed.Item, limit int) []model.RawItem {
	raw := make([]model.RawItem, 0, min(len(items), limit))

	for _, item := range items {
		if item == nil {
			continue
		}
		if len(raw) >= limit {
			break
		}

		ri := model.RawItem{
			URL:     item.Link,
			Caption: item.Title,
		}

		// 外部ID: GUIDを優先し、なければリンクを代用する
		if item.GUID != "" {
			ri.ExternalID = item.GUID
		} else {
			ri.ExternalID = item.Link
		}

		// キャプション: タイトルが空の場合はDescriptionを使用
		if ri.Caption == "" {
			ri.Caption = item.Description
		}

		// メディアURL: 最初のenclosure
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" {
				ri.MediaURL = enc.URL
				break
			}
		}

		// 公開日時
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			ri.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			ri.PublishedAt = &t
		}

		raw = append(raw, ri)
	}

	return raw
}
