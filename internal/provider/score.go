package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// systemPrompt はスコアリングのシステムプロンプト。
// 応答はJSONのみとし、各スコアは0〜100で返すよう指示する。
const systemPrompt = `あなたはショート動画コンテンツの評価者です。
与えられた文字起こしテキストとエンゲージメント情報から、コンテンツの品質を評価してください。
応答は次のJSONのみを返してください:
{"overall": 0-100, "hook": 0-100, "content": 0-100, "trend": 0-100, "comment": "短い講評"}`

// ScoreClient はOpenAI互換のchat completions APIによるスコアリングクライアント。
// 有償モデルを呼び出すため、呼び出し側でセッション予算による制限を行うこと。
type ScoreClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScoreClient はScoreClientの新しいインスタンスを生成する。
func NewScoreClient(endpoint, apiKey, model string, timeout time.Duration, logger *slog.Logger) *ScoreClient {
	return &ScoreClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// chatMessage はchat completions APIのメッセージ。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest はchat completions APIのリクエストボディ。
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse はchat completions APIのレスポンスボディ。
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// scorePayload はモデル応答のJSONペイロード。
type scorePayload struct {
	Overall float64 `json:"overall"`
	Hook    float64 `json:"hook"`
	Content float64 `json:"content"`
	Trend   float64 `json:"trend"`
	Comment string  `json:"comment"`
}

// Score は文字起こしテキストをスコアリングする。
func (c *ScoreClient) Score(ctx context.Context, text string, meta ScoreMetadata) (*Score, error) {
	userPrompt := buildUserPrompt(text, meta)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("スコアリングリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("スコアリングリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("スコアリングAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("スコアリングAPIレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("score", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("スコアリングAPIレスポンスのデコードに失敗しました: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("スコアリングAPIレスポンスにchoicesが含まれていません")
	}

	var payload scorePayload
	content := extractJSON(parsed.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("スコアペイロードのデコードに失敗しました: %w", err)
	}

	c.logger.Info("スコアリングが完了しました",
		slog.Float64("overall", payload.Overall),
	)

	return &Score{
		Overall: clampScore(payload.Overall),
		Hook:    clampScore(payload.Hook),
		Content: clampScore(payload.Content),
		Trend:   clampScore(payload.Trend),
		Comment: payload.Comment,
	}, nil
}

// buildUserPrompt は文字起こしとメタデータからユーザープロンプトを構築する。
func buildUserPrompt(text string, meta ScoreMetadata) string {
	var b strings.Builder
	b.WriteString("## 文字起こし\n")
	b.WriteString(text)
	b.WriteString("\n\n## メタデータ\n")
	fmt.Fprintf(&b, "キャプション: %s\n", meta.Caption)
	fmt.Fprintf(&b, "再生数: %d, いいね数: %d, コメント数: %d\n", meta.PlayCount, meta.LikeCount, meta.CommentCount)

	if len(meta.Instructions) > 0 {
		b.WriteString("\n## 評価時の注意事項\n")
		for _, inst := range meta.Instructions {
			fmt.Fprintf(&b, "- %s\n", inst)
		}
	}

	return b.String()
}

// extractJSON はモデル応答からJSON部分を抽出する。
// markdownのコードフェンスで囲まれている場合に対応する。
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	return content
}

// clampScore はスコアを0〜100の範囲に丸める。
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
