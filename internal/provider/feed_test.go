package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>テストポッドキャスト</title>
    <item>
      <title>第1回</title>
      <link>https://podcast.example/ep/1</link>
      <guid>ep-1</guid>
      <enclosure url="https://cdn.example/ep1.mp3" type="audio/mpeg" length="1024"/>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>第2回</title>
      <link>https://podcast.example/ep/2</link>
      <guid>ep-2</guid>
      <enclosure url="https://cdn.example/ep2.mp3" type="audio/mpeg" length="2048"/>
    </item>
  </channel>
</rss>`

func TestFeedClient_FetchLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	defer server.Close()

	client := NewFeedClient(5*time.Second, providerLogger())
	items, err := client.FetchLatest(context.Background(), nil, server.URL, 20)
	if err != nil {
		t.Fatalf("want nil, got %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("アイテム数 want 2, got %d", len(items))
	}
	if items[0].ExternalID != "ep-1" {
		t.Errorf("GUIDが外部IDになるべき, got %s", items[0].ExternalID)
	}
	if items[0].MediaURL != "https://cdn.example/ep1.mp3" {
		t.Errorf("enclosureがメディアURLになるべき, got %s", items[0].MediaURL)
	}
	if items[0].PublishedAt == nil {
		t.Error("pubDateが公開日時になるべき")
	}
	if items[1].PublishedAt != nil {
		t.Error("pubDateのないアイテムの公開日時はnilであるべき")
	}
}

func TestFeedClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewFeedClient(5*time.Second, providerLogger())
	_, err := client.FetchLatest(context.Background(), nil, server.URL, 20)
	if err == nil {
		t.Fatal("HTTPエラーはエラーを返すべき")
	}
}

func TestConvertGofeedItems_Limit(t *testing.T) {
	items := []*gofeed.Item{
		{Title: "a", Link: "https://e/1", GUID: "g1"},
		{Title: "b", Link: "https://e/2", GUID: "g2"},
		{Title: "c", Link: "https://e/3", GUID: "g3"},
	}

	raw := convertGofeedItems(items, 2)
	if len(raw) != 2 {
		t.Errorf("limit超過分は切り捨てるべき, got %d", len(raw))
	}
}

func TestConvertGofeedItems_GUIDFallback(t *testing.T) {
	items := []*gofeed.Item{{Title: "a", Link: "https://e/1"}}

	raw := convertGofeedItems(items, 10)
	if raw[0].ExternalID != "https://e/1" {
		t.Errorf("GUIDがない場合はリンクを外部IDに使うべき, got %s", raw[0].ExternalID)
	}
}

func TestConvertGofeedItems_NoEnclosure(t *testing.T) {
	items := []*gofeed.Item{{Title: "a", Link: "https://e/1", GUID: "g1"}}

	raw := convertGofeedItems(items, 10)
	if raw[0].MediaURL != "" {
		t.Errorf("enclosureのないアイテムのメディアURLは空であるべき, got %s", raw[0].MediaURL)
	}
}
