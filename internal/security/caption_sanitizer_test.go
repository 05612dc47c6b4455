package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsAllTags は全てのHTMLタグが除去されることを検証する。
func TestSanitize_StripsAllTags(t *testing.T) {
	sanitizer := NewCaptionSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		wantAbsent []string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "今日の動画です",
			want:  "今日の動画です",
		},
		{
			name:       "scriptタグが除去される",
			input:      `面白い動画<script>alert('xss')</script>`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "装飾タグも除去される",
			input:      "<b>太字</b>と<em>強調</em>",
			want:       "太字と強調",
			wantAbsent: []string{"<b>", "<em>"},
		},
		{
			name:       "aタグが除去されテキストだけ残る",
			input:      `詳細は<a href="https://evil.example">こちら</a>`,
			wantAbsent: []string{"<a", "href"},
		},
		{
			name:       "imgタグが除去される",
			input:      `サムネイル<img src="https://evil.example/x.png">`,
			wantAbsent: []string{"<img", "src"},
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if tt.want != "" || len(tt.wantAbsent) == 0 {
				if got != tt.want {
					t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_DecodesEntities はHTMLエンティティがデコードされることを検証する。
func TestSanitize_DecodesEntities(t *testing.T) {
	sanitizer := NewCaptionSanitizer()

	got := sanitizer.Sanitize("A &amp; B")
	if got != "A & B" {
		t.Errorf("エンティティはデコードされるべき, got %q", got)
	}
}

// TestSanitize_TrimsWhitespace は前後の空白がトリムされることを検証する。
func TestSanitize_TrimsWhitespace(t *testing.T) {
	sanitizer := NewCaptionSanitizer()

	got := sanitizer.Sanitize("  キャプション  ")
	if got != "キャプション" {
		t.Errorf("前後の空白はトリムされるべき, got %q", got)
	}
}

// TestSanitize_Idempotent は同一入力への再適用が同一結果になることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewCaptionSanitizer()

	inputs := []string{
		"プレーンテキスト",
		`<p>段落</p><script>alert(1)</script>`,
		"A &amp; B",
	}

	for _, input := range inputs {
		once := sanitizer.Sanitize(input)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize は冪等であるべき: input=%q once=%q twice=%q", input, once, twice)
		}
	}
}
