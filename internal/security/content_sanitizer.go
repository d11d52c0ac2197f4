package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ArticleSanitizer はインスピレーション記事のHTML要約をサニタイズする。
// RSSフィード由来のHTMLをそのまま表示するとXSSのリスクがあるため、
// bluemondayの許可リストベースのポリシーで安全なタグのみを通過させる。
type ArticleSanitizer struct {
	policy *bluemonday.Policy
}

// NewArticleSanitizer はArticleSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - script, iframe, style および on* イベント属性は除去される
//   - imgのsrc属性はhttpsスキームのみ許可
//   - aタグには target="_blank" と rel="noopener noreferrer" を自動付与
func NewArticleSanitizer() *ArticleSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &ArticleSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
// 空文字列の入力には空文字列を返し、同一入力に対して常に同一出力を返す。
func (s *ArticleSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
