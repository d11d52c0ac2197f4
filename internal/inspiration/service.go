// Package inspiration はブランド設計図のインスピレーションソースから記事を収集する。
package inspiration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// Article はインスピレーション記事を表す。
// 投稿の下書き作成時にsource_article_idとして参照される。
type Article struct {
	ID          string
	Title       string
	Link        string
	Summary     string
	Source      string
	PublishedAt *time.Time
}

// SafeClientProvider はSSRF防止付きHTTPクライアントの供給インターフェース。
type SafeClientProvider interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Sanitizer はHTML要約のサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Service はインスピレーションソースのフェッチとパースを提供する。
// ソースはRSS/Atomフィードを想定するが、通常のWebページが指定された場合は
// ページタイトルのみの記事1件へフォールバックする。
type Service struct {
	guard     SafeClientProvider
	sanitizer Sanitizer
	logger    *slog.Logger
	parser    *gofeed.Parser

	timeout     time.Duration
	maxBodySize int64
	perSource   int
}

// NewService はServiceの新しいインスタンスを生成する。
// perSourceは1ソースあたりの最大記事数、maxBodySizeはレスポンスの最大バイト数。
func NewService(guard SafeClientProvider, sanitizer Sanitizer, logger *slog.Logger, timeout time.Duration, maxBodySize int64, perSource int) *Service {
	return &Service{
		guard:       guard,
		sanitizer:   sanitizer,
		logger:      logger,
		parser:      gofeed.NewParser(),
		timeout:     timeout,
		maxBodySize: maxBodySize,
		perSource:   perSource,
	}
}

// FetchArticles は全ソースから記事を収集する。
// 1つのソースの失敗は他のソースの収集を妨げない（フェイルソフト）。
// 全ソースが失敗した場合でもエラーにはせず、空の一覧を返す。
func (s *Service) FetchArticles(ctx context.Context, sources []string) []Article {
	var articles []Article
	for _, source := range sources {
		fetched, err := s.fetchSource(ctx, source)
		if err != nil {
			s.logger.Warn("インスピレーションソースの取得に失敗しました。スキップします",
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}
		articles = append(articles, fetched...)
	}
	return articles
}

// fetchSource は1つのソースから記事を取得する。
func (s *Service) fetchSource(ctx context.Context, source string) ([]Article, error) {
	if err := s.guard.ValidateURL(source); err != nil {
		return nil, fmt.Errorf("URL検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Sparkle/1.0 Client")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := s.guard.NewSafeClient(s.timeout).Do(req)
	if err != nil {
		return nil, fmt.Errorf("フェッチに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ソースがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	feed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		// フィードではないWebページ: タイトルのみの記事1件へフォールバック
		return s.articleFromPage(source, body), nil
	}

	return s.articlesFromFeed(source, feed), nil
}

// articlesFromFeed はパース済みフィードから記事一覧を組み立てる。
func (s *Service) articlesFromFeed(source string, feed *gofeed.Feed) []Article {
	sourceName := feed.Title
	if sourceName == "" {
		sourceName = hostOf(source)
	}

	limit := s.perSource
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	articles := make([]Article, 0, limit)
	for _, item := range feed.Items[:limit] {
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		articles = append(articles, Article{
			ID:          uuid.NewString(),
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			Summary:     s.sanitizer.Sanitize(summary),
			Source:      sourceName,
			PublishedAt: item.PublishedParsed,
		})
	}
	return articles
}

// articleFromPage はHTMLページのタイトルから記事1件を組み立てる。
// タイトルが取得できない場合は記事なしとする。
func (s *Service) articleFromPage(source string, body []byte) []Article {
	title := pageTitle(body)
	if title == "" {
		return nil
	}
	return []Article{{
		ID:     uuid.NewString(),
		Title:  title,
		Link:   source,
		Source: hostOf(source),
	}}
}

// pageTitle はHTMLの<title>要素のテキストを抽出する。
func pageTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
			// bodyに入ったらheadの解析を終了
			if string(tn) == "body" {
				return ""
			}

		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = false
			}
		}
	}
}

// hostOf はURLからホスト名を取り出す。パースできない場合は入力をそのまま返す。
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
