package model

import "time"

// PostStatus は投稿のライフサイクル状態を表す。
type PostStatus string

const (
	// PostStatusDraft は下書き状態。ローカル編集可能で、保存時にリモートへ永続化される。
	PostStatusDraft PostStatus = "draft"
	// PostStatusScheduled は予約投稿状態。ScheduledForが必ず設定される。
	PostStatusScheduled PostStatus = "scheduled"
	// PostStatusPublished は公開済み状態。終端状態でPublishedAtが必ず設定される。
	PostStatusPublished PostStatus = "published"
)

// SourceType は投稿の作成元を表す。
type SourceType string

const (
	// SourceTypeManual は手動で作成された投稿。
	SourceTypeManual SourceType = "manual"
	// SourceTypeAIGenerated はAIアシストで生成された投稿。
	SourceTypeAIGenerated SourceType = "ai_generated"
	// SourceTypeTrendingNews はインスピレーション記事から作成された投稿。
	SourceTypeTrendingNews SourceType = "trending_news"
)

// Post はLinkedIn向けのテキスト投稿を表す。
// IDはサーバー側で採番され、初回永続化まで空となる。
// 永続化後はバックエンドが信頼できる唯一の情報源であり、
// ローカルバッファは再フェッチでいつでも整合可能である。
type Post struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Content         string     `json:"content"`
	Hashtags        []string   `json:"hashtags"`
	ImageURL        string     `json:"image_url,omitempty"`
	Status          PostStatus `json:"status"`
	SourceType      SourceType `json:"source_type"`
	SourceArticleID string     `json:"source_article_id,omitempty"`
	ScheduledFor    *time.Time `json:"scheduled_for"`
	PublishedAt     *time.Time `json:"published_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// PostList は投稿一覧取得のレスポンスを表す。
type PostList struct {
	Posts  []Post `json:"posts"`
	Count  int    `json:"count"`
	Filter string `json:"filter"`
}

// MaxContentLength は投稿本文の文字数上限（LinkedInの仕様に合わせたソフトリミット）。
// 超過しても下書き保存とローカル編集は可能だが、予約・公開は不可となる。
const MaxContentLength = 3000
