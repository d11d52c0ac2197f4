package model

import "time"

// PostingPreferences は投稿頻度・曜日などの投稿設定を表す。
type PostingPreferences struct {
	PreferredDays    []string `json:"preferred_days"`
	PreferredHours   []int    `json:"preferred_hours"`
	PostsPerWeek     int      `json:"posts_per_week"`
	AskBeforePublish bool     `json:"ask_before_publish"`
}

// BrandBlueprint はオンボーディングで作成されるブランド設計図を表す。
// コンテンツ提案のパーソナライズに使用される。
type BrandBlueprint struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	Topics             []string           `json:"topics"`
	MainGoal           string             `json:"main_goal"`
	Tone               string             `json:"tone"`
	Inspirations       []string           `json:"inspirations"`
	PostingPreferences PostingPreferences `json:"posting_preferences"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          *time.Time         `json:"updated_at"`
}

// IsComplete はブランド設計図がオンボーディング完了条件を満たすかを判定する。
// トピック・主目標・トーンがすべて非空であることが条件。
func (b *BrandBlueprint) IsComplete() bool {
	return len(b.Topics) > 0 && b.MainGoal != "" && b.Tone != ""
}

// BlueprintPayload はブランド設計図の作成・更新リクエストボディを表す。
type BlueprintPayload struct {
	Topics             []string           `json:"topics"`
	MainGoal           string             `json:"main_goal"`
	Tone               string             `json:"tone"`
	Inspirations       []string           `json:"inspirations"`
	PostingPreferences PostingPreferences `json:"posting_preferences"`
}
