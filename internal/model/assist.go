package model

// AIAssistResult はAIアシストAPIのレスポンスを表す。
// Contentは置換または補完用のテキスト、Hashtagsは3〜5件程度の推奨ハッシュタグ。
// HookSuggestionは代替の書き出し文で、本文へ自動マージされることはない。
// 明示的な「フックを使う」操作によってのみ本文の先頭へ挿入される。
type AIAssistResult struct {
	Content        string   `json:"content"`
	Hashtags       []string `json:"hashtags"`
	HookSuggestion string   `json:"hook_suggestion"`
}
