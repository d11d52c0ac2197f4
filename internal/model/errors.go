package model

import (
	"errors"
	"fmt"
)

// ErrNotFound はリソースが存在しないことを表すセンチネルエラー。
// ブランド設計図の404は「未作成」という正当なシグナルであり、障害として扱わない。
var ErrNotFound = errors.New("resource not found")

// ErrUnauthenticated はトークンが無効・期限切れであることを表すセンチネルエラー。
// このエラーを受け取った呼び出し元は常にフェイルクローズ（未認証扱い）する。
var ErrUnauthenticated = errors.New("unauthenticated")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, post, ai, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmptyContent        = "EMPTY_CONTENT"
	ErrCodeContentTooLong      = "CONTENT_TOO_LONG"
	ErrCodeBlueprintIncomplete = "BLUEPRINT_INCOMPLETE"
	ErrCodeImagePromptTooShort = "IMAGE_PROMPT_TOO_SHORT"
	ErrCodeImageUploadFailed   = "IMAGE_UPLOAD_FAILED"
	ErrCodeAIRateLimited       = "AI_RATE_LIMITED"
	ErrCodeInvalidSchedule     = "INVALID_SCHEDULE"
	ErrCodePostNotPublished    = "POST_NOT_PUBLISHED"
	ErrCodeInvalidImageURL     = "INVALID_IMAGE_URL"
)

// NewEmptyContentError は本文が空のまま永続化操作を行った場合のエラーを生成する。
func NewEmptyContentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyContent,
		Message:  "投稿本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから保存・予約・公開を行ってください。",
	}
}

// NewContentTooLongError は本文が上限文字数を超えている場合のエラーを生成する。
func NewContentTooLongError(length int) *APIError {
	return &APIError{
		Code:     ErrCodeContentTooLong,
		Message:  fmt.Sprintf("投稿本文が上限を超えています: %d文字（上限%d文字）", length, MaxContentLength),
		Category: "validation",
		Action:   "本文を短くしてから予約・公開を行ってください。下書き保存は可能です。",
	}
}

// NewBlueprintIncompleteError は必須項目が未入力のままブランド設計図を送信した場合のエラーを生成する。
func NewBlueprintIncompleteError(missing string) *APIError {
	return &APIError{
		Code:     ErrCodeBlueprintIncomplete,
		Message:  fmt.Sprintf("ブランド設計図の必須項目が未入力です: %s", missing),
		Category: "validation",
		Action:   "トピック・主目標・トーンをすべて入力してください。",
	}
}

// NewImagePromptTooShortError はAI画像生成の入力が短すぎる場合のエラーを生成する。
func NewImagePromptTooShortError() *APIError {
	return &APIError{
		Code:     ErrCodeImagePromptTooShort,
		Message:  "AI画像生成には20文字以上の本文、またはカスタムプロンプトが必要です。",
		Category: "validation",
		Action:   "本文を書き足すか、画像の内容を指示するプロンプトを入力してください。",
	}
}

// NewImageUploadFailedError は画像アップロード失敗のエラーを生成する。
func NewImageUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageUploadFailed,
		Message:  fmt.Sprintf("画像のアップロードに失敗しました: %s", reason),
		Category: "post",
		Action:   "通信状態を確認し、再度アップロードしてください。",
	}
}

// NewAIRateLimitedError はAIアシストの呼び出しが多すぎる場合のエラーを生成する。
func NewAIRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeAIRateLimited,
		Message:  "AIアシストの呼び出しが多すぎます。",
		Category: "ai",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidScheduleError は予約日時が不正な場合のエラーを生成する。
func NewInvalidScheduleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  "予約日時が指定されていないか、不正です。",
		Category: "validation",
		Action:   "未来の日時を指定してください。",
	}
}

// NewPostNotPublishedError は未公開の投稿に対して再コピーを行った場合のエラーを生成する。
func NewPostNotPublishedError() *APIError {
	return &APIError{
		Code:     ErrCodePostNotPublished,
		Message:  "この投稿はまだ公開されていません。",
		Category: "post",
		Action:   "公開済みの投稿のみクリップボードへ再コピーできます。",
	}
}

// NewInvalidImageURLError は生成された画像URLが安全性検証を通らなかった場合のエラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("画像URLが安全性検証を通りませんでした: %s", reason),
		Category: "post",
		Action:   "再度画像を生成するか、別の画像を選択してください。",
	}
}
