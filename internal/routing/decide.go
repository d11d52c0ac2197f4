// Package routing は認証・オンボーディング状態からトップレベル画面を決定する。
package routing

import "github.com/hitoshi/sparkle/internal/model"

// View はトップレベルの画面を表す。常にちょうど1つが選択される。
type View string

const (
	// ViewLoading は状態確認中の待機画面。
	ViewLoading View = "loading"
	// ViewAuth はログイン・サインアップ画面。
	ViewAuth View = "auth"
	// ViewOnboarding はブランド設計図ウィザード画面。
	ViewOnboarding View = "onboarding"
	// ViewMain はメイン画面。
	ViewMain View = "main"
)

// Completion はオンボーディング完了状態の三値を表す。
// 認証遷移のたびにUnknownへ戻り、ゲートの判定結果で確定する。
type Completion int

const (
	// CompletionUnknown は完了状態が未確認であることを表す。
	CompletionUnknown Completion = iota
	// CompletionIncomplete は未完了が確認されたことを表す。
	CompletionIncomplete
	// CompletionComplete は完了が確認されたことを表す。
	CompletionComplete
)

// Decide は認証状態とオンボーディング完了状態から画面を選択する純粋関数。
//
//   - 認証チェック中、または認証済みで完了状態が未確認の間はLoading。
//     認証直後のユーザーが完了状態の確認前にMainへ到達することはない。
//   - 未認証ならAuth。初期状態（Unknown）は起動直後に必ずチェックへ遷移するため
//     Loadingとして扱い、Auth画面が一瞬表示されることを防ぐ。
//   - 認証済みで未完了ならOnboarding。
//   - それ以外はMain。
func Decide(status model.AuthStatus, completion Completion) View {
	switch {
	case status == model.AuthStatusUnknown || status == model.AuthStatusChecking:
		return ViewLoading
	case status != model.AuthStatusAuthenticated:
		return ViewAuth
	case completion == CompletionUnknown:
		return ViewLoading
	case completion == CompletionIncomplete:
		return ViewOnboarding
	default:
		return ViewMain
	}
}
