// Package onboarding はブランド設計図ウィザードの状態と完了判定を提供する。
// 完了判定はローカルキャッシュ→リモート設計図の二段チェックで行い、
// 完了フラグの書き込みはこのパッケージのみが行う（単一ライター規約）。
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/sparkle/internal/model"
)

// BlueprintAPI はブランド設計図エンドポイントのインターフェース。
type BlueprintAPI interface {
	// GetBlueprint は設計図を取得する。未作成の場合はmodel.ErrNotFoundを返す。
	GetBlueprint(ctx context.Context) (*model.BrandBlueprint, error)
	CreateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error)
	UpdateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error)
}

// CompletionStore はオンボーディング完了フラグの永続化インターフェース。
// フラグはユーザーIDでスコープされ、プロセス再起動をまたいで保持される。
type CompletionStore interface {
	CompletionFlag(ctx context.Context, userID string) (bool, error)
	SetCompletionFlag(ctx context.Context, userID string, completed bool) error
	DeleteCompletionFlag(ctx context.Context, userID string) error
}

// Wizard はウィザードの入力状態を表す。
type Wizard struct {
	Topics           []string
	MainGoal         string
	Tone             string
	Inspirations     string // カンマ区切りの生入力
	PostingFrequency int
	PreferredDays    []string
	PreferredTime    int
	AskBeforePublish bool
}

// defaultWizard はウィザードの初期値を返す。
func defaultWizard() Wizard {
	return Wizard{
		Topics:           []string{},
		MainGoal:         "",
		Tone:             "",
		Inspirations:     "",
		PostingFrequency: 3,
		PreferredDays:    []string{"monday", "wednesday", "friday"},
		PreferredTime:    14,
		AskBeforePublish: true,
	}
}

// Gate はオンボーディングの完了判定とウィザード状態を管理する。
type Gate struct {
	api    BlueprintAPI
	flags  CompletionStore
	logger *slog.Logger

	mu      sync.Mutex
	wizard  Wizard
	trigger int64
	subs    []func()
}

// NewGate はGateの新しいインスタンスを生成する。ウィザードは初期値で始まる。
func NewGate(blueprintAPI BlueprintAPI, flags CompletionStore, logger *slog.Logger) *Gate {
	return &Gate{
		api:    blueprintAPI,
		flags:  flags,
		logger: logger,
		wizard: defaultWizard(),
	}
}

// Wizard は現在のウィザード状態のスナップショットを返す。
func (g *Gate) Wizard() Wizard {
	g.mu.Lock()
	defer g.mu.Unlock()

	w := g.wizard
	w.Topics = append([]string(nil), g.wizard.Topics...)
	w.PreferredDays = append([]string(nil), g.wizard.PreferredDays...)
	return w
}

// SetTopics はトピックを設定する。
func (g *Gate) SetTopics(topics []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.Topics = append([]string(nil), topics...)
}

// SetMainGoal は主目標を設定する。
func (g *Gate) SetMainGoal(goal string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.MainGoal = goal
}

// SetTone はトーンを設定する。
func (g *Gate) SetTone(tone string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.Tone = tone
}

// SetInspirations はインスピレーション（カンマ区切り）を設定する。
func (g *Gate) SetInspirations(inspirations string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.Inspirations = inspirations
}

// SetPostingFrequency は週あたりの投稿数を設定する。
func (g *Gate) SetPostingFrequency(frequency int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.PostingFrequency = frequency
}

// SetPreferredDays は投稿希望曜日を設定する。
func (g *Gate) SetPreferredDays(days []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.PreferredDays = append([]string(nil), days...)
}

// SetPreferredTime は投稿希望時刻（時）を設定する。
func (g *Gate) SetPreferredTime(hour int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.PreferredTime = hour
}

// SetAskBeforePublish は公開前確認の要否を設定する。
func (g *Gate) SetAskBeforePublish(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard.AskBeforePublish = v
}

// Reset はウィザードの全項目を初期値へ戻す。
// ユーザー識別が別の値へ変わったとき、またはnilになったときに必ず呼び出すこと。
// 同一プロセス内で前ユーザーの入力内容が次ユーザーへ漏れることを防ぐ。
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wizard = defaultWizard()
}

// CompletionTrigger は完了通知カウンタの現在値を返す。
// 値は単調増加し、完了のたびにインクリメントされる。
// booleanの反転だけでは「false→true→false」の遷移を購読側が
// 区別できないため、専用のカウンタを設けている。
func (g *Gate) CompletionTrigger() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trigger
}

// Subscribe は完了通知を購読する。MarkCompleteのたびに同期的に呼び出される。
func (g *Gate) Subscribe(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, fn)
}

// HasCompleted はオンボーディング完了済みかを判定する。
//  1. ローカルキャッシュがtrueなら即座にtrue（ネットワーク呼び出しなし）。
//  2. リモート設計図を取得。404は「未作成」としてfalse。
//  3. 設計図が完了条件を満たせばキャッシュへ記録してtrue。
//     不完全な場合はキャッシュせずfalse（サーバー側で完了する可能性があるため）。
//  4. その他のエラーはfalse（フェイルクローズ。壊れたメイン画面よりオンボーディングへ）。
func (g *Gate) HasCompleted(ctx context.Context, userID string) bool {
	cached, err := g.flags.CompletionFlag(ctx, userID)
	if err != nil {
		g.logger.Warn("完了フラグの読み取りに失敗しました。リモートを確認します",
			slog.String("error", err.Error()),
		)
	}
	if cached {
		return true
	}

	bp, err := g.api.GetBlueprint(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false
		}
		g.logger.Warn("ブランド設計図の取得に失敗しました。未完了として扱います",
			slog.String("error", err.Error()),
		)
		return false
	}

	if !bp.IsComplete() {
		return false
	}

	if err := g.flags.SetCompletionFlag(ctx, userID, true); err != nil {
		g.logger.Warn("完了フラグの保存に失敗しました", slog.String("error", err.Error()))
	}
	return true
}

// InvalidateCache は指定ユーザーの完了フラグキャッシュを破棄する。
// 新規ログイン・サインアップの直後に呼び出し、次回の完了判定を
// 必ずリモートの設計図で検証させる。削除の失敗は警告にとどめる
// （フラグが残っても完了済みユーザーの画面遷移は変わらないため）。
func (g *Gate) InvalidateCache(ctx context.Context, userID string) {
	if err := g.flags.DeleteCompletionFlag(ctx, userID); err != nil {
		g.logger.Warn("完了フラグの削除に失敗しました", slog.String("error", err.Error()))
	}
}

// MarkComplete は完了フラグを記録し、完了通知カウンタをインクリメントする。
func (g *Gate) MarkComplete(ctx context.Context, userID string) {
	if err := g.flags.SetCompletionFlag(ctx, userID, true); err != nil {
		g.logger.Warn("完了フラグの保存に失敗しました", slog.String("error", err.Error()))
	}

	g.mu.Lock()
	g.trigger++
	subs := make([]func(), len(g.subs))
	copy(subs, g.subs)
	g.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// SubmitBlueprint はウィザードの入力からブランド設計図を送信する。
// 既存の設計図があれば更新、なければ新規作成する。
// 成功時はMarkCompleteを呼び出す。エラーは完了を記録せず呼び出し元へ返す。
func (g *Gate) SubmitBlueprint(ctx context.Context, userID string) error {
	payload, err := g.buildPayload()
	if err != nil {
		return err
	}

	// 404を「未作成」として扱う存在チェック
	_, err = g.api.GetBlueprint(ctx)
	switch {
	case err == nil:
		if _, err := g.api.UpdateBlueprint(ctx, payload); err != nil {
			return fmt.Errorf("ブランド設計図の更新に失敗しました: %w", err)
		}
	case errors.Is(err, model.ErrNotFound):
		if _, err := g.api.CreateBlueprint(ctx, payload); err != nil {
			return fmt.Errorf("ブランド設計図の作成に失敗しました: %w", err)
		}
	default:
		return fmt.Errorf("ブランド設計図の存在確認に失敗しました: %w", err)
	}

	g.logger.Info("ブランド設計図を送信しました", slog.String("user_id", userID))
	g.MarkComplete(ctx, userID)
	return nil
}

// buildPayload はウィザードの入力を検証し、送信用ペイロードへ変換する。
// 必須項目（トピック・主目標・トーン）が欠けている場合はネットワークを呼ばずにエラーを返す。
func (g *Gate) buildPayload() (model.BlueprintPayload, error) {
	w := g.Wizard()

	var missing []string
	if len(w.Topics) == 0 {
		missing = append(missing, "topics")
	}
	if strings.TrimSpace(w.MainGoal) == "" {
		missing = append(missing, "main_goal")
	}
	if strings.TrimSpace(w.Tone) == "" {
		missing = append(missing, "tone")
	}
	if len(missing) > 0 {
		return model.BlueprintPayload{}, model.NewBlueprintIncompleteError(strings.Join(missing, ", "))
	}

	return model.BlueprintPayload{
		Topics:       w.Topics,
		MainGoal:     w.MainGoal,
		Tone:         w.Tone,
		Inspirations: splitInspirations(w.Inspirations),
		PostingPreferences: model.PostingPreferences{
			PreferredDays:    w.PreferredDays,
			PreferredHours:   []int{w.PreferredTime},
			PostsPerWeek:     w.PostingFrequency,
			AskBeforePublish: w.AskBeforePublish,
		},
	}, nil
}

// splitInspirations はカンマ区切りの入力をトリムし、空要素を除いた配列へ変換する。
func splitInspirations(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
