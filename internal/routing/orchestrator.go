package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/sparkle/internal/model"
	"github.com/hitoshi/sparkle/internal/session"
)

// Gate はオンボーディングゲートのインターフェース。
type Gate interface {
	// HasCompleted はオンボーディング完了済みかを判定する（フェイルクローズ）。
	HasCompleted(ctx context.Context, userID string) bool
	// InvalidateCache は指定ユーザーの完了フラグキャッシュを破棄する。
	InvalidateCache(ctx context.Context, userID string)
	// Reset はウィザードの全項目を初期値へ戻す。
	Reset()
	// Subscribe は完了通知を購読する。
	Subscribe(fn func())
}

// SessionEvents はセッションストアのイベント購読インターフェース。
type SessionEvents interface {
	Subscribe(fn func(session.Event))
}

// Orchestrator はセッションとオンボーディングゲートのイベントを購読し、
// 表示すべき画面を決定する。画面の再評価は明示的なイベント購読で駆動され、
// 以下を保証する:
//   - 認証直後のユーザーは完了状態の確認が終わるまでMainへ到達しない。
//   - オンボーディング完了は再起動なしで即座にMainへ反映される。
//   - ログアウトは必ずAuthへ戻り、ウィザード状態をリセットする。
type Orchestrator struct {
	gate   Gate
	logger *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	authStatus model.AuthStatus
	userID     string
	completion Completion
	view       View
	subs       []func(View)
}

// NewOrchestrator はOrchestratorを生成し、セッションとゲートの購読を登録する。
func NewOrchestrator(sessions SessionEvents, gate Gate, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		gate:       gate,
		logger:     logger,
		ctx:        context.Background(),
		authStatus: model.AuthStatusUnknown,
		completion: CompletionUnknown,
		view:       ViewLoading,
	}

	sessions.Subscribe(o.onSessionEvent)
	gate.Subscribe(o.onCompletionTrigger)

	return o
}

// SetContext はゲート再チェックに使うコンテキストを差し替える。
// アプリ終了時のキャンセルを伝播させるために起動時に設定する。
func (o *Orchestrator) SetContext(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
}

// View は現在選択されている画面を返す。
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// Subscribe は画面遷移の通知を購読する。画面が変わったときのみ呼び出される。
func (o *Orchestrator) Subscribe(fn func(View)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

// onSessionEvent はセッション状態の遷移を処理する。
// ユーザー識別が変わった場合（別ユーザーへの切り替え、またはログアウト）は
// ウィザード状態をリセットし、完了状態をUnknownへ戻して再チェックを強制する。
func (o *Orchestrator) onSessionEvent(ev session.Event) {
	o.mu.Lock()

	o.authStatus = ev.Status

	newUserID := ""
	if ev.User != nil {
		newUserID = ev.User.ID
	}

	if newUserID != o.userID {
		o.logger.Info("ユーザー識別が変わりました。ウィザード状態をリセットします",
			slog.String("previous_user_id", o.userID),
			slog.String("current_user_id", newUserID),
		)
		o.gate.Reset()
		o.userID = newUserID
		o.completion = CompletionUnknown
	}

	if ev.Status != model.AuthStatusAuthenticated {
		o.completion = CompletionUnknown
	}

	needCheck := ev.Status == model.AuthStatusAuthenticated && o.completion == CompletionUnknown
	ctx := o.ctx
	userID := o.userID
	o.mu.Unlock()

	if needCheck {
		// 新規ログイン・サインアップではキャッシュを破棄し、リモートで再検証する
		if ev.Fresh {
			o.gate.InvalidateCache(ctx, userID)
		}
		o.recheckCompletion(ctx, userID)
		return
	}
	o.recompute()
}

// onCompletionTrigger はゲートの完了通知を処理する。
// 認証済みであれば完了状態を再チェックする（完了直後はキャッシュヒットで即確定する）。
func (o *Orchestrator) onCompletionTrigger() {
	o.mu.Lock()
	authenticated := o.authStatus == model.AuthStatusAuthenticated
	ctx := o.ctx
	userID := o.userID
	o.mu.Unlock()

	if !authenticated {
		return
	}
	o.recheckCompletion(ctx, userID)
}

// recheckCompletion はゲートに完了判定を問い合わせ、結果を反映する。
func (o *Orchestrator) recheckCompletion(ctx context.Context, userID string) {
	completed := o.gate.HasCompleted(ctx, userID)

	o.mu.Lock()
	if o.userID != userID {
		// チェック中にユーザーが変わった場合、古い結果は破棄する
		o.mu.Unlock()
		return
	}
	if completed {
		o.completion = CompletionComplete
	} else {
		o.completion = CompletionIncomplete
	}
	o.mu.Unlock()

	o.recompute()
}

// recompute は画面を再決定し、変化があれば購読者へ通知する。
func (o *Orchestrator) recompute() {
	o.mu.Lock()
	next := Decide(o.authStatus, o.completion)
	if next == o.view {
		o.mu.Unlock()
		return
	}
	o.view = next
	subs := make([]func(View), len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	o.logger.Info("画面を切り替えます", slog.String("view", string(next)))
	for _, fn := range subs {
		fn(next)
	}
}
