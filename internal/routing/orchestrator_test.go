package routing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/hitoshi/sparkle/internal/model"
	"github.com/hitoshi/sparkle/internal/session"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// --- モック ---

type fakeSessionEvents struct {
	subs []func(session.Event)
}

func (f *fakeSessionEvents) Subscribe(fn func(session.Event)) {
	f.subs = append(f.subs, fn)
}

func (f *fakeSessionEvents) emit(ev session.Event) {
	for _, fn := range f.subs {
		fn(ev)
	}
}

type mockGate struct {
	hasCompletedFn  func(ctx context.Context, userID string) bool
	hasCompletedArg string
	checkCalls      int
	resetCalls      int
	invalidateCalls int
	subs            []func()
}

func (m *mockGate) HasCompleted(ctx context.Context, userID string) bool {
	m.checkCalls++
	m.hasCompletedArg = userID
	if m.hasCompletedFn == nil {
		return false
	}
	return m.hasCompletedFn(ctx, userID)
}

func (m *mockGate) InvalidateCache(ctx context.Context, userID string) {
	m.invalidateCalls++
}

func (m *mockGate) Reset() {
	m.resetCalls++
}

func (m *mockGate) Subscribe(fn func()) {
	m.subs = append(m.subs, fn)
}

func (m *mockGate) triggerCompletion() {
	for _, fn := range m.subs {
		fn()
	}
}

func authenticated(userID string) session.Event {
	return session.Event{
		Status: model.AuthStatusAuthenticated,
		User:   &model.User{ID: userID},
	}
}

// --- テスト ---

func TestNewOrchestrator_InitialViewIsLoading(t *testing.T) {
	o := NewOrchestrator(&fakeSessionEvents{}, &mockGate{}, newTestLogger())

	if o.View() != ViewLoading {
		t.Errorf("view = %s, want loading", o.View())
	}
}

func TestOrchestrator_UnauthenticatedShowsAuth(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(session.Event{Status: model.AuthStatusUnauthenticated})

	if o.View() != ViewAuth {
		t.Errorf("view = %s, want auth", o.View())
	}
	if gate.checkCalls != 0 {
		t.Errorf("未認証で HasCompleted が呼ばれた: %d 回", gate.checkCalls)
	}
}

func TestOrchestrator_AuthenticatedIncompleteShowsOnboarding(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return false },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))

	if o.View() != ViewOnboarding {
		t.Errorf("view = %s, want onboarding", o.View())
	}
	if gate.hasCompletedArg != "u-1" {
		t.Errorf("HasCompleted のユーザーID = %q, want %q", gate.hasCompletedArg, "u-1")
	}
}

func TestOrchestrator_AuthenticatedCompleteShowsMain(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return true },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))

	if o.View() != ViewMain {
		t.Errorf("view = %s, want main", o.View())
	}
}

func TestOrchestrator_CompletionTriggerSwitchesToMain(t *testing.T) {
	// オンボーディング中に完了通知が来たら、再起動なしでMainへ遷移する
	sessions := &fakeSessionEvents{}
	completed := false
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return completed },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))
	if o.View() != ViewOnboarding {
		t.Fatalf("前提条件: view = %s, want onboarding", o.View())
	}

	completed = true
	gate.triggerCompletion()

	if o.View() != ViewMain {
		t.Errorf("view = %s, want main", o.View())
	}
}

func TestOrchestrator_LogoutResetsWizardAndShowsAuth(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return true },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))
	if o.View() != ViewMain {
		t.Fatalf("前提条件: view = %s, want main", o.View())
	}

	sessions.emit(session.Event{Status: model.AuthStatusUnauthenticated})

	if o.View() != ViewAuth {
		t.Errorf("view = %s, want auth", o.View())
	}
	if gate.resetCalls == 0 {
		t.Error("ログアウト時に Reset が呼ばれていない")
	}
}

func TestOrchestrator_UserSwitchResetsAndRechecks(t *testing.T) {
	sessions := &fakeSessionEvents{}
	completionByUser := map[string]bool{"u-1": true, "u-2": false}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool {
			return completionByUser[userID]
		},
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))
	if o.View() != ViewMain {
		t.Fatalf("前提条件: view = %s, want main", o.View())
	}

	sessions.emit(session.Event{Status: model.AuthStatusUnauthenticated})
	resetsAfterLogout := gate.resetCalls

	sessions.emit(authenticated("u-2"))

	// 前ユーザーの完了状態がリークせず、u-2は再チェックされてオンボーディングへ
	if o.View() != ViewOnboarding {
		t.Errorf("view = %s, want onboarding", o.View())
	}
	if gate.resetCalls <= 0 || gate.resetCalls < resetsAfterLogout {
		t.Errorf("Reset の呼び出し回数 = %d", gate.resetCalls)
	}
	if gate.hasCompletedArg != "u-2" {
		t.Errorf("HasCompleted のユーザーID = %q, want %q", gate.hasCompletedArg, "u-2")
	}
}

func TestOrchestrator_FreshLoginInvalidatesCompletionCache(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	ev := authenticated("u-1")
	ev.Fresh = true
	sessions.emit(ev)

	if gate.invalidateCalls != 1 {
		t.Errorf("InvalidateCache の呼び出し回数 = %d, want 1", gate.invalidateCalls)
	}
	if o.View() != ViewOnboarding {
		t.Errorf("view = %s, want onboarding", o.View())
	}
}

func TestOrchestrator_SessionRestoreKeepsCompletionCache(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return true },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(authenticated("u-1"))

	if gate.invalidateCalls != 0 {
		t.Errorf("復元で InvalidateCache が呼ばれた: %d 回", gate.invalidateCalls)
	}
	if o.View() != ViewMain {
		t.Errorf("view = %s, want main", o.View())
	}
}

func TestOrchestrator_CheckingShowsLoading(t *testing.T) {
	sessions := &fakeSessionEvents{}
	o := NewOrchestrator(sessions, &mockGate{}, newTestLogger())

	sessions.emit(session.Event{Status: model.AuthStatusChecking})

	if o.View() != ViewLoading {
		t.Errorf("view = %s, want loading", o.View())
	}
}

func TestOrchestrator_SubscribeNotifiedOnlyOnChange(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{
		hasCompletedFn: func(ctx context.Context, userID string) bool { return true },
	}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	var views []View
	o.Subscribe(func(v View) { views = append(views, v) })

	// checking中はLoadingのまま（初期値と同じなので通知なし）
	sessions.emit(session.Event{Status: model.AuthStatusChecking})
	sessions.emit(authenticated("u-1"))

	if len(views) != 1 {
		t.Fatalf("通知回数 = %d, want 1, got %v", len(views), views)
	}
	if views[0] != ViewMain {
		t.Errorf("views[0] = %s, want main", views[0])
	}
}

func TestOrchestrator_CompletionTriggerIgnoredWhenUnauthenticated(t *testing.T) {
	sessions := &fakeSessionEvents{}
	gate := &mockGate{}
	o := NewOrchestrator(sessions, gate, newTestLogger())

	sessions.emit(session.Event{Status: model.AuthStatusUnauthenticated})
	gate.triggerCompletion()

	if o.View() != ViewAuth {
		t.Errorf("view = %s, want auth", o.View())
	}
	if gate.checkCalls != 0 {
		t.Errorf("未認証で HasCompleted が呼ばれた: %d 回", gate.checkCalls)
	}
}
