package onboarding

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/hitoshi/sparkle/internal/model"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// --- モック ---

type mockBlueprintAPI struct {
	getFn      func(ctx context.Context) (*model.BrandBlueprint, error)
	createFn   func(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error)
	updateFn   func(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error)
	getCalls   int
	createCnt  int
	updateCnt  int
}

func (m *mockBlueprintAPI) GetBlueprint(ctx context.Context) (*model.BrandBlueprint, error) {
	m.getCalls++
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return nil, model.ErrNotFound
}
func (m *mockBlueprintAPI) CreateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
	m.createCnt++
	if m.createFn != nil {
		return m.createFn(ctx, payload)
	}
	return &model.BrandBlueprint{}, nil
}
func (m *mockBlueprintAPI) UpdateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
	m.updateCnt++
	if m.updateFn != nil {
		return m.updateFn(ctx, payload)
	}
	return &model.BrandBlueprint{}, nil
}

type mockCompletionStore struct {
	flags  map[string]bool
	getErr error
	setErr error
}

func newMockCompletionStore() *mockCompletionStore {
	return &mockCompletionStore{flags: make(map[string]bool)}
}

func (m *mockCompletionStore) CompletionFlag(ctx context.Context, userID string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	return m.flags[userID], nil
}
func (m *mockCompletionStore) SetCompletionFlag(ctx context.Context, userID string, completed bool) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.flags[userID] = completed
	return nil
}
func (m *mockCompletionStore) DeleteCompletionFlag(ctx context.Context, userID string) error {
	delete(m.flags, userID)
	return nil
}

// --- テスト ---

func TestReset_RestoresDocumentedDefaults(t *testing.T) {
	g := NewGate(&mockBlueprintAPI{}, newMockCompletionStore(), newTestLogger())

	g.SetTopics([]string{"AI", "Leadership"})
	g.SetMainGoal("become_top_voice")
	g.SetTone("warm_relatable")
	g.SetInspirations("alice, bob")
	g.SetPostingFrequency(5)
	g.SetPreferredDays([]string{"tuesday"})
	g.SetPreferredTime(9)
	g.SetAskBeforePublish(false)

	g.Reset()

	w := g.Wizard()
	if len(w.Topics) != 0 {
		t.Errorf("Topics = %v, want []", w.Topics)
	}
	if w.MainGoal != "" {
		t.Errorf("MainGoal = %q, want empty", w.MainGoal)
	}
	if w.Tone != "" {
		t.Errorf("Tone = %q, want empty", w.Tone)
	}
	if w.Inspirations != "" {
		t.Errorf("Inspirations = %q, want empty", w.Inspirations)
	}
	if w.PostingFrequency != 3 {
		t.Errorf("PostingFrequency = %d, want 3", w.PostingFrequency)
	}
	if !reflect.DeepEqual(w.PreferredDays, []string{"monday", "wednesday", "friday"}) {
		t.Errorf("PreferredDays = %v, want [monday wednesday friday]", w.PreferredDays)
	}
	if w.PreferredTime != 14 {
		t.Errorf("PreferredTime = %d, want 14", w.PreferredTime)
	}
	if !w.AskBeforePublish {
		t.Error("AskBeforePublish = false, want true")
	}
}

func TestHasCompleted_CacheHit_NoNetworkCall(t *testing.T) {
	apiMock := &mockBlueprintAPI{}
	flags := newMockCompletionStore()
	flags.flags["u-1"] = true

	g := NewGate(apiMock, flags, newTestLogger())

	if !g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = false, want true（キャッシュヒット）")
	}
	if apiMock.getCalls != 0 {
		t.Errorf("GetBlueprint の呼び出し回数 = %d, want 0", apiMock.getCalls)
	}
}

func TestInvalidateCache_ForcesRemoteRecheck(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return nil, model.ErrNotFound
		},
	}
	flags := newMockCompletionStore()
	flags.flags["u-1"] = true

	g := NewGate(apiMock, flags, newTestLogger())
	g.InvalidateCache(context.Background(), "u-1")

	// キャッシュ破棄後はリモートへ問い合わせ、未作成なら未完了になる
	if g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = true, want false（キャッシュ破棄後）")
	}
	if apiMock.getCalls != 1 {
		t.Errorf("GetBlueprint の呼び出し回数 = %d, want 1", apiMock.getCalls)
	}
}

func TestHasCompleted_NotFound_ReturnsFalseWithoutCaching(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return nil, model.ErrNotFound
		},
	}
	flags := newMockCompletionStore()
	g := NewGate(apiMock, flags, newTestLogger())

	if g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = true, want false（設計図未作成）")
	}
	if flags.flags["u-1"] {
		t.Error("完了フラグがキャッシュされている。404ではキャッシュしない")
	}
}

func TestHasCompleted_IncompleteBlueprint_NoCaching(t *testing.T) {
	// 主目標が空の設計図は未完了。キャッシュもしない
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return &model.BrandBlueprint{
				Topics:   []string{"AI"},
				MainGoal: "",
				Tone:     "warm_relatable",
			}, nil
		},
	}
	flags := newMockCompletionStore()
	g := NewGate(apiMock, flags, newTestLogger())

	if g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = true, want false（main_goalが空）")
	}
	if flags.flags["u-1"] {
		t.Error("不完全な設計図で完了フラグがキャッシュされている")
	}
}

func TestHasCompleted_CompleteBlueprint_CachesAndReturnsTrue(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return &model.BrandBlueprint{
				Topics:   []string{"AI"},
				MainGoal: "become_top_voice",
				Tone:     "warm_relatable",
			}, nil
		},
	}
	flags := newMockCompletionStore()
	g := NewGate(apiMock, flags, newTestLogger())

	if !g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = false, want true")
	}
	if !flags.flags["u-1"] {
		t.Error("完了フラグがキャッシュされていない")
	}

	// 2回目はキャッシュヒットでネットワークを呼ばない
	before := apiMock.getCalls
	if !g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted（2回目） = false, want true")
	}
	if apiMock.getCalls != before {
		t.Errorf("GetBlueprint の呼び出し回数が増えた: %d → %d", before, apiMock.getCalls)
	}
}

func TestHasCompleted_ServerError_FailsClosed(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return nil, errors.New("500 internal server error")
		},
	}
	g := NewGate(apiMock, newMockCompletionStore(), newTestLogger())

	if g.HasCompleted(context.Background(), "u-1") {
		t.Error("HasCompleted = true, want false（サーバーエラーはフェイルクローズ）")
	}
}

func TestMarkComplete_IncrementsTriggerAndNotifies(t *testing.T) {
	g := NewGate(&mockBlueprintAPI{}, newMockCompletionStore(), newTestLogger())

	notified := 0
	g.Subscribe(func() { notified++ })

	if g.CompletionTrigger() != 0 {
		t.Errorf("初期トリガー = %d, want 0", g.CompletionTrigger())
	}

	g.MarkComplete(context.Background(), "u-1")
	g.MarkComplete(context.Background(), "u-1")

	if g.CompletionTrigger() != 2 {
		t.Errorf("トリガー = %d, want 2（単調増加）", g.CompletionTrigger())
	}
	if notified != 2 {
		t.Errorf("通知回数 = %d, want 2", notified)
	}
}

func TestSubmitBlueprint_MissingRequiredFields_NoNetworkCall(t *testing.T) {
	apiMock := &mockBlueprintAPI{}
	g := NewGate(apiMock, newMockCompletionStore(), newTestLogger())

	err := g.SubmitBlueprint(context.Background(), "u-1")
	if err == nil {
		t.Fatal("expected error for empty wizard, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeBlueprintIncomplete {
		t.Errorf("err = %v, want BLUEPRINT_INCOMPLETE", err)
	}
	if apiMock.getCalls+apiMock.createCnt+apiMock.updateCnt != 0 {
		t.Error("検証エラー時にネットワークが呼ばれている")
	}
}

func TestSubmitBlueprint_NewUser_CreatesAndMarksComplete(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return nil, model.ErrNotFound
		},
		createFn: func(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
			if !reflect.DeepEqual(payload.Topics, []string{"AI"}) {
				t.Errorf("payload.Topics = %v, want [AI]", payload.Topics)
			}
			if !reflect.DeepEqual(payload.Inspirations, []string{"alice", "bob"}) {
				t.Errorf("payload.Inspirations = %v, want [alice bob]", payload.Inspirations)
			}
			if payload.PostingPreferences.PostsPerWeek != 3 {
				t.Errorf("PostsPerWeek = %d, want 3", payload.PostingPreferences.PostsPerWeek)
			}
			return &model.BrandBlueprint{}, nil
		},
	}
	flags := newMockCompletionStore()
	g := NewGate(apiMock, flags, newTestLogger())

	g.SetTopics([]string{"AI"})
	g.SetMainGoal("become_top_voice")
	g.SetTone("warm_relatable")
	g.SetInspirations(" alice , bob , ")

	if err := g.SubmitBlueprint(context.Background(), "u-1"); err != nil {
		t.Fatalf("SubmitBlueprint がエラーを返した: %v", err)
	}

	if apiMock.createCnt != 1 {
		t.Errorf("CreateBlueprint の呼び出し回数 = %d, want 1", apiMock.createCnt)
	}
	if apiMock.updateCnt != 0 {
		t.Errorf("UpdateBlueprint の呼び出し回数 = %d, want 0", apiMock.updateCnt)
	}
	if !flags.flags["u-1"] {
		t.Error("送信成功後に完了フラグが記録されていない")
	}
	if g.CompletionTrigger() != 1 {
		t.Errorf("トリガー = %d, want 1", g.CompletionTrigger())
	}
}

func TestSubmitBlueprint_ExistingBlueprint_Updates(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return &model.BrandBlueprint{ID: "bp-1"}, nil
		},
	}
	g := NewGate(apiMock, newMockCompletionStore(), newTestLogger())

	g.SetTopics([]string{"AI"})
	g.SetMainGoal("increase_visibility")
	g.SetTone("assertive_expert")

	if err := g.SubmitBlueprint(context.Background(), "u-1"); err != nil {
		t.Fatalf("SubmitBlueprint がエラーを返した: %v", err)
	}

	if apiMock.updateCnt != 1 {
		t.Errorf("UpdateBlueprint の呼び出し回数 = %d, want 1", apiMock.updateCnt)
	}
	if apiMock.createCnt != 0 {
		t.Errorf("CreateBlueprint の呼び出し回数 = %d, want 0", apiMock.createCnt)
	}
}

func TestSubmitBlueprint_CreateFails_DoesNotMarkComplete(t *testing.T) {
	apiMock := &mockBlueprintAPI{
		getFn: func(ctx context.Context) (*model.BrandBlueprint, error) {
			return nil, model.ErrNotFound
		},
		createFn: func(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
			return nil, errors.New("server error")
		},
	}
	flags := newMockCompletionStore()
	g := NewGate(apiMock, flags, newTestLogger())

	g.SetTopics([]string{"AI"})
	g.SetMainGoal("build_network")
	g.SetTone("innovative_creative")

	err := g.SubmitBlueprint(context.Background(), "u-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if flags.flags["u-1"] {
		t.Error("送信失敗にもかかわらず完了フラグが記録されている")
	}
	if g.CompletionTrigger() != 0 {
		t.Errorf("トリガー = %d, want 0", g.CompletionTrigger())
	}
}
