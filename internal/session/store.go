// Package session は認証状態のブートストラップと維持を提供する。
// 認証状態の遷移は明示的なイベント購読で外部へ通知され、
// トークンの書き込みはこのパッケージのみが行う（単一ライター規約）。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/sparkle/internal/api"
	"github.com/hitoshi/sparkle/internal/model"
)

// Event は認証状態の遷移を表す。状態が確定するたびに購読者へ通知される。
// Freshはログイン・サインアップによる新規認証のときtrueになる
// （保存済みトークンからの復元ではfalse）。
type Event struct {
	Status model.AuthStatus
	User   *model.User
	Fresh  bool
}

// AuthAPI は認証エンドポイントのインターフェース。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.AuthTokens, error)
	Signup(ctx context.Context, params api.SignupParams) (*api.AuthTokens, error)
	Me(ctx context.Context) (*model.User, error)
}

// TokenStore は認証トークンの永続化インターフェース。
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Store は現在のユーザー識別と認証状態を保持する。
// 不変条件: Userが存在する ⇔ StatusがAuthenticated。
type Store struct {
	api    AuthAPI
	tokens TokenStore
	logger *slog.Logger

	mu     sync.Mutex
	status model.AuthStatus
	user   *model.User
	subs   []func(Event)
}

// NewStore はStoreの新しいインスタンスを生成する。初期状態はUnknown。
func NewStore(authAPI AuthAPI, tokens TokenStore, logger *slog.Logger) *Store {
	return &Store{
		api:    authAPI,
		tokens: tokens,
		logger: logger,
		status: model.AuthStatusUnknown,
	}
}

// Status は現在の認証状態を返す。
func (s *Store) Status() model.AuthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// User は現在のユーザーを返す。未認証の場合はnil。
func (s *Store) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// IsAuthenticated は認証済みかどうかを返す。
func (s *Store) IsAuthenticated() bool {
	return s.Status() == model.AuthStatusAuthenticated
}

// Subscribe は認証状態の遷移通知を購読する。
// 通知は状態を変更した操作の中で同期的に呼び出される。
func (s *Store) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// setState は状態を更新し購読者へ通知する。
// userはstatusがAuthenticatedの場合のみ非nilを許可する。
func (s *Store) setState(status model.AuthStatus, user *model.User, fresh bool) {
	if status != model.AuthStatusAuthenticated {
		user = nil
	}

	s.mu.Lock()
	s.status = status
	s.user = user
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	ev := Event{Status: status, User: user, Fresh: fresh}
	for _, fn := range subs {
		fn(ev)
	}
}

// CheckAuth は保存済みトークンから認証状態を復元する。
// プロセス起動時に1回実行され、オンボーディング完了後の再確認にも使用できる。
// すべての失敗は「未認証」へ正規化される（フェイルクローズ）。
func (s *Store) CheckAuth(ctx context.Context) {
	s.setState(model.AuthStatusChecking, nil, false)

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.Warn("トークンの読み取りに失敗しました。未認証として扱います",
			slog.String("error", err.Error()),
		)
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return
	}
	if token == "" {
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		// ネットワーク・401・パースいずれの失敗でもトークンを無効とみなす
		s.logger.Info("保存済みトークンでのユーザー取得に失敗しました。トークンを破棄します",
			slog.String("error", err.Error()),
		)
		if derr := s.tokens.DeleteToken(ctx); derr != nil {
			s.logger.Warn("トークンの破棄に失敗しました", slog.String("error", derr.Error()))
		}
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return
	}

	s.logger.Info("セッションを復元しました", slog.String("user_id", user.ID))
	s.setState(model.AuthStatusAuthenticated, user, false)
}

// Login はメールアドレスとパスワードでログインする。
// 失敗時は未認証状態へ戻し、エラーを呼び出し元へ返す（表示・リトライは呼び出し元の判断）。
// 二重送信の抑止は呼び出し元の責務とする。
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.setState(model.AuthStatusChecking, nil, false)

	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return fmt.Errorf("ログインに失敗しました: %w", err)
	}

	return s.completeAuth(ctx, tokens.AccessToken)
}

// Signup は新規ユーザーを登録する。成功時は即時ログインと等価に扱う。
func (s *Store) Signup(ctx context.Context, params api.SignupParams) error {
	s.setState(model.AuthStatusChecking, nil, false)

	tokens, err := s.api.Signup(ctx, params)
	if err != nil {
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return fmt.Errorf("サインアップに失敗しました: %w", err)
	}

	return s.completeAuth(ctx, tokens.AccessToken)
}

// completeAuth はトークンを永続化し、ユーザー情報を取得して認証を確定する。
func (s *Store) completeAuth(ctx context.Context, accessToken string) error {
	if err := s.tokens.SetToken(ctx, accessToken); err != nil {
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		if derr := s.tokens.DeleteToken(ctx); derr != nil {
			s.logger.Warn("トークンの破棄に失敗しました", slog.String("error", derr.Error()))
		}
		s.setState(model.AuthStatusUnauthenticated, nil, false)
		return fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	s.logger.Info("ログインしました", slog.String("user_id", user.ID))
	s.setState(model.AuthStatusAuthenticated, user, true)
	return nil
}

// Logout はトークンとユーザーを無条件に破棄する。
// トークン削除に失敗してもローカル状態は必ず未認証になる
// （サーバー到達不能で認証済みのまま取り残されることを防ぐ）。
func (s *Store) Logout(ctx context.Context) {
	if err := s.tokens.DeleteToken(ctx); err != nil {
		s.logger.Warn("ログアウト時のトークン削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("ログアウトしました")
	s.setState(model.AuthStatusUnauthenticated, nil, false)
}
