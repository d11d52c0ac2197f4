// Package localstore はクライアント側の永続状態を管理する。
// 認証トークンとオンボーディング完了フラグをSQLiteに保存する。
// TTLは設けず、明示的なログアウト・リセット操作でのみ削除される。
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store はローカル永続状態へのアクセスを提供する。
// 書き込みは単一プロセス内の単一ライターを前提とする
// （トークンはセッションストアのみ、完了フラグはオンボーディングゲートのみが書く）。
type Store struct {
	db *sql.DB
}

// Open はSQLiteデータベースを開きStoreを生成する。
// sql.Openは接続を試行しないため、実際の確認にはPingを使用すること。
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// SQLiteは単一コネクションで使う。複数コネクションはロック競合の原因になる。
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの接続を確認する。ヘルスチェックに使用する。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping state database: %w", err)
	}
	return nil
}

// Token は保存済みの認証トークンを返す。未保存の場合は空文字列を返す。
func (s *Store) Token(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM auth_state WHERE id = 1`,
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("トークンの読み取りに失敗しました: %w", err)
	}
	return token, nil
}

// SetToken は認証トークンを保存する。既存のトークンは上書きされる。
func (s *Store) SetToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_state (id, token, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteToken は保存済みの認証トークンを削除する。未保存でもエラーにならない。
func (s *Store) DeleteToken(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}
	return nil
}

// CompletionFlag は指定ユーザーのオンボーディング完了フラグを返す。
// 未記録の場合はfalseを返す。
// フラグをユーザーIDでスコープすることで、リセット呼び出し漏れによる
// アカウント間の完了状態リークを構造的に防ぐ。
func (s *Store) CompletionFlag(ctx context.Context, userID string) (bool, error) {
	var completed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT completed FROM onboarding_flags WHERE user_id = ?`, userID,
	).Scan(&completed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("完了フラグの読み取りに失敗しました: %w", err)
	}
	return completed, nil
}

// SetCompletionFlag は指定ユーザーのオンボーディング完了フラグを保存する。
func (s *Store) SetCompletionFlag(ctx context.Context, userID string, completed bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO onboarding_flags (user_id, completed, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET completed = excluded.completed, updated_at = excluded.updated_at`,
		userID, completed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("完了フラグの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteCompletionFlag は指定ユーザーの完了フラグを削除する。
func (s *Store) DeleteCompletionFlag(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM onboarding_flags WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("完了フラグの削除に失敗しました: %w", err)
	}
	return nil
}
