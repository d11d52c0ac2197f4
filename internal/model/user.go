// Package model はドメインモデルを定義する。
package model

import "time"

// User はSparkleの利用ユーザーを表す。
// バックエンドのGET /auth/meレスポンスに対応する。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthStatus は認証状態を表す。
type AuthStatus string

const (
	// AuthStatusUnknown はまだ認証チェックが行われていない状態。プロセス起動直後の初期値。
	AuthStatusUnknown AuthStatus = "unknown"
	// AuthStatusChecking は認証チェックが進行中の状態。
	AuthStatusChecking AuthStatus = "checking"
	// AuthStatusAuthenticated は認証済みの状態。Userが必ず存在する。
	AuthStatusAuthenticated AuthStatus = "authenticated"
	// AuthStatusUnauthenticated は未認証の状態。Userは存在しない。
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
)
