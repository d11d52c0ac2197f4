package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はクライアント本体を起動することを示す。
	CommandRun Command = "run"
	// CommandMigrate はローカル状態DBのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は診断サーバーへのヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "run":
		return CommandRun
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandRun
	}
}
