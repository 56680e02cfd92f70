package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandHarvest は1回の収穫を実行して終了することを示す。
	CommandHarvest Command = "harvest"
	// CommandWorker は定期収穫ループと運用サーバーを起動することを示す。
	CommandWorker Command = "worker"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandHarvestを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandHarvest
	}

	switch args[0] {
	case "harvest":
		return CommandHarvest
	case "worker":
		return CommandWorker
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandHarvest
	}
}
