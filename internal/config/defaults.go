package config

import (
	"time"

	"github.com/spf13/viper"
)

// Task names understood by the scheduler.
const (
	TaskSQLMaintenance = "sql_maintenance"
	TaskCommandSync    = "command_sync"
)

const (
	DefaultDBPath                  = "ohirun.db"
	DefaultPollTimeout             = 10 * time.Second
	DefaultLookback                = 24 * time.Hour
	DefaultRegistrationTimeout     = 15 * time.Second
	DefaultRegistrationConcurrency = 4
	DefaultHandlerTimeout          = 30 * time.Second
	DefaultGeminiModel             = "gemini-2.0-flash"
	DefaultGeminiTimeout           = 10 * time.Second
	DefaultHTTPAddr                = ":8080"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", DefaultPollTimeout)

	v.SetDefault("lunch.lookback", DefaultLookback)

	v.SetDefault("dispatch.registration_timeout", DefaultRegistrationTimeout)
	v.SetDefault("dispatch.registration_concurrency", DefaultRegistrationConcurrency)
	v.SetDefault("dispatch.handler_timeout", DefaultHandlerTimeout)

	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks."+TaskCommandSync+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskCommandSync+".schedule", "0 */30 * * * *")

	v.SetDefault("gemini.enabled", false)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.temperature", 1.0)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)
	v.SetDefault("gemini.max_retries", 1)
	v.SetDefault("gemini.retry_delay", time.Second)
	v.SetDefault("gemini.system_instruction",
		"あなたはお昼ごはんの提案に一言添えるアシスタントです。提案された店と食べ物について、親しみやすい一文だけを日本語で返してください。")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", DefaultHTTPAddr)

	v.SetDefault("messages.welcome", "🍙 おひるんです！/ohiru でお昼ごはんをランダムに決めます。/help でコマンド一覧を表示します。")
	v.SetDefault("messages.help_header", "📖 使えるコマンド")
	v.SetDefault("messages.suggestion_fmt", "🍽️ お昼の提案\n%sで%sを買うといいでしょう！")
	v.SetDefault("messages.no_options_msg", "📭 利用可能な店舗と食べ物の組み合わせがありません。/add と /link で登録してください。")
	v.SetDefault("messages.no_options_by_type_msg", "📭 指定された食べ物の種類で利用可能な店舗と食べ物の組み合わせがありません。")
	v.SetDefault("messages.no_options_by_store_msg", "📭 指定された店舗で利用可能な食べ物がありません。")
	v.SetDefault("messages.unknown_command_msg", "❌ 不明なコマンドです")
	v.SetDefault("messages.error_general_msg", "❌ コマンドの処理中にエラーが発生しました")
	v.SetDefault("messages.invalid_input_fmt", "❌ 入力エラー: %s")
}
