package notice

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Japanese

	message.SetString(lang, KeyChatLine, "%[1]s: %[2]s")
	message.SetString(lang, KeyMemberLeft, "%[1]sが%[2]sから退出しました")
	message.SetString(lang, KeyHostLeft, "%[1]sが%[2]sから退出しました\nホストが退出したため、チャットルーム:%[2]sを終了します")
	message.SetString(lang, KeyRoomExists, "部屋 %s はすでに存在します")
	message.SetString(lang, KeyRoomNotFound, "部屋 %s は存在しません")
	message.SetString(lang, KeyRoomFull, "部屋 %s は満員です")
	message.SetString(lang, KeyCompleted, "リクエストを完了しました。")
	message.SetString(lang, KeyFailed, "リクエストを完了できませんでした。\n入力し直してください。")
	message.SetString(lang, KeyMalformed, "リクエストを解析できませんでした。")
}
