package notice

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, KeyChatLine, "%[1]s: %[2]s")
	message.SetString(lang, KeyMemberLeft, "%[1]s left %[2]s")
	message.SetString(lang, KeyHostLeft, "%[1]s left %[2]s\nThe host left, closing chat room %[2]s")
	message.SetString(lang, KeyRoomExists, "Room %s already exists")
	message.SetString(lang, KeyRoomNotFound, "Room %s does not exist")
	message.SetString(lang, KeyRoomFull, "Room %s is full")
	message.SetString(lang, KeyCompleted, "Request completed.")
	message.SetString(lang, KeyFailed, "Could not complete the request.\nPlease try again.")
	message.SetString(lang, KeyMalformed, "The request could not be read.")
}
