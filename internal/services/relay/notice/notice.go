// Package notice renders the human-readable text the relay sends to members
// and returns in control responses.
package notice

import (
	"strings"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	KeyChatLine     = "relay.notice.chat_line"
	KeyMemberLeft   = "relay.notice.member_left"
	KeyHostLeft     = "relay.notice.host_left"
	KeyRoomExists   = "relay.response.room_exists"
	KeyRoomNotFound = "relay.response.room_not_found"
	KeyRoomFull     = "relay.response.room_full"
	KeyCompleted    = "relay.response.completed"
	KeyFailed       = "relay.response.failed"
	KeyMalformed    = "relay.response.malformed"
)

var supportedTags = []language.Tag{
	language.English,
	language.Japanese,
}

var tagMatcher = language.NewMatcher(supportedTags)

// Default returns the default language tag.
func Default() language.Tag {
	return language.English
}

// Supported returns the list of supported language tags.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(supportedTags))
	copy(tags, supportedTags)
	return tags
}

// ResolveTag maps a locale string onto the closest supported tag.
func ResolveTag(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return Default()
	}
	parsed, err := language.Parse(locale)
	if err != nil {
		return Default()
	}
	_, index, confidence := tagMatcher.Match(parsed)
	if confidence == language.No {
		return Default()
	}
	return supportedTags[index]
}

// Notices renders relay text in one language.
type Notices struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns notices for the closest supported match of locale.
func New(locale string) *Notices {
	tag := ResolveTag(locale)
	return &Notices{tag: tag, printer: message.NewPrinter(tag)}
}

// Tag returns the language notices are rendered in.
func (n *Notices) Tag() language.Tag {
	return n.tag
}

// ChatLine prefixes a chat message with its sender's name.
func (n *Notices) ChatLine(userName, text string) string {
	return n.printer.Sprintf(KeyChatLine, userName, text)
}

// MemberLeft announces that userName left room.
func (n *Notices) MemberLeft(userName, room string) string {
	return n.printer.Sprintf(KeyMemberLeft, userName, room)
}

// HostLeft announces that the host left and room is closing.
func (n *Notices) HostLeft(userName, room string) string {
	return n.printer.Sprintf(KeyHostLeft, userName, room)
}

// Response returns the control response message for a request on room that
// ended with err. A nil err yields the completion message.
func (n *Notices) Response(room string, err error) string {
	if err == nil {
		return n.printer.Sprintf(KeyCompleted)
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeConflict:
		return n.printer.Sprintf(KeyRoomExists, room)
	case apperrors.CodeNotFound:
		return n.printer.Sprintf(KeyRoomNotFound, room)
	case apperrors.CodeCapacity:
		return n.printer.Sprintf(KeyRoomFull, room)
	case apperrors.CodeMalformed:
		return n.printer.Sprintf(KeyMalformed)
	default:
		return n.printer.Sprintf(KeyFailed)
	}
}
