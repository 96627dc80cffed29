package client

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const dmUsage = "usage: /dm <username> <message>"

var helpText = []string{
	"== help menu ==",
	"/help                 : help menu.  you're here.",
	"/users                : lists all users currently connected.",
	"/me <text>            : emote command.  ex. /me does a dance -> [user does a dance]",
	"/dm <username> <text> : direct messages <text> to <username>",
	"/q                    : quit the application",
}

// Action is what a typed line asks the client to do. Any combination of
// fields may be empty; an empty Action does nothing.
type Action struct {
	Packet  *protocol.Packet
	Notices []string
	Quit    bool
}

// ParseLine classifies one typed line. Lines starting with "/" follow the
// command grammar, anything else is chat.
func ParseLine(line string) Action {
	if !strings.HasPrefix(line, "/") {
		if strings.TrimSpace(line) == "" {
			return Action{}
		}
		return sendAction(protocol.KindChat, line)
	}

	command, rest, _ := strings.Cut(line, " ")
	switch command {
	case "/help", "/h":
		return Action{Notices: helpText}
	case "/users":
		return sendAction(protocol.KindCommand, "users")
	case "/me":
		text := strings.TrimSpace(rest)
		if text == "" {
			return Action{}
		}
		return sendAction(protocol.KindEmote, text)
	case "/dm":
		target, message, ok := splitDM(rest)
		if !ok {
			return Action{Notices: []string{dmUsage}}
		}
		return sendAction(protocol.KindDM, target+" "+message)
	case "/q":
		return Action{Quit: true}
	default:
		return Action{Notices: []string{fmt.Sprintf("command %s not recognized.", command)}}
	}
}

func sendAction(kind protocol.Kind, payload string) Action {
	return Action{Packet: lo.ToPtr(protocol.New(kind, payload))}
}

func splitDM(rest string) (target, message string, ok bool) {
	rest = strings.TrimSpace(rest)
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		return "", "", false
	}
	target, message = rest[:idx], strings.TrimSpace(rest[idx:])
	return target, message, target != "" && message != ""
}
