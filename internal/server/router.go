package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const usersCommand = "users"

// Router interprets decoded packets: it applies session state transitions on
// the registry and produces the outbound packets. It runs on the hub goroutine
// only.
type Router struct {
	registry  *Registry
	log       *slog.Logger
	metrics   *Metrics
	moderator *Moderator
	failed    []*Session
}

// NewRouter creates a Router over registry. metrics and moderator may be nil.
func NewRouter(registry *Registry, log *slog.Logger, metrics *Metrics, moderator *Moderator) *Router {
	return &Router{
		registry:  registry,
		log:       log,
		metrics:   metrics,
		moderator: moderator,
	}
}

// Dispatch handles one packet received from s. Application errors are
// reported to s as ERROR packets; fatal ones also end the session.
func (r *Router) Dispatch(s *Session, pkt protocol.Packet) {
	r.metrics.packetReceived(pkt.Kind)

	var err error
	if s.Registered() {
		err = r.dispatchActive(s, pkt)
	} else {
		err = r.dispatchUnregistered(s, pkt)
	}
	if err == nil {
		return
	}

	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		r.log.Error("Packet handling failed", "session", s.ID, "kind", pkt.Kind, "error", err)
		return
	}

	r.log.Debug("Rejected packet", "session", s.ID, "kind", pkt.Kind, "reason", appErr.Message)
	r.send(s, protocol.New(protocol.KindError, fit(appErr.Message)))
	if appErr.Fatal {
		r.Disconnect(s, appErr.Message)
	}
}

func (r *Router) dispatchUnregistered(s *Session, pkt protocol.Packet) error {
	switch pkt.Kind {
	case protocol.KindHello:
		return r.hello(s, pkt.Payload)
	case protocol.KindError:
		r.clientError(s, pkt.Payload)
		return nil
	case protocol.KindAbort:
		return reject("ABORT packets are server-only.")
	case protocol.KindGoodbye, protocol.KindChat, protocol.KindEmote, protocol.KindDM, protocol.KindCommand:
		return reject("You must send HELLO before %s.", pkt.Kind)
	default:
		return fmt.Errorf("%w: %s", protocol.ErrInvalidKind, pkt.Kind)
	}
}

func (r *Router) dispatchActive(s *Session, pkt protocol.Packet) error {
	switch pkt.Kind {
	case protocol.KindHello:
		return reject("Already logged in as '%s'.", s.username)
	case protocol.KindGoodbye:
		r.Disconnect(s, "goodbye")
		return nil
	case protocol.KindChat:
		r.chat(s, pkt.Payload)
		return nil
	case protocol.KindEmote:
		r.emote(s, pkt.Payload)
		return nil
	case protocol.KindDM:
		return r.directMessage(s, pkt.Payload)
	case protocol.KindCommand:
		return r.command(s, pkt.Payload)
	case protocol.KindError:
		r.clientError(s, pkt.Payload)
		return nil
	case protocol.KindAbort:
		return reject("ABORT packets are server-only.")
	default:
		return fmt.Errorf("%w: %s", protocol.ErrInvalidKind, pkt.Kind)
	}
}

func (r *Router) hello(s *Session, payload string) error {
	name := strings.TrimSpace(payload)
	if name == "" {
		return rejectAndClose("Username must not be empty.")
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return rejectAndClose("Username '%s' must not contain spaces.", name)
	}

	if err := r.registry.Bind(s, name); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			r.log.Info("Duplicate username refused", "addr", s.addr, "username", name)
			return rejectAndClose("Username '%s' is already taken.", name)
		}
		return err
	}

	r.log.Info("User joined the chat", "session", s.ID, "username", name, "users", r.registry.ActiveLen())
	r.send(s, protocol.New(protocol.KindHello, fit(fmt.Sprintf("Welcome, %s!", name))))
	r.Broadcast(protocol.New(protocol.KindChat, fit(fmt.Sprintf("*** %s has joined the chat. ***", name))), s)
	return nil
}

func (r *Router) chat(s *Session, text string) {
	line := fit(fmt.Sprintf("%s: %s", s.username, r.moderator.Censor(text)))
	r.log.Debug("Broadcasting chat", "username", s.username, "payload", line)
	r.Broadcast(protocol.New(protocol.KindChat, line), nil)
}

func (r *Router) emote(s *Session, text string) {
	line := fit(fmt.Sprintf("[%s %s]", s.username, r.moderator.Censor(text)))
	r.log.Debug("Broadcasting emote", "username", s.username, "payload", line)
	r.Broadcast(protocol.New(protocol.KindEmote, line), nil)
}

func (r *Router) directMessage(s *Session, payload string) error {
	target, message, ok := splitRecipient(payload)
	if !ok {
		return reject("usage: /dm <username> <message>")
	}

	recipient := r.registry.FindByUsername(target)
	if recipient == nil {
		return reject("User '%s' not online.", target)
	}

	pkt := protocol.New(protocol.KindDM,
		fit(fmt.Sprintf("%s -> %s: %s", s.username, recipient.username, r.moderator.Censor(message))))
	r.send(s, pkt)
	if recipient.ID != s.ID {
		r.send(recipient, pkt)
	}
	return nil
}

// splitRecipient separates the first whitespace-delimited token from the rest.
func splitRecipient(payload string) (target, message string, ok bool) {
	payload = strings.TrimSpace(payload)
	idx := strings.IndexFunc(payload, unicode.IsSpace)
	if idx < 0 {
		return "", "", false
	}

	target = payload[:idx]
	message = strings.TrimSpace(payload[idx:])
	if target == "" || message == "" {
		return "", "", false
	}
	return target, message, true
}

func (r *Router) command(s *Session, payload string) error {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return reject("Unknown command ''.")
	}

	switch strings.ToLower(fields[0]) {
	case usersCommand:
		r.send(s, protocol.New(protocol.KindChat, r.userList()))
		return nil
	default:
		return reject("Unknown command '%s'.", fields[0])
	}
}

func (r *Router) userList() string {
	names := r.registry.Usernames()
	lines := make([]string, 0, len(names)+1)
	lines = append(lines, fmt.Sprintf("Total users: %d", len(names)))
	lines = append(lines, names...)
	return fit(strings.Join(lines, "\n"))
}

// fit cuts line to the longest UTF-8 prefix that still fits one packet.
func fit(line string) string {
	if len(line) <= protocol.MaxPayloadSize {
		return line
	}
	cut := protocol.MaxPayloadSize
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}

func (r *Router) clientError(s *Session, payload string) {
	r.log.Warn("Client reported an error", "session", s.ID, "username", s.username, "payload", payload)
}

// Broadcast queues pkt for every active session except exclude. A recipient
// whose queue rejects the packet is marked failed; delivery to the others
// continues.
func (r *Router) Broadcast(pkt protocol.Packet, exclude *Session) {
	for _, target := range r.registry.Active() {
		if exclude != nil && target.ID == exclude.ID {
			continue
		}
		r.send(target, pkt)
	}
}

func (r *Router) send(s *Session, pkt protocol.Packet) {
	if err := s.Send(pkt); err != nil {
		r.log.Warn("Failed to queue packet", "session", s.ID, "username", s.username, "kind", pkt.Kind, "error", err)
		r.metrics.sendFailed()
		if errors.Is(err, ErrSendQueueFull) && !s.failed {
			s.failed = true
			r.failed = append(r.failed, s)
		}
		return
	}
	r.metrics.packetSent(pkt.Kind)
}

// Disconnect removes s from the registry, closes it and, if it had joined,
// announces its departure to the remaining users. It is idempotent.
func (r *Router) Disconnect(s *Session, reason string) {
	if _, ok := r.registry.Remove(s.ID); !ok {
		return
	}
	s.close()
	r.log.Info("Session closed", "session", s.ID, "addr", s.addr, "username", s.username,
		"reason", reason, "sessions", r.registry.Len())

	if s.Registered() {
		r.Broadcast(protocol.New(protocol.KindChat, fit(fmt.Sprintf("*** %s has left the chat. ***", s.username))), nil)
	}
}

// Reap disconnects the sessions that failed a send since the last call.
func (r *Router) Reap() {
	failed := r.failed
	r.failed = nil
	for _, s := range failed {
		r.Disconnect(s, "send failed")
	}
}
