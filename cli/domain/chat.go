package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	localIDPrefix   = "local-"
	ChatEchoWindow  = 5 * time.Second
	defaultChatSize = 500
)

type Role int

const (
	RoleViewer Role = iota
	RoleSeller
)

func (r Role) String() string {
	if r == RoleSeller {
		return "seller"
	}
	return "viewer"
}

func ParseRole(s string) Role {
	if strings.EqualFold(s, "seller") {
		return RoleSeller
	}
	return RoleViewer
}

type ChatMessage struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Role       Role
	CreatedAt  time.Time
	// Pending marks an optimistic local echo awaiting the hub's copy.
	Pending bool
	// Unsent marks an echo created while the channel was offline; no
	// confirmation will ever arrive for it.
	Unsent bool
}

func (m ChatMessage) IsLocal() bool {
	return strings.HasPrefix(m.ID, localIDPrefix)
}

func (m ChatMessage) String() string {
	s := m.SenderName + ": " + m.Content
	switch {
	case m.Unsent:
		return s + " (unsent)"
	case m.Pending:
		return s + " (sending)"
	default:
		return s
	}
}

// ChatLog holds speculative and confirmed messages in display order. Not safe
// for concurrent use.
type ChatLog struct {
	messages []ChatMessage
	limit    int
	now      func() time.Time
}

func NewChatLog(limit int) *ChatLog {
	if limit <= 0 {
		limit = defaultChatSize
	}
	return &ChatLog{limit: limit, now: time.Now}
}

func (l *ChatLog) WithClock(now func() time.Time) *ChatLog {
	l.now = now
	return l
}

// AppendPending records an optimistic echo of a locally sent message.
func (l *ChatLog) AppendPending(role Role, senderID, senderName, content string, unsent bool) (ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	msg := ChatMessage{
		ID:         localIDPrefix + ulid.Make().String(),
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Role:       role,
		CreatedAt:  l.now(),
		Pending:    !unsent,
		Unsent:     unsent,
	}
	l.append(msg)
	return msg, nil
}

// Confirm applies an authoritative message from the hub. It reports false
// when the message is a replay of one already in the log. Otherwise every
// pending echo of the same role is discarded before the message is appended.
func (l *ChatLog) Confirm(msg ChatMessage) bool {
	if l.seen(msg) {
		return false
	}
	msg.Pending = false
	msg.Unsent = false
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}

	kept := l.messages[:0]
	for _, m := range l.messages {
		if m.Pending && m.Role == msg.Role {
			continue
		}
		kept = append(kept, m)
	}
	l.messages = kept
	l.append(msg)
	return true
}

// MarkUnsent flags a pending echo whose send failed. Unsent echoes are never
// reconciled away by Confirm.
func (l *ChatLog) MarkUnsent(id string) bool {
	for i := range l.messages {
		if l.messages[i].ID == id && l.messages[i].Pending {
			l.messages[i].Pending = false
			l.messages[i].Unsent = true
			return true
		}
	}
	return false
}

func (l *ChatLog) seen(msg ChatMessage) bool {
	for _, m := range l.messages {
		if m.Pending || m.Unsent {
			continue
		}
		if msg.ID != "" {
			if m.ID == msg.ID {
				return true
			}
			continue
		}
		if m.SenderID == msg.SenderID && m.Content == msg.Content && within(m.CreatedAt, msg.CreatedAt, ChatEchoWindow) {
			return true
		}
	}
	return false
}

func (l *ChatLog) append(msg ChatMessage) {
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.limit; over > 0 {
		l.messages = append([]ChatMessage(nil), l.messages[over:]...)
	}
}

func (l *ChatLog) Messages() []ChatMessage {
	out := make([]ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *ChatLog) Pending() int {
	n := 0
	for _, m := range l.messages {
		if m.Pending {
			n++
		}
	}
	return n
}

func (l *ChatLog) Len() int {
	return len(l.messages)
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
