package domain

import "time"

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
	// NoticeTerminal announces that the session has been ended.
	NoticeTerminal
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "info"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	case NoticeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Notice is an operator-visible message raised by the engine.
type Notice struct {
	Level   NoticeLevel
	Message string
	At      time.Time
}

func NewNotice(level NoticeLevel, message string) Notice {
	return Notice{Level: level, Message: message, At: time.Now()}
}

func (n Notice) String() string {
	return "[" + n.Level.String() + "] " + n.Message
}
