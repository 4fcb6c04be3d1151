package domain

type LivestreamStatus int

const (
	LivestreamScheduled LivestreamStatus = iota
	LivestreamLive
	LivestreamEnded
	LivestreamCancelled
)

func (s LivestreamStatus) String() string {
	switch s {
	case LivestreamScheduled:
		return "scheduled"
	case LivestreamLive:
		return "live"
	case LivestreamEnded:
		return "ended"
	case LivestreamCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseLivestreamStatus(s string) LivestreamStatus {
	switch s {
	case "live":
		return LivestreamLive
	case "ended":
		return LivestreamEnded
	case "cancelled":
		return LivestreamCancelled
	default:
		return LivestreamScheduled
	}
}

type Livestream struct {
	ID               string
	Title            string
	Status           LivestreamStatus
	CreditsConsumed  int
	RemainingCredits int
	ViewerCount      int
}

func NewLivestream(id string) Livestream {
	return Livestream{ID: id, Status: LivestreamScheduled}
}

func (l Livestream) IsLive() bool {
	return l.Status == LivestreamLive
}

// ApplyCredit folds a metering snapshot into the livestream. The consumed
// counter never moves backwards.
func (l *Livestream) ApplyCredit(tick CreditTick) {
	if tick.TotalConsumed > l.CreditsConsumed {
		l.CreditsConsumed = tick.TotalConsumed
	}
	l.RemainingCredits = tick.RemainingCredits
}

// CreditTick is the snapshot returned by one metering poll.
type CreditTick struct {
	Deducted         bool
	RemainingCredits int
	TotalConsumed    int
}

type Product struct {
	ID    string
	Name  string
	Price float64
}
