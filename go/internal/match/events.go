package match

import "time"

// EventType represents the type of event pushed to participants
type EventType string

const (
	EventTypeStartGame    EventType = "startGame"
	EventTypeNewRound     EventType = "new-round"
	EventTypeResult       EventType = "result"
	EventTypeGameOver     EventType = "game-over"
	EventTypeRematchStart EventType = "rematch-start"
	EventTypeOpponentLeft EventType = "opponent-left"
)

// Event is a server push addressed to a single participant.
type Event struct {
	Room string
	Type EventType
	Data interface{}
}

// Notifier delivers events to connected participants.
// Implementations must not block; delivery is fire-and-forget.
type Notifier interface {
	Notify(to ParticipantID, event Event)
}

// StartGamePayload is sent when the second participant takes a seat
type StartGamePayload struct {
	WinThreshold int `json:"winThreshold"`
}

// NewRoundPayload is sent when a round opens. Clients count down locally; the server deadline is authoritative.
type NewRoundPayload struct {
	Round      int       `json:"round"`
	TimeoutSec int       `json:"timeoutSec"`
	Deadline   time.Time `json:"deadline"`
}

// ResultPayload is the per-participant view of a resolved round
type ResultPayload struct {
	Round          int     `json:"round"`
	YourChoice     Choice  `json:"yourChoice"`
	OpponentChoice Choice  `json:"opponentChoice"`
	Outcome        Outcome `json:"outcome"`
	YourScore      int     `json:"yourScore"`
	OpponentScore  int     `json:"opponentScore"`
	AutoPicked     bool    `json:"autoPicked,omitempty"`
}

// GameOverPayload is the per-participant view of a finished match
type GameOverPayload struct {
	Won           bool `json:"won"`
	YourScore     int  `json:"yourScore"`
	OpponentScore int  `json:"opponentScore"`
}

// RecordType names a match lifecycle record emitted to the feed
type RecordType string

const (
	RecordMatchStarted    RecordType = "MatchStarted"
	RecordRoundResolved   RecordType = "RoundResolved"
	RecordMatchFinished   RecordType = "MatchFinished"
	RecordRematchStarted  RecordType = "RematchStarted"
	RecordParticipantLeft RecordType = "ParticipantLeft"
)

// Record describes a lifecycle transition for downstream consumers.
type Record struct {
	Type         RecordType      `json:"type"`
	Room         string          `json:"room"`
	Round        int             `json:"round,omitempty"`
	Participants []ParticipantID `json:"participants"`
	Choices      []Choice        `json:"choices,omitempty"`
	Scores       []int           `json:"scores,omitempty"`
	Verdict      string          `json:"verdict,omitempty"`
	At           time.Time       `json:"at"`
}

// Feed receives lifecycle records. Publish must not block the caller.
type Feed interface {
	Publish(rec Record)
}

type nopFeed struct{}

func (nopFeed) Publish(Record) {}
