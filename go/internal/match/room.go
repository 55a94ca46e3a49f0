package match

import "time"

// ParticipantID identifies one connected endpoint for the lifetime of its connection.
type ParticipantID string

// RoomStatus defines where a room is in its lifecycle.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "WAITING"
	RoomStatusPlaying  RoomStatus = "PLAYING"
	RoomStatusRoundEnd RoomStatus = "ROUND_END"
	RoomStatusFinished RoomStatus = "FINISHED"
)

// Seat is one of the two fixed slots of a room.
type Seat struct {
	Participant ParticipantID
	Choice      Choice
	Score       int
	RematchVote bool
}

func (s *Seat) occupied() bool {
	return s.Participant != ""
}

// Room pairs at most two participants for one match.
type Room struct {
	Key       string
	Seats     [2]Seat
	Status    RoomStatus
	Round     int
	CreatedAt time.Time

	// task is the single pending deferred callback (deadline or pause)
	task *task
}

func newRoom(key string, now time.Time) *Room {
	return &Room{
		Key:       key,
		Status:    RoomStatusWaiting,
		CreatedAt: now,
	}
}

// seatOf returns the slot index held by p, or -1.
func (r *Room) seatOf(p ParticipantID) int {
	for i := range r.Seats {
		if r.Seats[i].Participant == p {
			return i
		}
	}
	return -1
}

// opponentOf returns the other slot index for a seat index.
func opponentOf(i int) int {
	return 1 - i
}

func (r *Room) count() int {
	n := 0
	for i := range r.Seats {
		if r.Seats[i].occupied() {
			n++
		}
	}
	return n
}

func (r *Room) full() bool {
	return r.count() == len(r.Seats)
}

// seat places p in the first free slot.
func (r *Room) seat(p ParticipantID) (int, error) {
	for i := range r.Seats {
		if !r.Seats[i].occupied() {
			r.Seats[i] = Seat{Participant: p}
			return i, nil
		}
	}
	return -1, ErrRoomFull
}

func (r *Room) occupants() []ParticipantID {
	ids := make([]ParticipantID, 0, len(r.Seats))
	for i := range r.Seats {
		if r.Seats[i].occupied() {
			ids = append(ids, r.Seats[i].Participant)
		}
	}
	return ids
}

func (r *Room) bothChosen() bool {
	return r.full() && r.Seats[0].Choice != ChoiceUnset && r.Seats[1].Choice != ChoiceUnset
}

func (r *Room) bothVoted() bool {
	return r.full() && r.Seats[0].RematchVote && r.Seats[1].RematchVote
}

func (r *Room) resetChoices() {
	for i := range r.Seats {
		r.Seats[i].Choice = ChoiceUnset
	}
}

func (r *Room) clearVotes() {
	for i := range r.Seats {
		r.Seats[i].RematchVote = false
	}
}

func (r *Room) resetScores() {
	for i := range r.Seats {
		r.Seats[i].Score = 0
	}
}

func (r *Room) leader(threshold int) bool {
	for i := range r.Seats {
		if r.Seats[i].Score >= threshold {
			return true
		}
	}
	return false
}

// RoomSnapshot is a read-only copy of a room's state.
type RoomSnapshot struct {
	Key          string          `json:"key"`
	Status       RoomStatus      `json:"status"`
	Round        int             `json:"round"`
	Participants []ParticipantID `json:"participants"`
	Scores       map[string]int  `json:"scores"`
	TaskArmed    bool            `json:"task_armed"`
	TaskKind     TaskKind        `json:"task_kind,omitempty"`
	TaskDue      *time.Time      `json:"task_due,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (r *Room) snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		Key:          r.Key,
		Status:       r.Status,
		Round:        r.Round,
		Participants: r.occupants(),
		Scores:       make(map[string]int, len(r.Seats)),
		CreatedAt:    r.CreatedAt,
	}
	for i := range r.Seats {
		if r.Seats[i].occupied() {
			snap.Scores[string(r.Seats[i].Participant)] = r.Seats[i].Score
		}
	}
	if r.task != nil {
		due := r.task.due
		snap.TaskArmed = true
		snap.TaskKind = r.task.kind
		snap.TaskDue = &due
	}
	return snap
}
