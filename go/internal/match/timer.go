package match

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// TaskKind tells what a room's deferred task does when it fires.
type TaskKind string

const (
	// TaskDeadline forces resolution of an open round
	TaskDeadline TaskKind = "deadline"
	// TaskPause starts the next round after a resolved one
	TaskPause TaskKind = "pause"
)

type task struct {
	seq   uint64
	kind  TaskKind
	due   time.Time
	timer clockwork.Timer
}

// FireFunc receives a timer expiry. It runs on the clock's goroutine and must only hand off.
type FireFunc func(roomKey string, seq uint64)

// RoundTimer owns the one-per-room deferred task handles.
// Arm, Disarm and Claim must be called from the goroutine that owns the rooms.
type RoundTimer struct {
	clock Clock
	fire  FireFunc
	seq   uint64
}

// NewRoundTimer creates a timer that reports expiries through fire.
func NewRoundTimer(clock Clock, fire FireFunc) *RoundTimer {
	return &RoundTimer{
		clock: clock,
		fire:  fire,
	}
}

// Arm schedules a one-shot task for the room, replacing any pending one.
func (t *RoundTimer) Arm(room *Room, kind TaskKind, d time.Duration) {
	t.Disarm(room)

	t.seq++
	seq := t.seq
	key := room.Key
	room.task = &task{
		seq:  seq,
		kind: kind,
		due:  t.clock.Now().Add(d),
		timer: t.clock.AfterFunc(d, func() {
			t.fire(key, seq)
		}),
	}

	log.Debug().
		Str("room", key).
		Str("task", string(kind)).
		Uint64("seq", seq).
		Dur("duration", d).
		Msg("armed room task")
}

// Disarm cancels the room's pending task. Calling it with nothing armed is a no-op.
func (t *RoundTimer) Disarm(room *Room) {
	if room == nil || room.task == nil {
		return
	}
	room.task.timer.Stop()
	log.Debug().
		Str("room", room.Key).
		Str("task", string(room.task.kind)).
		Uint64("seq", room.task.seq).
		Msg("disarmed room task")
	room.task = nil
}

// Claim consumes the pending task if seq still identifies it.
// A stale expiry (room gone, task replaced or cancelled) reports false.
func (t *RoundTimer) Claim(room *Room, seq uint64) (TaskKind, bool) {
	if room == nil || room.task == nil || room.task.seq != seq {
		return "", false
	}
	kind := room.task.kind
	room.task = nil
	return kind, true
}
