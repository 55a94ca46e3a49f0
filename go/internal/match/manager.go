package match

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Manager runs the room lifecycle state machine.
//
// Every command and every timer expiry is executed to completion on the single
// goroutine started by Run, so room state is never mutated concurrently. The
// exported methods enqueue work onto that goroutine and wait for its result.
type Manager struct {
	cfg      Config
	clock    Clock
	store    *Store
	timer    *RoundTimer
	notifier Notifier
	feed     Feed
	rng      *rand.Rand

	cmds       chan func()
	done       chan struct{}
	instanceID string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the real clock, typically with a clockwork.FakeClock.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithFeed routes lifecycle records to feed.
func WithFeed(feed Feed) Option {
	return func(m *Manager) { m.feed = feed }
}

// WithRand sets the source used for auto-picks on timeout.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// NewManager creates a manager with an empty store. Run must be started before any command is issued.
func NewManager(cfg Config, notifier Notifier, opts ...Option) *Manager {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	m := &Manager{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		store:      NewStore(),
		notifier:   notifier,
		feed:       nopFeed{},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		cmds:       make(chan func(), cfg.CommandBuffer),
		done:       make(chan struct{}),
		instanceID: uuid.New().String()[:8],
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timer = NewRoundTimer(m.clock, m.onTimerFired)
	return m
}

// Run processes commands until ctx is cancelled, then cancels every pending room task.
func (m *Manager) Run(ctx context.Context) error {
	log.Info().
		Str("instance", m.instanceID).
		Int("win_threshold", m.cfg.WinThreshold).
		Dur("round_timeout", m.cfg.RoundTimeout).
		Dur("round_pause", m.cfg.RoundPause).
		Msg("match manager started")

	for {
		select {
		case <-ctx.Done():
			for _, room := range m.store.All() {
				m.timer.Disarm(room)
			}
			close(m.done)
			log.Info().Str("instance", m.instanceID).Msg("match manager stopped")
			return nil
		case fn := <-m.cmds:
			fn()
		}
	}
}

// do executes fn on the manager goroutine and waits for it.
func (m *Manager) do(fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case m.cmds <- func() { errCh <- fn() }:
	case <-m.done:
		return ErrManagerStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-m.done:
		return ErrManagerStopped
	}
}

// onTimerFired hands an expiry to the manager goroutine.
func (m *Manager) onTimerFired(roomKey string, seq uint64) {
	go func() {
		select {
		case m.cmds <- func() { m.expire(roomKey, seq) }:
		case <-m.done:
		}
	}()
}

// Join seats a participant, creating the room on first join.
func (m *Manager) Join(p ParticipantID, roomKey string) error {
	return m.do(func() error { return m.join(p, roomKey) })
}

// SubmitChoice records a participant's choice for the open round.
func (m *Manager) SubmitChoice(p ParticipantID, roomKey string, choice Choice) error {
	return m.do(func() error { return m.submitChoice(p, roomKey, choice) })
}

// RequestRematch records a vote for a new match after game over.
func (m *Manager) RequestRematch(p ParticipantID, roomKey string) error {
	return m.do(func() error { return m.requestRematch(p, roomKey) })
}

// Leave removes a participant from a room. Leaving twice is a no-op.
func (m *Manager) Leave(p ParticipantID, roomKey string) error {
	return m.do(func() error { return m.leave(p, roomKey) })
}

// Disconnect removes a participant from every room it occupies.
func (m *Manager) Disconnect(p ParticipantID) error {
	return m.do(func() error {
		for _, room := range m.store.RoomsOf(p) {
			if err := m.leave(p, room.Key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot returns a copy of a live room's state.
func (m *Manager) Snapshot(roomKey string) (RoomSnapshot, error) {
	var snap RoomSnapshot
	err := m.do(func() error {
		room := m.store.Get(roomKey)
		if room == nil {
			return ErrRoomNotFound
		}
		snap = room.snapshot()
		return nil
	})
	return snap, err
}

// Rooms returns snapshots of every live room.
func (m *Manager) Rooms() ([]RoomSnapshot, error) {
	var snaps []RoomSnapshot
	err := m.do(func() error {
		for _, room := range m.store.All() {
			snaps = append(snaps, room.snapshot())
		}
		return nil
	})
	return snaps, err
}

func (m *Manager) join(p ParticipantID, roomKey string) error {
	room := m.store.Get(roomKey)
	if room == nil {
		room = m.store.Create(roomKey, m.clock.Now())
		log.Info().Str("room", roomKey).Msg("room created")
	}

	if room.seatOf(p) >= 0 {
		log.Debug().Str("room", roomKey).Str("participant", string(p)).Msg("participant already seated")
		return nil
	}

	seat, err := room.seat(p)
	if err != nil {
		log.Warn().
			Str("room", roomKey).
			Str("participant", string(p)).
			Msg("join rejected, room is full")
		return err
	}

	log.Info().
		Str("room", roomKey).
		Str("participant", string(p)).
		Int("seat", seat).
		Int("occupants", room.count()).
		Msg("participant joined")

	if !room.full() {
		room.Status = RoomStatusWaiting
		return nil
	}

	m.broadcast(room, EventTypeStartGame, StartGamePayload{WinThreshold: m.cfg.WinThreshold})
	m.record(room, RecordMatchStarted)
	m.startRound(room)
	return nil
}

func (m *Manager) submitChoice(p ParticipantID, roomKey string, choice Choice) error {
	if !choice.Valid() {
		return ErrInvalidChoice
	}
	room := m.store.Get(roomKey)
	if room == nil {
		return ErrRoomNotFound
	}
	seat := room.seatOf(p)
	if seat < 0 {
		return ErrNotInRoom
	}
	if room.Status != RoomStatusPlaying {
		return ErrNotPlaying
	}

	room.Seats[seat].Choice = choice
	log.Debug().
		Str("room", roomKey).
		Str("participant", string(p)).
		Int("round", room.Round).
		Msg("choice recorded")

	if room.bothChosen() {
		m.timer.Disarm(room)
		m.resolve(room, [2]bool{})
	}
	return nil
}

func (m *Manager) requestRematch(p ParticipantID, roomKey string) error {
	room := m.store.Get(roomKey)
	if room == nil {
		return ErrRoomNotFound
	}
	seat := room.seatOf(p)
	if seat < 0 {
		return ErrNotInRoom
	}
	if room.Status != RoomStatusFinished {
		return ErrNotFinished
	}

	room.Seats[seat].RematchVote = true
	log.Info().Str("room", roomKey).Str("participant", string(p)).Msg("rematch vote recorded")
	if !room.bothVoted() {
		return nil
	}

	room.resetScores()
	room.resetChoices()
	room.clearVotes()
	room.Round = 0

	m.broadcast(room, EventTypeRematchStart, nil)
	m.record(room, RecordRematchStarted)
	m.startRound(room)
	return nil
}

func (m *Manager) leave(p ParticipantID, roomKey string) error {
	room := m.store.Get(roomKey)
	if room == nil {
		return ErrRoomNotFound
	}
	seat := room.seatOf(p)
	if seat < 0 {
		return ErrNotInRoom
	}

	m.timer.Disarm(room)
	room.Seats[seat] = Seat{}
	room.Status = RoomStatusWaiting
	room.Round = 0

	log.Info().
		Str("room", roomKey).
		Str("participant", string(p)).
		Int("occupants", room.count()).
		Msg("participant left")

	m.broadcast(room, EventTypeOpponentLeft, nil)
	m.feed.Publish(Record{
		Type:         RecordParticipantLeft,
		Room:         roomKey,
		Participants: []ParticipantID{p},
		At:           m.clock.Now(),
	})

	if room.count() == 0 {
		m.store.Delete(roomKey)
		log.Info().Str("room", roomKey).Msg("room destroyed")
		return nil
	}

	// the survivor waits for a new opponent with a clean round state
	room.resetChoices()
	room.clearVotes()
	return nil
}

// startRound opens the next round. A room without two occupants never runs one.
func (m *Manager) startRound(room *Room) {
	if !room.full() {
		return
	}

	room.resetChoices()
	room.clearVotes()
	room.Round++
	room.Status = RoomStatusPlaying

	m.broadcast(room, EventTypeNewRound, NewRoundPayload{
		Round:      room.Round,
		TimeoutSec: int(m.cfg.RoundTimeout / time.Second),
		Deadline:   m.clock.Now().Add(m.cfg.RoundTimeout),
	})
	m.timer.Arm(room, TaskDeadline, m.cfg.RoundTimeout)

	log.Info().Str("room", room.Key).Int("round", room.Round).Msg("round started")
}

// resolve scores the round and pushes perspective-correct results to both seats.
func (m *Manager) resolve(room *Room, autoPicked [2]bool) {
	a, b := &room.Seats[0], &room.Seats[1]
	verdict := Resolve(a.Choice, b.Choice)
	switch verdict {
	case FirstWins:
		a.Score++
	case SecondWins:
		b.Score++
	}
	room.Status = RoomStatusRoundEnd

	for i, v := range [2]Verdict{verdict, verdict.Invert()} {
		own, opp := room.Seats[i], room.Seats[opponentOf(i)]
		m.notify(own.Participant, room.Key, EventTypeResult, ResultPayload{
			Round:          room.Round,
			YourChoice:     own.Choice,
			OpponentChoice: opp.Choice,
			Outcome:        v.Outcome(),
			YourScore:      own.Score,
			OpponentScore:  opp.Score,
			AutoPicked:     autoPicked[i],
		})
	}

	log.Info().
		Str("room", room.Key).
		Int("round", room.Round).
		Str("verdict", verdict.String()).
		Int("score_a", a.Score).
		Int("score_b", b.Score).
		Msg("round resolved")

	m.feed.Publish(Record{
		Type:         RecordRoundResolved,
		Room:         room.Key,
		Round:        room.Round,
		Participants: room.occupants(),
		Choices:      []Choice{a.Choice, b.Choice},
		Scores:       []int{a.Score, b.Score},
		Verdict:      verdict.String(),
		At:           m.clock.Now(),
	})

	if room.leader(m.cfg.WinThreshold) {
		room.Status = RoomStatusFinished
		for i := range room.Seats {
			own, opp := room.Seats[i], room.Seats[opponentOf(i)]
			m.notify(own.Participant, room.Key, EventTypeGameOver, GameOverPayload{
				Won:           own.Score > opp.Score,
				YourScore:     own.Score,
				OpponentScore: opp.Score,
			})
		}
		m.record(room, RecordMatchFinished)
		log.Info().Str("room", room.Key).Int("rounds", room.Round).Msg("match finished")
		return
	}

	m.timer.Arm(room, TaskPause, m.cfg.RoundPause)
}

// expire runs a fired room task if it is still the current one.
func (m *Manager) expire(roomKey string, seq uint64) {
	room := m.store.Get(roomKey)
	kind, ok := m.timer.Claim(room, seq)
	if !ok {
		log.Debug().Str("room", roomKey).Uint64("seq", seq).Msg("ignoring stale room task")
		return
	}

	switch kind {
	case TaskDeadline:
		if room.Status != RoomStatusPlaying || !room.full() {
			return
		}
		var autoPicked [2]bool
		for i := range room.Seats {
			if room.Seats[i].Choice == ChoiceUnset {
				room.Seats[i].Choice = RandomChoice(m.rng)
				autoPicked[i] = true
				log.Info().
					Str("room", roomKey).
					Str("participant", string(room.Seats[i].Participant)).
					Str("choice", string(room.Seats[i].Choice)).
					Msg("round deadline passed, auto-picked choice")
			}
		}
		m.resolve(room, autoPicked)
	case TaskPause:
		m.startRound(room)
	}
}

func (m *Manager) broadcast(room *Room, eventType EventType, data interface{}) {
	for _, p := range room.occupants() {
		m.notify(p, room.Key, eventType, data)
	}
}

func (m *Manager) notify(p ParticipantID, roomKey string, eventType EventType, data interface{}) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(p, Event{Room: roomKey, Type: eventType, Data: data})
}

func (m *Manager) record(room *Room, recordType RecordType) {
	m.feed.Publish(Record{
		Type:         recordType,
		Room:         room.Key,
		Round:        room.Round,
		Participants: room.occupants(),
		Scores:       []int{room.Seats[0].Score, room.Seats[1].Score},
		At:           m.clock.Now(),
	})
}

// IsSilent reports whether err belongs to the no-op taxonomy that is never surfaced to participants.
func IsSilent(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrNotInRoom) ||
		errors.Is(err, ErrRoomFull) ||
		errors.Is(err, ErrNotPlaying) ||
		errors.Is(err, ErrNotFinished)
}
