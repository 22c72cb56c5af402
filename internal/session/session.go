package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rps_duel/internal/game"
	"rps_duel/internal/logger"
	"rps_duel/internal/room"
	"rps_duel/internal/store"

	"github.com/jonboulle/clockwork"
)

var (
	ErrRoomFull  = errors.New("room is full")
	ErrNoRoom    = errors.New("room not found")
	ErrNotSeated = errors.New("you are no longer in this room")
)

const (
	defaultDisplayDelay       = 3 * time.Second
	defaultResponseClearDelay = 3 * time.Second
)

// RoundRecord describes one resolved round for the history sink.
type RoundRecord struct {
	RoomCode  string
	Round     int
	Player1ID string
	Player2ID string
	Move1     game.Move
	Move2     game.Move
	WinnerID  *string // nil on a tie
}

// RoundRecorder persists resolved rounds. Optional; recording is
// fire-and-forget and never blocks the protocol.
type RoundRecorder interface {
	RecordRound(ctx context.Context, r RoundRecord) error
}

// EventKind classifies events emitted to the UI layer.
type EventKind string

const (
	EventState EventKind = "state"
	EventToast EventKind = "toast"
	EventEnded EventKind = "ended"
)

type Event struct {
	Kind    EventKind   `json:"type"`
	View    interface{} `json:"view,omitempty"`
	Message string      `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

type Config struct {
	Store store.RoomStore
	Clock clockwork.Clock
	Log   *slog.Logger

	// DisplayDelay is how long a resolved round stays on screen before
	// either seat clears the moves for the next one.
	DisplayDelay time.Duration
	// ResponseClearDelay is how long an accepted reset response stays
	// visible before its author removes it.
	ResponseClearDelay time.Duration

	History RoundRecorder
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logger.Get()
	}
	if c.DisplayDelay <= 0 {
		c.DisplayDelay = defaultDisplayDelay
	}
	if c.ResponseClearDelay <= 0 {
		c.ResponseClearDelay = defaultResponseClearDelay
	}
	return c
}

// Session is one seat's view of a room: it owns the subscription, the local
// cache and the in-flight flags, and exposes the protocol entry points. All
// shared-state mutations go through the store's conditional transactions;
// the subscription is the only authoritative signal of the new state.
type Session struct {
	cfg  Config
	self string
	code string

	mu       sync.Mutex
	st       localState
	inFlight bool
	closed   bool

	sub    *store.Subscription
	events chan Event
	done   chan struct{}
	ended  sync.Once
}

// Join seats selfID in the room identified by rawCode, creating the room if
// it does not exist. The claim runs as a single conditional transaction so
// two strangers racing for the open seat can never both win it.
func Join(ctx context.Context, cfg Config, rawCode, selfID string) (*Session, error) {
	cfg = cfg.withDefaults()

	code, err := room.NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}

	committed, rec, err := cfg.Store.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil {
			created := room.New(selfID, store.ServerTimestamp)
			created.LastUpdated = store.ServerTimestamp
			return created, nil
		}
		if cur.SeatOf(selfID) != room.SeatNone {
			// reconnect/refresh: seat already ours, nothing to mutate
			return nil, store.ErrAborted
		}
		if cur.Player2.Occupied() {
			return nil, store.ErrAborted
		}
		cur.Player2 = room.Seat{ID: &selfID, Timestamp: ptr(store.ServerTimestamp)}
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	if !committed {
		switch {
		case rec == nil:
			return nil, ErrNoRoom
		case rec.SeatOf(selfID) != room.SeatNone:
			// fine: re-confirmed existing seat
		case rec.Player2.Occupied():
			return nil, ErrRoomFull
		default:
			return nil, ErrNoRoom
		}
	}

	sub, err := cfg.Store.Subscribe(ctx, code)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		self:   selfID,
		code:   code,
		sub:    sub,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	cfg.Log.Info("joined room", "room", code, "player", selfID)
	go s.run()
	return s, nil
}

// Create makes a room under a fresh code and seats selfID as host.
func Create(ctx context.Context, cfg Config, selfID string) (*Session, error) {
	return Join(ctx, cfg, room.NewCode(), selfID)
}

func (s *Session) Code() string { return s.code }

func (s *Session) Self() string { return s.self }

// Events is the stream the UI layer renders from. It is closed when the
// session ends.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	for rec := range s.sub.C {
		s.mu.Lock()
		st, acts := react(s.st, rec, s.self, s.code)
		s.st = st
		s.mu.Unlock()

		for _, a := range acts {
			if ended, ok := a.(actEnded); ok {
				s.finish(ended.reason, ended.msg)
				return
			}
			s.execute(a)
		}
	}
	s.finish("subscription_closed", "")
}

func (s *Session) execute(a action) {
	switch a := a.(type) {
	case actPublish:
		s.emit(Event{Kind: EventState, View: a.model})
	case actToast:
		s.emit(Event{Kind: EventToast, Message: a.msg})
	case actCommitResult:
		s.commitResult(a)
	case actScheduleClear:
		s.cfg.Clock.AfterFunc(s.cfg.DisplayDelay, func() {
			s.clearMoves(a.sig)
		})
	case actClearResetResponse:
		s.clearResetResponse(a.ts)
	}
}

// emit delivers an event to the UI stream. Sends happen under the session
// mutex against the closed flag: a late emit from a timer or an entry point
// racing the shutdown is a silent no-op, never a send on a closed channel.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.cfg.Log.Warn("dropping event for slow consumer", "room", s.code, "player", s.self)
	}
}

func (s *Session) finish(reason, msg string) {
	s.ended.Do(func() {
		s.sub.Close()
		if msg != "" {
			s.emit(Event{Kind: EventEnded, Reason: reason, Message: msg})
		}
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		close(s.done)
		s.cfg.Log.Info("session ended", "room", s.code, "player", s.self, "reason", reason)
	})
}

// SubmitMove records this seat's move for the current round and, when it
// completes the pair, tries to advance the round counter. Precondition
// violations (no seat, move already in, submission in flight) are silent
// no-ops.
func (s *Session) SubmitMove(ctx context.Context, mv game.Move) error {
	if !mv.Valid() {
		return game.ErrInvalidMove
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	err := s.submitMove(ctx, mv)

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	if err != nil {
		s.cfg.Log.Error("move submission failed", "room", s.code, "player", s.self, "error", err)
		s.emit(Event{Kind: EventToast, Message: "Error submitting move. Please try again."})
	}
	return err
}

func (s *Session) submitMove(ctx context.Context, mv game.Move) error {
	rec, err := s.cfg.Store.Get(ctx, s.code)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNoRoom
	}
	seat := rec.SeatOf(s.self)
	if seat == room.SeatNone {
		return ErrNotSeated
	}
	if rec.Seat(seat).Move != nil {
		// already moved this round
		return nil
	}
	observedRound := rec.Round

	// stage 1: claim this seat's move slot, only if still empty. Keeps a
	// duplicate submission from writing twice.
	committed, updated, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil {
			return nil, store.ErrAborted
		}
		seat := cur.SeatOf(s.self)
		if seat == room.SeatNone {
			return nil, store.ErrAborted
		}
		st := cur.Seat(seat)
		if st.Move != nil {
			return nil, store.ErrAborted
		}
		st.Move = &mv
		st.Timestamp = ptr(store.ServerTimestamp)
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		return err
	}
	if !committed {
		// lost to our own duplicate submission, or unseated meanwhile
		return nil
	}

	// stage 2: both moves in -> advance the round counter exactly once.
	// The condition on the observed round makes the two seats' racing
	// increments collapse to one; losing the race is the expected outcome.
	if updated.BothMoved() {
		_, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
			if cur == nil || cur.Round != observedRound {
				return nil, store.ErrAborted
			}
			cur.Round++
			cur.LastUpdated = store.ServerTimestamp
			return cur, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// commitResult is the host-only single-writer score commit. Conditioned on
// resultProcessed still false and the signature unchanged, so replays and
// the guest's concurrent computation can never double-count.
func (s *Session) commitResult(a actCommitResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	committed, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil || cur.ResultProcessed || cur.MovesSignature() != a.sig {
			return nil, store.ErrAborted
		}
		cur.Scores = a.scores
		cur.ResultProcessed = true
		sig := a.sig
		cur.LastProcessedSignature = &sig
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		s.cfg.Log.Error("score commit failed", "room", s.code, "error", err)
		return
	}
	if committed && s.cfg.History != nil {
		rr := a.record
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.cfg.History.RecordRound(ctx, rr); err != nil {
				s.cfg.Log.Error("round history write failed", "room", rr.RoomCode, "error", err)
			}
		}()
	}
}

// clearMoves wipes both seats' moves after the display delay. Guarded by
// the signature: a timer from an earlier round finds a different signature
// and does nothing.
func (s *Session) clearMoves(sig string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil || cur.MovesSignature() != sig {
			return nil, store.ErrAborted
		}
		cur.Player1.Move = nil
		cur.Player2.Move = nil
		cur.ResultProcessed = false
		cur.LastProcessedSignature = nil
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		s.cfg.Log.Error("move clear failed", "room", s.code, "error", err)
	}
}

// RequestReset proposes clearing scores and round. Allowed only while no
// handshake is pending.
func (s *Session) RequestReset(ctx context.Context) error {
	s.mu.Lock()
	if s.st.pendingReset {
		s.mu.Unlock()
		return nil
	}
	s.st.lastResetResponseTS = 0
	s.mu.Unlock()

	_, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil || cur.ResetRequest != nil {
			return nil, store.ErrAborted
		}
		cur.ResetRequest = &room.ResetRequest{PlayerID: s.self, Timestamp: store.ServerTimestamp}
		cur.ResetResponse = nil
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		s.cfg.Log.Error("reset request failed", "room", s.code, "error", err)
		s.emit(Event{Kind: EventToast, Message: "Error requesting reset. Please try again."})
	}
	return err
}

// ConfirmReset answers the opponent's pending reset request.
func (s *Session) ConfirmReset(ctx context.Context, accept bool) error {
	if accept {
		committed, rec, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
			if cur == nil || cur.ResetRequest == nil {
				return nil, store.ErrAborted
			}
			// only the other seat may answer the request
			if cur.ResetRequest.PlayerID == s.self {
				return nil, store.ErrAborted
			}
			cur.ClearGame()
			cur.ResetResponse = &room.ResetResponse{
				Status:    room.ResetAccepted,
				By:        s.self,
				Timestamp: store.ServerTimestamp,
			}
			cur.LastUpdated = store.ServerTimestamp
			return cur, nil
		})
		if err != nil {
			s.cfg.Log.Error("reset accept failed", "room", s.code, "error", err)
			s.emit(Event{Kind: EventToast, Message: "Error resetting game. Please try again."})
			return err
		}
		if committed && rec.ResetResponse != nil {
			// give the requester a moment to see the confirmation
			ts := rec.ResetResponse.Timestamp
			s.cfg.Clock.AfterFunc(s.cfg.ResponseClearDelay, func() {
				s.clearResetResponse(ts)
			})
		}
		return nil
	}

	_, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil || cur.ResetRequest == nil {
			return nil, store.ErrAborted
		}
		if cur.ResetRequest.PlayerID == s.self {
			return nil, store.ErrAborted
		}
		requester := cur.ResetRequest.PlayerID
		cur.ResetRequest = nil
		cur.ResetResponse = &room.ResetResponse{
			Status:    room.ResetDeclined,
			By:        s.self,
			For:       &requester,
			Timestamp: store.ServerTimestamp,
		}
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		s.cfg.Log.Error("reset decline failed", "room", s.code, "error", err)
	}
	return err
}

func (s *Session) clearResetResponse(ts int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
		if cur == nil || cur.ResetResponse == nil || cur.ResetResponse.Timestamp != ts {
			return nil, store.ErrAborted
		}
		cur.ResetResponse = nil
		cur.LastUpdated = store.ServerTimestamp
		return cur, nil
	})
	if err != nil {
		s.cfg.Log.Error("reset response clear failed", "room", s.code, "error", err)
	}
}

// Leave releases this seat. The host tears the whole room down; the guest
// clears seat2 and resets the game so the host can wait for a new opponent.
// Called both on explicit user action and best-effort on disconnect.
func (s *Session) Leave(ctx context.Context) error {
	rec, err := s.cfg.Store.Get(ctx, s.code)
	if err == nil && rec != nil {
		switch rec.SeatOf(s.self) {
		case room.Seat1:
			err = s.cfg.Store.Delete(ctx, s.code)
		case room.Seat2:
			_, _, err = s.cfg.Store.RunTransaction(ctx, s.code, func(cur *room.Record) (*room.Record, error) {
				if cur == nil || !cur.Player2.HeldBy(s.self) {
					return nil, store.ErrAborted
				}
				cur.Player2 = room.Seat{}
				cur.ClearGame()
				cur.LastUpdated = store.ServerTimestamp
				return cur, nil
			})
		}
	}
	s.finish("left", "")
	return err
}

func ptr[T any](v T) *T { return &v }
