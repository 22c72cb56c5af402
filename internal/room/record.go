package room

import (
	"fmt"

	"rps_duel/internal/game"
)

// Seat - одно из двух мест в комнате
type Seat struct {
	ID        *string    `json:"id"`
	Move      *game.Move `json:"move,omitempty"`
	Timestamp *int64     `json:"timestamp,omitempty"`
}

func (s Seat) Occupied() bool {
	return s.ID != nil && *s.ID != ""
}

func (s Seat) HeldBy(playerID string) bool {
	return s.ID != nil && *s.ID == playerID
}

type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type ResetRequest struct {
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
}

type ResetStatus string

const (
	ResetAccepted ResetStatus = "accepted"
	ResetDeclined ResetStatus = "declined"
)

type ResetResponse struct {
	Status    ResetStatus `json:"status"`
	By        string      `json:"by"`
	For       *string     `json:"for,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Record is the shared session document for one room: the single source of
// truth both seats read and mutate through conditional transactions.
type Record struct {
	Player1 Seat   `json:"player1"`
	Player2 Seat   `json:"player2"`
	Round   int    `json:"round"`
	Scores  Scores `json:"scores"`

	ResultProcessed        bool    `json:"resultProcessed"`
	LastProcessedSignature *string `json:"lastProcessedSignature,omitempty"`

	ResetRequest  *ResetRequest  `json:"resetRequest,omitempty"`
	ResetResponse *ResetResponse `json:"resetResponse,omitempty"`

	// Advisory only.
	LastUpdated int64 `json:"lastUpdated"`

	// Bumped by the store on every commit; backends without a native
	// conditional-write primitive key their compare-and-set on it.
	Version uint64 `json:"version"`
}

// New returns a fresh record with the given player seated as host.
// ts should be the store's server-timestamp sentinel.
func New(hostID string, ts int64) *Record {
	return &Record{
		Player1: Seat{ID: &hostID, Timestamp: &ts},
		Player2: Seat{},
		Round:   0,
		Scores:  Scores{},
	}
}

type SeatNum int

const (
	SeatNone SeatNum = 0
	Seat1    SeatNum = 1
	Seat2    SeatNum = 2
)

// SeatOf re-derives a player's seat from identity. Cached seat assignments
// go stale across reconnects, so callers resolve against the record instead.
func (r *Record) SeatOf(playerID string) SeatNum {
	if r.Player1.HeldBy(playerID) {
		return Seat1
	}
	if r.Player2.HeldBy(playerID) {
		return Seat2
	}
	return SeatNone
}

func (r *Record) Seat(n SeatNum) *Seat {
	switch n {
	case Seat1:
		return &r.Player1
	case Seat2:
		return &r.Player2
	}
	return nil
}

func (r *Record) BothMoved() bool {
	return r.Player1.Move != nil && r.Player2.Move != nil
}

// MovesSignature fingerprints the current move pair. It identifies "this
// pair of moves, this round" so duplicate snapshot notifications and stale
// cleanup timers can be told apart from genuinely new results.
func (r *Record) MovesSignature() string {
	if !r.BothMoved() {
		return ""
	}
	var ts1, ts2 int64
	if r.Player1.Timestamp != nil {
		ts1 = *r.Player1.Timestamp
	}
	if r.Player2.Timestamp != nil {
		ts2 = *r.Player2.Timestamp
	}
	return fmt.Sprintf("%s|%d|%s|%d", *r.Player1.Move, ts1, *r.Player2.Move, ts2)
}

// Ties derives the tie count: rounds not won by either seat.
func (r *Record) Ties() int {
	t := r.Round - (r.Scores.Player1 + r.Scores.Player2)
	if t < 0 {
		return 0
	}
	return t
}

// ClearGame resets everything except seat identities, for guest-leave and
// accepted resets.
func (r *Record) ClearGame() {
	r.Player1.Move = nil
	r.Player2.Move = nil
	r.Round = 0
	r.Scores = Scores{}
	r.ResetRequest = nil
	r.ResetResponse = nil
	r.ResultProcessed = false
	r.LastProcessedSignature = nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Player1 = r.Player1.clone()
	c.Player2 = r.Player2.clone()
	if r.LastProcessedSignature != nil {
		s := *r.LastProcessedSignature
		c.LastProcessedSignature = &s
	}
	if r.ResetRequest != nil {
		rr := *r.ResetRequest
		c.ResetRequest = &rr
	}
	if r.ResetResponse != nil {
		rr := *r.ResetResponse
		if r.ResetResponse.For != nil {
			f := *r.ResetResponse.For
			rr.For = &f
		}
		c.ResetResponse = &rr
	}
	return &c
}

func (s Seat) clone() Seat {
	c := s
	if s.ID != nil {
		v := *s.ID
		c.ID = &v
	}
	if s.Move != nil {
		v := *s.Move
		c.Move = &v
	}
	if s.Timestamp != nil {
		v := *s.Timestamp
		c.Timestamp = &v
	}
	return c
}
