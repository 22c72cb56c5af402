package session

import (
	"rps_duel/internal/game"
	"rps_duel/internal/room"
	"rps_duel/internal/view"
)

// localState is the per-client cache the reaction function threads through
// snapshots. Everything here can be rebuilt from the next snapshot; nothing
// in it is authoritative.
type localState struct {
	seat                room.SeatNum
	lastSignature       string
	lastResetResponseTS int64
	pendingReset        bool
	playing             bool
}

type action interface{ isAction() }

type actPublish struct{ model view.Model }

type actToast struct{ msg string }

type actEnded struct{ reason, msg string }

// actCommitResult asks the host to persist the round outcome, conditioned
// on the signature still matching and resultProcessed still false.
type actCommitResult struct {
	sig    string
	scores room.Scores
	record RoundRecord
}

// actScheduleClear arms the display-delay timer that wipes both moves for
// the next round, guarded by the signature so a late timer never touches a
// newer round.
type actScheduleClear struct{ sig string }

// actClearResetResponse removes an observed declined response, returning
// the handshake to idle.
type actClearResetResponse struct{ ts int64 }

func (actPublish) isAction()            {}
func (actToast) isAction()              {}
func (actEnded) isAction()              {}
func (actCommitResult) isAction()       {}
func (actScheduleClear) isAction()      {}
func (actClearResetResponse) isAction() {}

// react maps (previous local state, snapshot) to (new local state, side
// effects). It performs no I/O itself, so tests drive it with synthetic
// snapshots.
func react(s localState, rec *room.Record, self, code string) (localState, []action) {
	if rec == nil {
		return localState{}, []action{actEnded{
			reason: "room_deleted",
			msg:    "Room was deleted by the host.",
		}}
	}

	seat := rec.SeatOf(self)
	if seat == room.SeatNone {
		return localState{}, []action{actEnded{
			reason: "removed",
			msg:    "You are no longer in this room.",
		}}
	}
	// seat2 cannot become host, so a vanished host ends the session
	if seat == room.Seat2 && !rec.Player1.Occupied() {
		return localState{}, []action{actEnded{
			reason: "host_left",
			msg:    "The host left the room.",
		}}
	}
	s.seat = seat

	var acts []action

	if seat == room.Seat1 && !rec.Player2.Occupied() {
		wasPlaying := s.playing
		s = localState{seat: seat}
		if wasPlaying {
			acts = append(acts, actToast{"Opponent left the room. Waiting for a new player..."})
		}
		acts = append(acts, actPublish{view.Model{
			RoomCode: code,
			Seat:     int(seat),
			Phase:    view.PhaseWaiting,
		}})
		return s, acts
	}
	s.playing = true

	prompt, awaiting := false, false
	if rr := rec.ResetRequest; rr != nil {
		if rr.PlayerID == self {
			awaiting = true
			s.pendingReset = true
		} else {
			prompt = true
		}
	} else {
		s.pendingReset = false
	}

	if resp := rec.ResetResponse; resp != nil {
		addressedToSelf := resp.For != nil && *resp.For == self
		if resp.Timestamp != s.lastResetResponseTS {
			s.lastResetResponseTS = resp.Timestamp
			switch {
			case resp.Status == room.ResetDeclined && addressedToSelf:
				s.pendingReset = false
				awaiting = false
				acts = append(acts, actToast{"Opponent declined the reset request."})
			case resp.Status == room.ResetAccepted:
				s.pendingReset = false
				acts = append(acts, actToast{"Game reset! Scores cleared."})
			}
		}
		// the declined party acknowledges by clearing the response
		if resp.Status == room.ResetDeclined && addressedToSelf {
			acts = append(acts, actClearResetResponse{ts: resp.Timestamp})
		}
	}

	model := view.Model{
		RoomCode:      code,
		Seat:          int(seat),
		Phase:         view.PhasePlaying,
		Round:         rec.Round,
		Ties:          rec.Ties(),
		ResetPrompt:   prompt,
		AwaitingReset: awaiting,
	}

	own, opp := rec.Seat(seat), rec.Seat(other(seat))
	model.YourMoved = own.Move != nil
	model.OppMoved = opp.Move != nil

	if rec.BothMoved() {
		sig := rec.MovesSignature()
		outcome := game.Decide(*own.Move, *opp.Move)

		// candidate scores: one increment for the winner unless someone
		// already committed this round
		scores := rec.Scores
		var winnerSeat room.SeatNum
		switch game.Decide(*rec.Player1.Move, *rec.Player2.Move) {
		case game.OutcomeWin:
			winnerSeat = room.Seat1
		case game.OutcomeLose:
			winnerSeat = room.Seat2
		}
		if !rec.ResultProcessed {
			switch winnerSeat {
			case room.Seat1:
				scores.Player1++
			case room.Seat2:
				scores.Player2++
			}
		}

		model.YourMove = string(*own.Move)
		model.OppMove = string(*opp.Move)
		model.Result = string(outcome)
		model.YourScore, model.OppScore = scoresFor(seat, scores)

		if sig != s.lastSignature {
			// a new result, not a replayed notification
			s.lastSignature = sig

			if seat == room.Seat1 && !rec.ResultProcessed {
				var winnerID *string
				if ws := rec.Seat(winnerSeat); ws != nil && ws.ID != nil {
					id := *ws.ID
					winnerID = &id
				}
				acts = append(acts, actCommitResult{
					sig:    sig,
					scores: scores,
					record: RoundRecord{
						RoomCode:  code,
						Round:     rec.Round,
						Player1ID: *rec.Player1.ID,
						Player2ID: *rec.Player2.ID,
						Move1:     *rec.Player1.Move,
						Move2:     *rec.Player2.Move,
						WinnerID:  winnerID,
					},
				})
			}
			// either seat may clear the board; the operation is idempotent
			acts = append(acts, actScheduleClear{sig: sig})
		}
	} else {
		if own.Move == nil && opp.Move == nil {
			// board cleared for the next round
			s.lastSignature = ""
		}
		model.YourScore, model.OppScore = scoresFor(seat, rec.Scores)
	}

	acts = append(acts, actPublish{model})
	return s, acts
}

func other(n room.SeatNum) room.SeatNum {
	if n == room.Seat1 {
		return room.Seat2
	}
	return room.Seat1
}

func scoresFor(seat room.SeatNum, sc room.Scores) (yours, opp int) {
	if seat == room.Seat1 {
		return sc.Player1, sc.Player2
	}
	return sc.Player2, sc.Player1
}
