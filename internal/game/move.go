package game

import "errors"

// Move - ход игрока
type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
)

var ErrInvalidMove = errors.New("invalid move")

func ParseMove(s string) (Move, error) {
	m := Move(s)
	if !m.Valid() {
		return "", ErrInvalidMove
	}
	return m, nil
}

func (m Move) Valid() bool {
	return m == MoveRock || m == MovePaper || m == MoveScissors
}

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
)

// Inverse returns the same outcome seen from the other seat.
func (o Outcome) Inverse() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLose
	case OutcomeLose:
		return OutcomeWin
	}
	return OutcomeDraw
}

// Beats reports whether move a defeats move b. Total over the 3x3 move
// space: rock beats scissors, scissors beats paper, paper beats rock.
func Beats(a, b Move) bool {
	switch a {
	case MoveRock:
		return b == MoveScissors
	case MovePaper:
		return b == MoveRock
	case MoveScissors:
		return b == MovePaper
	}
	return false
}

// Decide returns the result of move a against move b from a's perspective.
func Decide(a, b Move) Outcome {
	if a == b {
		return OutcomeDraw
	}
	if Beats(a, b) {
		return OutcomeWin
	}
	return OutcomeLose
}
