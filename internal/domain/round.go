package domain

import "time"

// Round - одна сыгранная партия в комнате
type Round struct {
	ID        int64     `db:"id" json:"id"`
	RoomCode  string    `db:"room_code" json:"room_code"`
	RoundNum  int       `db:"round_num" json:"round_num"`
	Player1ID string    `db:"player1_id" json:"player1_id"`
	Player2ID string    `db:"player2_id" json:"player2_id"`
	Move1     string    `db:"move1" json:"move1"`
	Move2     string    `db:"move2" json:"move2"`
	WinnerID  *string   `db:"winner_id" json:"winner_id,omitempty"` // nil = tie
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
