package repository

import (
	"context"

	"rps_duel/internal/domain"
	"rps_duel/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RoundRepository persists resolved rounds. It implements
// session.RoundRecorder; the host records each round after a successful
// score commit.
type RoundRepository struct {
	db *pgxpool.Pool
}

func NewRoundRepository(db *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) RecordRound(ctx context.Context, rr session.RoundRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO rounds (room_code, round_num, player1_id, player2_id, move1, move2, winner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rr.RoomCode,
		rr.Round,
		rr.Player1ID,
		rr.Player2ID,
		string(rr.Move1),
		string(rr.Move2),
		rr.WinnerID,
	)
	return err
}

func (r *RoundRepository) GetByRoom(ctx context.Context, roomCode string) ([]*domain.Round, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, room_code, round_num, player1_id, player2_id, move1, move2, winner_id, created_at
		 FROM rounds
		 WHERE room_code = $1
		 ORDER BY created_at DESC
		 LIMIT 100`,
		roomCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Round
	for rows.Next() {
		rd := &domain.Round{}
		if err := rows.Scan(
			&rd.ID,
			&rd.RoomCode,
			&rd.RoundNum,
			&rd.Player1ID,
			&rd.Player2ID,
			&rd.Move1,
			&rd.Move2,
			&rd.WinnerID,
			&rd.CreatedAt,
		); err != nil {
			return nil, err
		}
		res = append(res, rd)
	}
	return res, rows.Err()
}

func (r *RoundRepository) GetByPlayer(ctx context.Context, playerID string) ([]*domain.Round, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, room_code, round_num, player1_id, player2_id, move1, move2, winner_id, created_at
		 FROM rounds
		 WHERE player1_id = $1 OR player2_id = $1
		 ORDER BY created_at DESC
		 LIMIT 100`,
		playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Round
	for rows.Next() {
		rd := &domain.Round{}
		if err := rows.Scan(
			&rd.ID,
			&rd.RoomCode,
			&rd.RoundNum,
			&rd.Player1ID,
			&rd.Player2ID,
			&rd.Move1,
			&rd.Move2,
			&rd.WinnerID,
			&rd.CreatedAt,
		); err != nil {
			return nil, err
		}
		res = append(res, rd)
	}
	return res, rows.Err()
}
