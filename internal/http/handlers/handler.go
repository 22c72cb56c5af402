package handlers

import (
	"rps_duel/internal/repository"
	"rps_duel/internal/session"
)

type Handler struct {
	Sessions session.Config
	Rounds   *repository.RoundRepository // nil when round history is disabled
}

func NewHandler(sessions session.Config, rounds *repository.RoundRepository) *Handler {
	return &Handler{
		Sessions: sessions,
		Rounds:   rounds,
	}
}

// getPlayerID извлекает player_id из контекста Gin
func getPlayerID(c interface{ Get(string) (any, bool) }) (string, bool) {
	val, ok := c.Get("player_id")
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}
