package handlers

import (
	"net/http"

	"rps_duel/internal/room"

	"github.com/gin-gonic/gin"
)

// RoomRounds returns the recorded rounds of a room, newest first.
func (h *Handler) RoomRounds(c *gin.Context) {
	if h.Rounds == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	code, err := room.NormalizeCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}

	rounds, err := h.Rounds.GetByRoom(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rounds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rounds": rounds})
}

// MyRounds returns the authenticated player's recorded rounds, newest first.
func (h *Handler) MyRounds(c *gin.Context) {
	if h.Rounds == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "player not found"})
		return
	}

	rounds, err := h.Rounds.GetByPlayer(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rounds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rounds": rounds})
}
