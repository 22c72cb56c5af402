package handlers

import (
	"net/http"

	"rps_duel/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	Token string `json:"token"`
}

// Auth issues an identity token for an anonymous player. If the request
// carries a previously issued token that still validates, the same player_id
// is kept so the player keeps their seat across reconnects.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	// empty body is fine, the token field is optional
	_ = c.ShouldBindJSON(&req)

	playerID := ""
	if req.Token != "" {
		if id, err := service.ParseIdentityToken(req.Token); err == nil {
			playerID = id
		}
	}
	if playerID == "" {
		playerID = service.NewPlayerID()
	}

	token, err := service.GenerateIdentityToken(playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"player_id": playerID,
	})
}
