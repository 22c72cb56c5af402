package http

import (
	"rps_duel/internal/config"
	"rps_duel/internal/http/handlers"
	"rps_duel/internal/http/middleware"
	"rps_duel/internal/repository"
	"rps_duel/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

func RegisterRoutes(r *gin.Engine, cfg *config.Config, sessions session.Config, db *pgxpool.Pool, rdb *redis.Client, version string) {
	var rounds *repository.RoundRepository
	if db != nil {
		rounds = repository.NewRoundRepository(db)
	}
	h := handlers.NewHandler(sessions, rounds)
	healthHandler := handlers.NewHealthHandler(db, rdb, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	api := r.Group("/api")
	api.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))

	// Auth
	api.POST("/auth", h.Auth)

	// Round history (404 when DATABASE_URL is not configured)
	api.GET("/rooms/:code/rounds", h.RoomRounds)
	api.GET("/me/rounds", middleware.JWT(), h.MyRounds)

	// WebSocket for room sessions
	r.GET("/ws", h.WS())
}
