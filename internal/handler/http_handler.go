package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast-io/roomcast/internal/log"
	"github.com/roomcast-io/roomcast/internal/response"
	"github.com/roomcast-io/roomcast/internal/service"
)

// HistoryHandler serves the read-only history API.
type HistoryHandler struct {
	room service.Coordinator
}

func NewHistoryHandler(room service.Coordinator) *HistoryHandler {
	return &HistoryHandler{room: room}
}

// GetHistory returns the most recent entries in chronological order.
// GET /api/history?limit=K
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := h.room.Recent(c.Request.Context(), limit)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("history fetch failed")
		response.InternalError(c, "failed to load history")
		return
	}

	response.Success(c, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// NewRouter wires all HTTP routes.
func NewRouter(room service.Coordinator, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), log.GinMiddleware(logger))

	ws := NewWSHandler(room)
	history := NewHistoryHandler(room)

	router.GET("/ws", ws.HandleWebSocket)
	router.GET("/api/history", history.GetHistory)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(200, "OK")
	})

	return router
}
