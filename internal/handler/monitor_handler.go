package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/response"
	"github.com/examind/examind-backend/internal/session"
)

const (
	monitorRefreshInterval   = 15 * time.Second
	monitorKeepAliveInterval = 30 * time.Second
	monitorQueryTimeout      = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the live proctoring feed for one exam over SSE:
// joins, counted violations and finalizations as they happen, plus a
// periodic aggregate refresh.
type MonitorHandler struct {
	rdb         *redis.Client
	monitorRepo *repository.MonitorRepository
	manager     *session.Manager
	log         zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, monitorRepo *repository.MonitorRepository, manager *session.Manager, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:         rdb,
		monitorRepo: monitorRepo,
		manager:     manager,
		log:         log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/exams/:exam_id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.sendOverview(c, reqCtx, examID)

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(monitorKeepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(monitorRefreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Proctor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendOverview(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendOverview writes one aggregate snapshot event: live session count,
// finished count and per-student violation tallies.
func (h *MonitorHandler) sendOverview(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, monitorQueryTimeout)
	defer cancel()

	liveKeys, err := h.monitorRepo.GetLiveSnapshotKeys(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Monitor live key scan failed")
		return
	}
	finished, err := h.monitorRepo.GetFinishedCount(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Monitor finished count failed")
		return
	}
	violations, err := h.monitorRepo.GetViolationCounts(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Monitor violation count failed")
		return
	}

	payload, err := json.Marshal(gin.H{
		"type":             "overview",
		"live_sessions":    len(liveKeys),
		"active_in_memory": h.manager.ActiveCount(),
		"finished":         finished,
		"violations":       violations,
	})
	if err != nil {
		return
	}

	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
