package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lifesync/internal/repository"
	"lifesync/internal/service"
)

// SyncRunner is the part of service.SyncService the API needs.
type SyncRunner interface {
	Available() []string
	RunAll(ctx context.Context, req service.RunRequest) (service.Summary, error)
}

// EventStream serves engine events over a websocket.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, service string) error
}

type SyncHandler struct {
	Sync     SyncRunner
	Cursors  repository.CursorRepository
	Logs     repository.SyncLogRepository
	Stream   EventStream
	Location *time.Location
	Logger   *zap.Logger
	// Background is the parent context of async runs.
	Background context.Context
}

type syncRequest struct {
	Services  []string `json:"services"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Resources []string `json:"resources"`
	Async     bool     `json:"async"`
}

func (h *SyncHandler) Register(r *gin.Engine) {
	g := r.Group("/api/sync")
	g.POST("", h.run)
	g.GET("/services", h.services)
	g.GET("/cursors", h.cursors)
	g.GET("/logs", h.logs)
	g.GET("/stream", h.stream)
}

// @Summary Run a sync
// @Description Incremental when start/end are empty, backfill otherwise. Dates are inclusive.
// @Tags sync
// @Accept json
// @Produce json
// @Param body body syncRequest true "sync request"
// @Success 200 {object} service.Summary
// @Success 202 {object} map[string]any
// @Router /api/sync [post]
func (h *SyncHandler) run(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "sync unavailable", nil)
		return
	}
	var body syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	start, end, err := service.ParseRange(body.Start, body.End, h.location())
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req := service.RunRequest{
		Services:  cleanStrings(body.Services),
		Start:     start,
		End:       end,
		Resources: cleanStrings(body.Resources),
	}
	if !body.Async {
		sum, err := h.Sync.RunAll(c.Request.Context(), req)
		if err != nil {
			Fail(c, err)
			return
		}
		Ok(c, sum, nil)
		return
	}

	parent := h.Background
	if parent == nil {
		parent = context.Background()
	}
	go func() {
		sum, err := h.Sync.RunAll(parent, req)
		if err != nil {
			h.logger().Warn("async sync failed", zap.Error(err))
			return
		}
		h.logger().Info("async sync finished", zap.Bool("success", sum.Success), zap.Duration("elapsed", sum.Elapsed))
	}()
	Accepted(c, gin.H{"services": req.Services})
}

// @Summary List services
// @Tags sync
// @Produce json
// @Success 200 {array} string
// @Router /api/sync/services [get]
func (h *SyncHandler) services(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "sync unavailable", nil)
		return
	}
	Ok(c, h.Sync.Available(), nil)
}

// @Summary List sync cursors
// @Tags sync
// @Produce json
// @Param service query string false "service id"
// @Success 200 {array} models.SyncCursor
// @Router /api/sync/cursors [get]
func (h *SyncHandler) cursors(c *gin.Context) {
	if h.Cursors == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Cursors.ListCursors(c.Request.Context(), repository.ListCursorsParams{Service: strQueryPtr(c, "service")})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary List sync logs
// @Tags sync
// @Produce json
// @Param service query string false "service id"
// @Param resource query string false "resource name"
// @Param status query string false "running|completed|failed"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {array} models.SyncLog
// @Router /api/sync/logs [get]
func (h *SyncHandler) logs(c *gin.Context) {
	if h.Logs == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSyncLogsParams{
		Limit:    limit,
		Offset:   offset,
		Service:  strQueryPtr(c, "service"),
		Resource: strQueryPtr(c, "resource"),
		Status:   strQueryPtr(c, "status"),
		OrderBy:  "started_at",
		Asc:      boolPtr(false),
	}
	items, err := h.Logs.ListSyncLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Logs.CountSyncLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Stream sync progress
// @Description Websocket of engine events, optionally filtered by service.
// @Tags sync
// @Param service query string false "service id"
// @Router /api/sync/stream [get]
func (h *SyncHandler) stream(c *gin.Context) {
	if h.Stream == nil {
		Error(c, http.StatusServiceUnavailable, "stream unavailable", nil)
		return
	}
	if err := h.Stream.ServeWS(c.Writer, c.Request, strings.TrimSpace(c.Query("service"))); err != nil {
		h.logger().Debug("progress stream closed", zap.Error(err))
	}
}

func (h *SyncHandler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

func (h *SyncHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}
