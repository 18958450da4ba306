package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/metrics"
	"github.com/granobox/spool/internal/notify"
)

type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func errorResponse(message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: message}
}

type QueueStore interface {
	Enqueue(ctx context.Context, content, printerConfig string) (int64, error)
	QueueStats(ctx context.Context) (*db.QueueStats, error)
	ListRecent(ctx context.Context, limit int) ([]*db.PrintJob, error)
	PurgeTerminal(ctx context.Context) (int64, error)
}

type Notifier interface {
	Broadcast(evt notify.Event)
}

// EnqueueRequest keeps both fields as raw JSON; they are stored verbatim and
// only decoded when the job is printed.
type EnqueueRequest struct {
	Content       json.RawMessage `json:"content"`
	PrinterConfig json.RawMessage `json:"printerConfig"`
}

type StatusResponse struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Timestamp   string         `json:"timestamp"`
	QueueStatus *db.QueueStats `json:"queue_status"`
}

type EnqueueResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	QueueID int64  `json:"queueId"`
}

type QueueStatusResponse struct {
	Success bool           `json:"success"`
	Queue   *db.QueueStats `json:"queue"`
}

type QueueItemsResponse struct {
	Success bool           `json:"success"`
	Items   []*db.PrintJob `json:"items"`
}

type ClearQueueResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Removed int64  `json:"removed"`
}

type JobHandler struct {
	store    QueueStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewJobHandler(store QueueStore, notifier Notifier, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		store:    store,
		notifier: notifier,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

func (h *JobHandler) Status(c *gin.Context) {
	stats, err := h.store.QueueStats(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to read queue stats", err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:     true,
		Message:     "Print queue daemon is running",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		QueueStatus: stats,
	})
}

func (h *JobHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil || isMissing(req.Content) || isMissing(req.PrinterConfig) {
		c.JSON(http.StatusBadRequest, errorResponse("content and printerConfig are required"))
		return
	}

	id, err := h.store.Enqueue(c.Request.Context(), string(req.Content), string(req.PrinterConfig))
	if err != nil {
		h.serverError(c, "failed to enqueue job", err)
		return
	}

	metrics.JobsEnqueuedTotal.Inc()
	h.logger.Info("job queued", zap.Int64("job_id", id))
	h.notifier.Broadcast(notify.QueueUpdated())

	c.JSON(http.StatusOK, EnqueueResponse{
		Success: true,
		Message: "Print job queued",
		QueueID: id,
	})
}

func (h *JobHandler) QueueStatus(c *gin.Context) {
	stats, err := h.store.QueueStats(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to read queue stats", err)
		return
	}

	c.JSON(http.StatusOK, QueueStatusResponse{Success: true, Queue: stats})
}

func (h *JobHandler) ListItems(c *gin.Context) {
	limit := db.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("limit must be a positive integer"))
			return
		}
		limit = n
	}

	items, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.serverError(c, "failed to list jobs", err)
		return
	}
	if items == nil {
		items = []*db.PrintJob{}
	}

	c.JSON(http.StatusOK, QueueItemsResponse{Success: true, Items: items})
}

func (h *JobHandler) ClearQueue(c *gin.Context) {
	removed, err := h.store.PurgeTerminal(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to purge jobs", err)
		return
	}

	if removed > 0 {
		h.logger.Info("purged finished jobs", zap.Int64("removed", removed))
		h.notifier.Broadcast(notify.QueueUpdated())
	}

	c.JSON(http.StatusOK, ClearQueueResponse{
		Success: true,
		Message: "Cleared " + strconv.FormatInt(removed, 10) + " finished jobs",
		Removed: removed,
	})
}

func (h *JobHandler) serverError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, errorResponse("Internal server error"))
}

func isMissing(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`))
}
