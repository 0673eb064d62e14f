package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
	"github.com/retailhub/hybridsync/pkg/syncer"
)

// SyncEngine is the part of *syncer.Engine the HTTP surface needs.
type SyncEngine interface {
	Enqueue(ctx context.Context, events []syncer.EventRequest) (syncer.EnqueueResult, error)
	Dispatch(ctx context.Context, limit int) (syncer.DispatchSummary, error)
	Resolve(ctx context.Context, id uuid.UUID) (syncer.ResolvedEntry, error)
	Summary(ctx context.Context) (syncer.Totals, error)
	Hybrid(ctx context.Context) (syncer.HybridTotals, error)
	Breakdown(ctx context.Context) ([]syncer.ModuleTotals, error)
	Forecast(ctx context.Context, lookbackMinutes int) (syncer.Forecast, error)
	List(ctx context.Context, q syncer.StatusQuery) (syncer.StatusListing, error)
	Attempts(ctx context.Context, id uuid.UUID) ([]model.Attempt, error)
}

type SyncHandler struct {
	engine          SyncEngine
	logger          *zap.Logger
	dispatchLimit   int
	lookbackMinutes int
}

func NewSyncHandler(engine SyncEngine, logger *zap.Logger, dispatchLimit, lookbackMinutes int) *SyncHandler {
	return &SyncHandler{
		engine:          engine,
		logger:          logger,
		dispatchLimit:   dispatchLimit,
		lookbackMinutes: lookbackMinutes,
	}
}

type enqueueRequest struct {
	Events []syncer.EventRequest `json:"events" binding:"required"`
}

type queueEntryResponse struct {
	ID               string      `json:"id"`
	Ledger           string      `json:"ledger"`
	EventType        string      `json:"event_type"`
	Payload          model.JSONB `json:"payload"`
	IdempotencyKey   *string     `json:"idempotency_key,omitempty"`
	Status           string      `json:"status"`
	Attempts         int         `json:"attempts"`
	LastError        *string     `json:"last_error,omitempty"`
	ResolvedManually bool        `json:"resolved_manually"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
}

type outboxEntryResponse struct {
	ID               string      `json:"id"`
	Ledger           string      `json:"ledger"`
	EntityType       string      `json:"entity_type"`
	EntityID         string      `json:"entity_id"`
	Operation        string      `json:"operation"`
	Payload          model.JSONB `json:"payload"`
	Priority         string      `json:"priority"`
	Status           string      `json:"status"`
	Attempts         int         `json:"attempts"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	ResolvedManually bool        `json:"resolved_manually"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
}

type attemptResponse struct {
	ID          string  `json:"id"`
	Ledger      string  `json:"ledger"`
	EntryID     string  `json:"entry_id"`
	Source      string  `json:"source"`
	Success     bool    `json:"success"`
	Error       *string `json:"error,omitempty"`
	AttemptedAt string  `json:"attempted_at"`
}

type pageResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
}

func (h *SyncHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	result, err := h.engine.Enqueue(c.Request.Context(), req.Events)
	if err != nil {
		h.fail(c, err, "failed to enqueue events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queued": mapQueueEntries(result.Queued),
		"reused": mapQueueEntries(result.Reused),
	})
}

func (h *SyncHandler) Dispatch(c *gin.Context) {
	limit, ok := queryInt(c, "limit", h.dispatchLimit)
	if !ok {
		return
	}

	summary, err := h.engine.Dispatch(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "failed to dispatch")
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *SyncHandler) Resolve(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	resolved, err := h.engine.Resolve(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to resolve entry")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry":   mapEntry(resolved.Entry),
		"changed": resolved.Changed,
	})
}

func (h *SyncHandler) List(c *gin.Context) {
	query := syncer.StatusQuery{
		Ledger: c.DefaultQuery("ledger", "all"),
		Limit:  parseLimit(c.Query("limit"), syncer.DefaultListLimit),
		Offset: parseOffset(c.Query("offset")),
	}
	if value := strings.TrimSpace(c.Query("status_filter")); value != "" {
		status, err := model.ParseSyncStatus(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status_filter"})
			return
		}
		query.Status = &status
	}

	listing, err := h.engine.List(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err, "failed to list entries")
		return
	}

	response := gin.H{
		"limit":  listing.Limit,
		"offset": listing.Offset,
	}
	if listing.Queue != nil {
		response["queue"] = pageResponse{Items: mapQueueEntries(listing.Queue.Items), Total: listing.Queue.Total}
	}
	if listing.Outbox != nil {
		response["outbox"] = pageResponse{Items: mapOutboxEntries(listing.Outbox.Items), Total: listing.Outbox.Total}
	}
	c.JSON(http.StatusOK, response)
}

func (h *SyncHandler) Summary(c *gin.Context) {
	totals, err := h.engine.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to compute summary")
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *SyncHandler) Hybrid(c *gin.Context) {
	totals, err := h.engine.Hybrid(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to compute summary")
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *SyncHandler) Breakdown(c *gin.Context) {
	modules, err := h.engine.Breakdown(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to compute breakdown")
		return
	}
	c.JSON(http.StatusOK, modules)
}

func (h *SyncHandler) Forecast(c *gin.Context) {
	lookback, ok := queryInt(c, "lookback_minutes", h.lookbackMinutes)
	if !ok {
		return
	}

	forecast, err := h.engine.Forecast(c.Request.Context(), lookback)
	if err != nil {
		h.fail(c, err, "failed to compute forecast")
		return
	}
	c.JSON(http.StatusOK, forecast)
}

func (h *SyncHandler) Attempts(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	attempts, err := h.engine.Attempts(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load attempts")
		return
	}

	response := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		response = append(response, mapAttempt(attempt))
	}
	c.JSON(http.StatusOK, response)
}

// fail maps engine errors to status codes; anything unexpected is logged and hidden behind message.
func (h *SyncHandler) fail(c *gin.Context, err error, message string) {
	var verr *syncer.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
	case errors.Is(err, model.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

func mapEntry(entry model.Entry) interface{} {
	switch e := entry.(type) {
	case *model.QueueEntry:
		return mapQueueEntry(e)
	case *model.OutboxEntry:
		return mapOutboxEntry(e)
	default:
		return nil
	}
}

func mapQueueEntries(entries []*model.QueueEntry) []queueEntryResponse {
	response := make([]queueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, mapQueueEntry(entry))
	}
	return response
}

func mapOutboxEntries(entries []*model.OutboxEntry) []outboxEntryResponse {
	response := make([]outboxEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, mapOutboxEntry(entry))
	}
	return response
}

func mapQueueEntry(entry *model.QueueEntry) queueEntryResponse {
	return queueEntryResponse{
		ID:               entry.ID.String(),
		Ledger:           string(model.LedgerQueue),
		EventType:        entry.EventType,
		Payload:          entry.Payload,
		IdempotencyKey:   entry.IdempotencyKey,
		Status:           string(entry.Status),
		Attempts:         entry.Attempts,
		LastError:        entry.LastError,
		ResolvedManually: entry.ResolvedManually,
		CreatedAt:        entry.CreatedAt.UTC().Format(timeRFC3339Nano),
		UpdatedAt:        entry.UpdatedAt.UTC().Format(timeRFC3339Nano),
	}
}

func mapOutboxEntry(entry *model.OutboxEntry) outboxEntryResponse {
	return outboxEntryResponse{
		ID:               entry.ID.String(),
		Ledger:           string(model.LedgerOutbox),
		EntityType:       entry.EntityType,
		EntityID:         entry.EntityID,
		Operation:        entry.Operation,
		Payload:          entry.Payload,
		Priority:         string(entry.Priority),
		Status:           string(entry.Status),
		Attempts:         entry.Attempts,
		ErrorMessage:     entry.LastError,
		ResolvedManually: entry.ResolvedManually,
		CreatedAt:        entry.CreatedAt.UTC().Format(timeRFC3339Nano),
		UpdatedAt:        entry.UpdatedAt.UTC().Format(timeRFC3339Nano),
	}
}

func mapAttempt(attempt model.Attempt) attemptResponse {
	return attemptResponse{
		ID:          attempt.ID.String(),
		Ledger:      string(attempt.Ledger),
		EntryID:     attempt.EntryID.String(),
		Source:      string(attempt.Source),
		Success:     attempt.Success,
		Error:       attempt.Error,
		AttemptedAt: attempt.AttemptedAt.UTC().Format(timeRFC3339Nano),
	}
}
