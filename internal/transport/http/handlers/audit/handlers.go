package audithandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

type AuditService interface {
	Count(ctx context.Context, filter audit.Filter) (int, error)
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Entry, error)
	History(ctx context.Context) ([]audit.Entry, error)
}

type Handler struct {
	Service AuditService
	Perms   middleware.PermissionStore
}

func NewHandler(service AuditService, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/history", h.handleHistory)
	r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/logs", h.handleListLogs)
	r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/logs/export", h.handleExportLogs)
}

// handleHistory returns every log row, newest first.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.History(r.Context())
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseFilter(w, r, requestID)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		slog.Warn("log count failed", "err", err)
	}
	entries, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, entries, requestID)
}

type logRow struct {
	ID         int64  `csv:"id"`
	CreatedAt  string `csv:"created_at"`
	ActorEmail string `csv:"actor_email"`
	Action     string `csv:"action"`
	ModelName  string `csv:"model_name"`
	ObjectID   string `csv:"object_id"`
	LogType    string `csv:"log_type"`
	Changes    string `csv:"changes"`
}

func (h *Handler) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseFilter(w, r, requestID)
	if !ok {
		return
	}
	entries, err := h.Service.List(r.Context(), filter, 0, 0)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	rows := make([]logRow, 0, len(entries))
	for _, entry := range entries {
		changes, err := json.Marshal(entry.Changes)
		if err != nil {
			slog.Warn("log export changes marshal failed", "id", entry.ID, "err", err)
		}
		rows = append(rows, logRow{
			ID:         entry.ID,
			CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339),
			ActorEmail: entry.ActorEmail,
			Action:     entry.Action,
			ModelName:  entry.ModelName,
			ObjectID:   entry.ObjectID,
			LogType:    entry.LogType,
			Changes:    string(changes),
		})
	}
	out, err := gocsv.MarshalBytes(rows)
	if err != nil {
		slog.Error("log export failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "log_export_failed", "failed to export logs", requestID)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=logs.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func parseFilter(w http.ResponseWriter, r *http.Request, requestID string) (audit.Filter, bool) {
	query := r.URL.Query()
	filter := audit.Filter{
		LogType:   strings.TrimSpace(query.Get("logType")),
		ModelName: strings.TrimSpace(query.Get("modelName")),
		Action:    strings.TrimSpace(query.Get("action")),
		ObjectID:  strings.TrimSpace(query.Get("objectId")),
	}
	if filter.LogType != "" && !audit.ValidLogType(filter.LogType) {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "logType", Reason: "must be one of: operation, system, security"}})
		return audit.Filter{}, false
	}
	return filter, true
}
