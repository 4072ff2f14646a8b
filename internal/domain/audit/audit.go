package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/platform/querier"
)

const (
	LogTypeOperation = "operation"
	LogTypeSystem    = "system"
	LogTypeSecurity  = "security"
)

const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDelete       = "delete"
	ActionExecute      = "execute"
	ActionRuleExecuted = "Rule Executed"
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionCancel       = "cancel"
	ActionBulkImport   = "bulk_import"
)

// Actor identifies who performed a mutation.
type Actor struct {
	UserID int64
	Email  string
}

// System is the actor used by background and command-line work.
var System = Actor{Email: "system"}

// Entry is one append-only log row. Changes is stored verbatim and is
// returned as raw JSON when read back.
type Entry struct {
	ID         int64     `json:"id"`
	ActorEmail string    `json:"actorEmail"`
	Action     string    `json:"action"`
	ModelName  string    `json:"modelName"`
	ObjectID   string    `json:"objectId"`
	Changes    any       `json:"changes"`
	LogType    string    `json:"logType"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Filter struct {
	LogType   string
	ModelName string
	Action    string
	ObjectID  string
}

func ValidLogType(logType string) bool {
	switch logType {
	case LogTypeOperation, LogTypeSystem, LogTypeSecurity:
		return true
	}
	return false
}

func (e Entry) normalized() (Entry, error) {
	e.Action = strings.TrimSpace(e.Action)
	e.ModelName = strings.TrimSpace(e.ModelName)
	if e.LogType == "" {
		e.LogType = LogTypeOperation
	}
	if e.Action == "" {
		return e, apperr.Invalid("action", "is required")
	}
	if e.ModelName == "" {
		return e, apperr.Invalid("modelName", "is required")
	}
	if !ValidLogType(e.LogType) {
		return e, apperr.Invalid("logType", "must be operation, system or security")
	}
	if e.ActorEmail == "" {
		e.ActorEmail = System.Email
	}
	return e, nil
}

// Record appends entry using q, which may be a pool or an open transaction.
func Record(ctx context.Context, q querier.Querier, entry Entry) (Entry, error) {
	entry, err := entry.normalized()
	if err != nil {
		return Entry{}, err
	}
	changes := entry.Changes
	if changes == nil {
		changes = map[string]any{}
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal log changes: %w", err)
	}

	err = q.QueryRow(ctx, `
    INSERT INTO logs (actor_email, action, model_name, object_id, changes, log_type)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at
  `, entry.ActorEmail, entry.Action, entry.ModelName, entry.ObjectID, payload, entry.LogType).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	entry.Changes = json.RawMessage(payload)
	return entry, nil
}

// Service reads and appends log rows. It has no update or delete path and
// the logs table rejects both at the database level.
type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, entry Entry) (Entry, error) {
	return Record(ctx, s.DB, entry)
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns entries newest first. A limit of zero returns every row.
func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, error) {
	query, args := buildBaseQuery("SELECT id, actor_email, action, model_name, object_id, changes, log_type, created_at", filter)
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var entry Entry
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.ActorEmail, &entry.Action, &entry.ModelName, &entry.ObjectID, &changes, &entry.LogType, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Changes = json.RawMessage(changes)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// History returns every log row, newest first.
func (s *Service) History(ctx context.Context) ([]Entry, error) {
	return s.List(ctx, Filter{}, 0, 0)
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM logs WHERE 1=1"
	var args []any
	if filter.LogType != "" {
		args = append(args, filter.LogType)
		query += fmt.Sprintf(" AND log_type = $%d", len(args))
	}
	if filter.ModelName != "" {
		args = append(args, filter.ModelName)
		query += fmt.Sprintf(" AND model_name = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ObjectID != "" {
		args = append(args, filter.ObjectID)
		query += fmt.Sprintf(" AND object_id = $%d", len(args))
	}
	return query, args
}
