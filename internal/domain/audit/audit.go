package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loophr/internal/platform/requestctx"
)

type Event struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// Record writes an audit row. Failures are logged, never propagated; audit
// must not take down the operation it describes.
func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID, detail string) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_id, action, entity_type, entity_id, detail, request_id)
    VALUES (NULLIF($1,'')::uuid,$2,$3,$4,$5,$6)
  `, actorID, action, entityType, entityID, detail, requestctx.GetRequestID(ctx))
	if err != nil {
		slog.Warn("failed to record audit event", "action", action, "entityType", entityType, "error", err)
	}
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, COALESCE(actor_id::text, ''), action, entity_type, entity_id, detail, request_id, created_at
    FROM audit_events
    ORDER BY created_at DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
