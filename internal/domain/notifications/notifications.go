package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TypeRequestSubmitted = "feedback_request_submitted"
	TypeRequestApproved  = "feedback_request_approved"
	TypeRequestDeclined  = "feedback_request_declined"
	TypeFeedbackReceived = "feedback_received"
	TypeKPIAssigned      = "kpi_assigned"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// Notify is best effort. A failed insert is logged and swallowed so the
// triggering operation still succeeds.
func (s *Service) Notify(ctx context.Context, userID, kind, title, body string) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (user_id, notification_type, title, body)
    VALUES ($1,$2,$3,$4)
  `, userID, kind, title, body)
	if err != nil {
		slog.Warn("failed to create notification", "userId", userID, "type", kind, "error", err)
	}
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	query := `
    SELECT id, user_id, notification_type, title, body, read_at, created_at
    FROM notifications
    WHERE user_id = $1
  `
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := s.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, nil
}

func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE id = $1 AND user_id = $2 AND read_at IS NULL
  `, notificationID, userID)
	return err
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE user_id = $1 AND read_at IS NULL
  `, userID)
	return err
}
