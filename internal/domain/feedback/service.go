package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

const requestColumns = `
  r.id, r.requester_id, r.subject_id, r.recipient_id, r.request_type, r.message,
  r.due_date, r.status, r.is_anonymous, COALESCE(r.cycle_id::text, ''),
  COALESCE(r.decided_by::text, ''), r.decided_at, r.created_at, r.updated_at,
  req.name, subj.name, rec.name
`

const requestJoins = `
  JOIN users req ON req.id = r.requester_id
  JOIN users subj ON subj.id = r.subject_id
  JOIN users rec ON rec.id = r.recipient_id
`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.SubjectID, &r.RecipientID, &r.Type, &r.Message,
		&r.DueDate, &r.Status, &r.IsAnonymous, &r.CycleID,
		&r.DecidedBy, &r.DecidedAt, &r.CreatedAt, &r.UpdatedAt,
		&r.RequesterName, &r.SubjectName, &r.RecipientName,
	)
	return r, err
}

func (s *Service) CreateRequest(ctx context.Context, r Request) (Request, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO feedback_requests (requester_id, subject_id, recipient_id, request_type, message, due_date, status, is_anonymous, cycle_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,'')::uuid)
    RETURNING id
  `, r.RequesterID, r.SubjectID, r.RecipientID, r.Type, r.Message, r.DueDate, r.Status, r.IsAnonymous, r.CycleID).Scan(&id)
	if err != nil {
		return Request{}, err
	}
	return s.GetRequest(ctx, id)
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (Request, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM feedback_requests r `+requestJoins+`
    WHERE r.id = $1
  `, requestID)
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return r, err
}

func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	where := []string{"1=1"}
	args := []any{}

	add := func(clause, value string) {
		if value != "" {
			args = append(args, value)
			where = append(where, fmt.Sprintf(clause, len(args)))
		}
	}
	add("r.status = $%d", filter.Status)
	add("r.request_type = $%d", filter.Type)
	add("r.requester_id = $%d", filter.RequesterID)
	add("r.recipient_id = $%d", filter.RecipientID)
	add("r.subject_id = $%d", filter.SubjectID)
	add("r.cycle_id = $%d", filter.CycleID)

	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
    SELECT %s
    FROM feedback_requests r %s
    WHERE %s
    ORDER BY r.created_at DESC
  `, requestColumns, requestJoins, strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, nil
}

type RequestUpdate struct {
	RecipientID *string
	Type        *string
	Message     *string
	DueDate     *time.Time
	IsAnonymous *bool
}

// UpdateRequest lets the requester amend a request while it is still
// pending. Anyone else, or any later state, is rejected.
func (s *Service) UpdateRequest(ctx context.Context, requestID, userID string, input RequestUpdate) (Request, error) {
	current, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if current.RequesterID != userID {
		return Request{}, ErrForbidden
	}
	if !Editable(current, userID) {
		return Request{}, ErrInvalidState
	}
	input = CollapseSelfUpdate(current, input)

	set := []string{"updated_at = now()"}
	args := []any{}
	if input.RecipientID != nil {
		args = append(args, *input.RecipientID)
		set = append(set, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if input.Type != nil {
		args = append(args, *input.Type)
		set = append(set, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if input.Message != nil {
		args = append(args, *input.Message)
		set = append(set, fmt.Sprintf("message = $%d", len(args)))
	}
	if input.DueDate != nil {
		args = append(args, *input.DueDate)
		set = append(set, fmt.Sprintf("due_date = $%d", len(args)))
	}
	if input.IsAnonymous != nil {
		args = append(args, *input.IsAnonymous)
		set = append(set, fmt.Sprintf("is_anonymous = $%d", len(args)))
	}

	args = append(args, requestID)
	if _, err := s.DB.Exec(ctx,
		fmt.Sprintf("UPDATE feedback_requests SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)),
		args...); err != nil {
		return Request{}, err
	}
	return s.GetRequest(ctx, requestID)
}

func (s *Service) DeleteRequest(ctx context.Context, requestID, userID string) error {
	current, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if current.RequesterID != userID {
		return ErrForbidden
	}
	if !Editable(current, userID) {
		return ErrInvalidState
	}
	_, err = s.DB.Exec(ctx, "DELETE FROM feedback_requests WHERE id = $1", requestID)
	return err
}

// Decide moves a pending request to completed or declined and records who
// decided. The guard lives in the UPDATE's WHERE clause so two concurrent
// decisions cannot both win.
func (s *Service) Decide(ctx context.Context, requestID, deciderID string, approve bool) (Request, error) {
	to := RequestStatusDeclined
	if approve {
		to = RequestStatusCompleted
	}

	tag, err := s.DB.Exec(ctx, `
    UPDATE feedback_requests
    SET status = $1, decided_by = $2, decided_at = now(), updated_at = now()
    WHERE id = $3 AND status = $4
  `, to, deciderID, requestID, RequestStatusPending)
	if err != nil {
		return Request{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetRequest(ctx, requestID); err != nil {
			return Request{}, err
		}
		return Request{}, ErrInvalidState
	}
	return s.GetRequest(ctx, requestID)
}

const feedbackColumns = `
  f.id, f.author_id, f.subject_id, COALESCE(f.request_id::text, ''),
  COALESCE(f.cycle_id::text, ''), f.feedback_type, f.content, f.strengths, f.improvements,
  f.ratings, f.is_anonymous, f.status, f.created_at, f.updated_at,
  auth.name, subj.name
`

const feedbackJoins = `
  JOIN users auth ON auth.id = f.author_id
  JOIN users subj ON subj.id = f.subject_id
`

func scanFeedback(row pgx.Row) (Feedback, error) {
	var f Feedback
	err := row.Scan(
		&f.ID, &f.AuthorID, &f.SubjectID, &f.RequestID,
		&f.CycleID, &f.Type, &f.Content, &f.Strengths, &f.Improvements,
		&f.Ratings, &f.IsAnonymous, &f.Status, &f.CreatedAt, &f.UpdatedAt,
		&f.AuthorName, &f.SubjectName,
	)
	return f, err
}

// Submit stores a piece of feedback. When the feedback answers an approved
// request the request is expired so it drops out of the recipient's queue.
// The expiry is best effort: a failure there never discards the feedback,
// it only surfaces as a warning to the caller.
func (s *Service) Submit(ctx context.Context, f Feedback) (Feedback, string, error) {
	f.Ratings = NormalizeRatings(f.Ratings)
	f.Status = FeedbackStatusSubmitted

	if f.RequestID != "" {
		req, err := s.GetRequest(ctx, f.RequestID)
		if err != nil {
			return Feedback{}, "", err
		}
		if req.RecipientID != f.AuthorID {
			return Feedback{}, "", ErrForbidden
		}
		if !CanTransition(req.Status, RequestStatusExpired) {
			return Feedback{}, "", ErrInvalidState
		}
		// Subject and type always come from the request; a payload naming
		// someone else would store feedback disagreeing with the request
		// it expires.
		f.SubjectID = req.SubjectID
		f.Type = req.Type
	}

	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO feedback (author_id, subject_id, request_id, cycle_id, feedback_type, content, strengths, improvements, ratings, is_anonymous, status)
    VALUES ($1,$2,NULLIF($3,'')::uuid,NULLIF($4,'')::uuid,$5,$6,$7,$8,$9,$10,$11)
    RETURNING id
  `, f.AuthorID, f.SubjectID, f.RequestID, f.CycleID, f.Type, f.Content, f.Strengths, f.Improvements, f.Ratings, f.IsAnonymous, f.Status).Scan(&id)
	if err != nil {
		return Feedback{}, "", err
	}

	warning := ""
	if f.RequestID != "" {
		_, err := s.DB.Exec(ctx, `
      UPDATE feedback_requests SET status = $1, updated_at = now()
      WHERE id = $2 AND status = $3
    `, RequestStatusExpired, f.RequestID, RequestStatusCompleted)
		if err != nil {
			slog.Warn("failed to expire feedback request after submission",
				"requestId", f.RequestID, "feedbackId", id, "error", err)
			warning = "request_expiry_failed"
		}
	}

	stored, err := s.getFeedback(ctx, id)
	return stored, warning, err
}

func (s *Service) getFeedback(ctx context.Context, feedbackID string) (Feedback, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+feedbackColumns+`
    FROM feedback f `+feedbackJoins+`
    WHERE f.id = $1
  `, feedbackID)
	f, err := scanFeedback(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, ErrNotFound
	}
	return f, err
}

// GetFeedback applies the anonymity rules for the reader before returning.
func (s *Service) GetFeedback(ctx context.Context, feedbackID, readerID string, isAdmin bool) (Feedback, error) {
	f, err := s.getFeedback(ctx, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	return VisibleTo(f, readerID, isAdmin), nil
}

func (s *Service) ListFeedback(ctx context.Context, filter FeedbackFilter, readerID string, isAdmin bool) ([]Feedback, error) {
	where := []string{"1=1"}
	args := []any{}

	add := func(clause, value string) {
		if value != "" {
			args = append(args, value)
			where = append(where, fmt.Sprintf(clause, len(args)))
		}
	}
	add("f.subject_id = $%d", filter.SubjectID)
	add("f.author_id = $%d", filter.AuthorID)
	add("f.feedback_type = $%d", filter.Type)
	add("f.cycle_id = $%d", filter.CycleID)

	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
    SELECT %s
    FROM feedback f %s
    WHERE %s
    ORDER BY f.created_at DESC
  `, feedbackColumns, feedbackJoins, strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, VisibleTo(f, readerID, isAdmin))
	}
	return list, nil
}

// Acknowledge lets the subject mark received feedback as read.
func (s *Service) Acknowledge(ctx context.Context, feedbackID, subjectID string) (Feedback, error) {
	f, err := s.getFeedback(ctx, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	if f.SubjectID != subjectID {
		return Feedback{}, ErrForbidden
	}
	if f.Status != FeedbackStatusSubmitted {
		return Feedback{}, ErrInvalidState
	}
	if _, err := s.DB.Exec(ctx, `
    UPDATE feedback SET status = $1, updated_at = now() WHERE id = $2
  `, FeedbackStatusAcknowledged, feedbackID); err != nil {
		return Feedback{}, err
	}
	return s.GetFeedback(ctx, feedbackID, subjectID, false)
}

type FeedbackUpdate struct {
	Content      *string
	Strengths    *string
	Improvements *string
	Ratings      map[string]int
	IsAnonymous  *bool
}

// UpdateFeedback lets the author, or an admin, amend submitted content.
func (s *Service) UpdateFeedback(ctx context.Context, feedbackID, userID string, isAdmin bool, input FeedbackUpdate) (Feedback, error) {
	f, err := s.getFeedback(ctx, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	if f.AuthorID != userID && !isAdmin {
		return Feedback{}, ErrForbidden
	}

	set := []string{"updated_at = now()"}
	args := []any{}
	if input.Content != nil {
		args = append(args, *input.Content)
		set = append(set, fmt.Sprintf("content = $%d", len(args)))
	}
	if input.Strengths != nil {
		args = append(args, *input.Strengths)
		set = append(set, fmt.Sprintf("strengths = $%d", len(args)))
	}
	if input.Improvements != nil {
		args = append(args, *input.Improvements)
		set = append(set, fmt.Sprintf("improvements = $%d", len(args)))
	}
	if input.Ratings != nil {
		args = append(args, NormalizeRatings(input.Ratings))
		set = append(set, fmt.Sprintf("ratings = $%d", len(args)))
	}
	if input.IsAnonymous != nil {
		args = append(args, *input.IsAnonymous)
		set = append(set, fmt.Sprintf("is_anonymous = $%d", len(args)))
	}

	args = append(args, feedbackID)
	if _, err := s.DB.Exec(ctx,
		fmt.Sprintf("UPDATE feedback SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)),
		args...); err != nil {
		return Feedback{}, err
	}
	return s.GetFeedback(ctx, feedbackID, userID, isAdmin)
}

func (s *Service) DeleteFeedback(ctx context.Context, feedbackID, userID string, isAdmin bool) error {
	f, err := s.getFeedback(ctx, feedbackID)
	if err != nil {
		return err
	}
	if f.AuthorID != userID && !isAdmin {
		return ErrForbidden
	}
	_, err = s.DB.Exec(ctx, "DELETE FROM feedback WHERE id = $1", feedbackID)
	return err
}

func (s *Service) ListCycles(ctx context.Context) ([]Cycle, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, description, cycle_type, start_date, end_date, status, template, COALESCE(created_by::text, ''), created_at, updated_at
    FROM feedback_cycles
    ORDER BY start_date DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Type, &c.StartDate, &c.EndDate, &c.Status, &c.Template, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}

func (s *Service) GetCycle(ctx context.Context, cycleID string) (Cycle, error) {
	var c Cycle
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, description, cycle_type, start_date, end_date, status, template, COALESCE(created_by::text, ''), created_at, updated_at
    FROM feedback_cycles
    WHERE id = $1
  `, cycleID).Scan(&c.ID, &c.Name, &c.Description, &c.Type, &c.StartDate, &c.EndDate, &c.Status, &c.Template, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrNotFound
	}
	return c, err
}

func (s *Service) CreateCycle(ctx context.Context, c Cycle) (Cycle, error) {
	if c.Status == "" {
		c.Status = CycleStatusPlanned
	}
	if c.Type == "" {
		c.Type = CycleTypeCustom
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO feedback_cycles (name, description, cycle_type, start_date, end_date, status, template, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,'')::uuid)
    RETURNING id
  `, c.Name, c.Description, c.Type, c.StartDate, c.EndDate, c.Status, c.Template, c.CreatedBy).Scan(&id)
	if err != nil {
		return Cycle{}, err
	}
	return s.GetCycle(ctx, id)
}

type CycleUpdate struct {
	Name        *string
	Description *string
	Type        *string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *string
	Template    map[string]any
}

func (s *Service) UpdateCycle(ctx context.Context, cycleID string, input CycleUpdate) (Cycle, error) {
	set := []string{"updated_at = now()"}
	args := []any{}
	if input.Name != nil {
		args = append(args, *input.Name)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if input.Description != nil {
		args = append(args, *input.Description)
		set = append(set, fmt.Sprintf("description = $%d", len(args)))
	}
	if input.Type != nil {
		if !ValidCycleTypes[*input.Type] {
			return Cycle{}, ErrInvalidState
		}
		args = append(args, *input.Type)
		set = append(set, fmt.Sprintf("cycle_type = $%d", len(args)))
	}
	if input.StartDate != nil {
		args = append(args, *input.StartDate)
		set = append(set, fmt.Sprintf("start_date = $%d", len(args)))
	}
	if input.EndDate != nil {
		args = append(args, *input.EndDate)
		set = append(set, fmt.Sprintf("end_date = $%d", len(args)))
	}
	if input.Status != nil {
		if !ValidCycleStatuses[*input.Status] {
			return Cycle{}, ErrInvalidState
		}
		args = append(args, *input.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.Template != nil {
		args = append(args, input.Template)
		set = append(set, fmt.Sprintf("template = $%d", len(args)))
	}

	args = append(args, cycleID)
	tag, err := s.DB.Exec(ctx,
		fmt.Sprintf("UPDATE feedback_cycles SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)),
		args...)
	if err != nil {
		return Cycle{}, err
	}
	if tag.RowsAffected() == 0 {
		return Cycle{}, ErrNotFound
	}
	return s.GetCycle(ctx, cycleID)
}

func (s *Service) DeleteCycle(ctx context.Context, cycleID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM feedback_cycles WHERE id = $1", cycleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Create360 fans one review out to several reviewers in a single
// transaction. Unlike a regular request, the subject is chosen by the
// caller; access is enforced at the transport layer.
func (s *Service) Create360(ctx context.Context, requesterID, subjectID string, recipientIDs []string, dueDate time.Time, message, cycleID string, anonymous bool) ([]Request, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		var id string
		if err := tx.QueryRow(ctx, `
      INSERT INTO feedback_requests (requester_id, subject_id, recipient_id, request_type, message, due_date, status, is_anonymous, cycle_id)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,'')::uuid)
      RETURNING id
    `, requesterID, subjectID, recipientID, Type360, message, dueDate, RequestStatusPending, anonymous, cycleID).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// Analytics reports submission volumes across the whole dataset.
func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	out := Analytics{
		ByStatus:       map[string]int{},
		ByType:         map[string]int{},
		AverageRatings: map[string]float64{},
	}

	rows, err := s.DB.Query(ctx, "SELECT status, COUNT(*) FROM feedback GROUP BY status")
	if err != nil {
		return Analytics{}, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return Analytics{}, err
		}
		out.ByStatus[status] = count
		out.Total += count
	}
	rows.Close()

	rows, err = s.DB.Query(ctx, "SELECT feedback_type, COUNT(*) FROM feedback GROUP BY feedback_type")
	if err != nil {
		return Analytics{}, err
	}
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			rows.Close()
			return Analytics{}, err
		}
		out.ByType[typ] = count
	}
	rows.Close()

	rows, err = s.DB.Query(ctx, `
    SELECT entry.key, AVG(entry.value::numeric)::float8
    FROM feedback f, jsonb_each_text(f.ratings) entry
    GROUP BY entry.key
  `)
	if err != nil {
		return Analytics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var criterion string
		var average float64
		if err := rows.Scan(&criterion, &average); err != nil {
			return Analytics{}, err
		}
		out.AverageRatings[criterion] = average
	}
	return out, nil
}

// Summarize360 aggregates everything submitted about one subject.
func (s *Service) Summarize360(ctx context.Context, subjectID, readerID string, isAdmin bool) (Summary, error) {
	entries, err := s.ListFeedback(ctx, FeedbackFilter{SubjectID: subjectID}, readerID, isAdmin)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		SubjectID:      subjectID,
		ByType:         map[string]int{},
		AverageRatings: map[string]float64{},
		Entries:        entries,
	}

	totals := map[string]int{}
	counts := map[string]int{}
	for _, f := range entries {
		if summary.SubjectName == "" {
			summary.SubjectName = f.SubjectName
		}
		summary.FeedbackCount++
		summary.ByType[f.Type]++
		for criterion, value := range f.Ratings {
			totals[criterion] += value
			counts[criterion]++
		}
	}
	for criterion, total := range totals {
		summary.AverageRatings[criterion] = float64(total) / float64(counts[criterion])
	}
	return summary, nil
}
