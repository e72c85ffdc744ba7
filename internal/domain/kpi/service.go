package kpi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("kpi not found")
	ErrInvalidStatus = errors.New("invalid status")
)

type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

const kpiColumns = `
  k.id, k.title, k.description, k.kpi_type, k.target_value, k.current_value,
  k.weight, k.start_date, k.end_date, k.status,
  COALESCE(k.category_id::text, ''), k.user_id, k.created_by, k.created_at, k.updated_at
`

func scanKPI(row pgx.Row) (KPI, error) {
	var k KPI
	err := row.Scan(
		&k.ID, &k.Title, &k.Description, &k.Type, &k.TargetValue, &k.CurrentValue,
		&k.Weight, &k.StartDate, &k.EndDate, &k.Status,
		&k.CategoryID, &k.UserID, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt,
	)
	return k, err
}

type ListResult struct {
	KPIs  []KPI
	Total int
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("k.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("k.status = $%d", len(args)))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("k.category_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = append(where, fmt.Sprintf("lower(k.title) LIKE $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM kpis k WHERE "+clause, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}

	args = append(args, limit, offset)
	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
    SELECT %s
    FROM kpis k
    WHERE %s
    ORDER BY k.created_at DESC
    LIMIT $%d OFFSET $%d
  `, kpiColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	now := time.Now()
	var kpis []KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return ListResult{}, err
		}
		Derive(&k, now)
		kpis = append(kpis, k)
	}
	return ListResult{KPIs: kpis, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, kpiID string) (KPI, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+kpiColumns+`
    FROM kpis k
    WHERE k.id = $1
  `, kpiID)
	k, err := scanKPI(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return KPI{}, ErrNotFound
	}
	if err != nil {
		return KPI{}, err
	}

	metrics, err := s.listMetrics(ctx, kpiID)
	if err != nil {
		return KPI{}, err
	}
	k.Metrics = metrics
	Derive(&k, time.Now())
	return k, nil
}

func (s *Service) listMetrics(ctx context.Context, kpiID string) ([]Metric, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, kpi_id, name, target_value, current_value, unit
    FROM kpi_metrics
    WHERE kpi_id = $1
    ORDER BY created_at
  `, kpiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.KpiID, &m.Name, &m.TargetValue, &m.CurrentValue, &m.Unit); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

type CreateInput struct {
	Title       string
	Description string
	Type        string
	TargetValue float64
	Weight      float64
	StartDate   *time.Time
	EndDate     *time.Time
	Status      string
	CategoryID  string
	UserID      string
	CreatedBy   string
	Metrics     []Metric
}

func (s *Service) Create(ctx context.Context, input CreateInput) (string, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO kpis (title, description, kpi_type, target_value, weight, start_date, end_date, status, category_id, user_id, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,'')::uuid,$10,$11)
    RETURNING id
  `, input.Title, input.Description, input.Type, input.TargetValue, input.Weight,
		input.StartDate, input.EndDate, input.Status, input.CategoryID, input.UserID, input.CreatedBy).Scan(&id); err != nil {
		return "", err
	}

	for _, metric := range input.Metrics {
		if _, err := tx.Exec(ctx, `
      INSERT INTO kpi_metrics (kpi_id, name, target_value, current_value, unit)
      VALUES ($1,$2,$3,$4,$5)
    `, id, metric.Name, metric.TargetValue, metric.CurrentValue, metric.Unit); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

type UpdateInput struct {
	Title        *string
	Description  *string
	TargetValue  *float64
	CurrentValue *float64
	Weight       *float64
	StartDate    *time.Time
	EndDate      *time.Time
	Status       *string
	CategoryID   *string
}

func (s *Service) Update(ctx context.Context, kpiID string, input UpdateInput) (KPI, error) {
	set := []string{"updated_at = now()"}
	args := []any{}

	if input.Title != nil {
		args = append(args, *input.Title)
		set = append(set, fmt.Sprintf("title = $%d", len(args)))
	}
	if input.Description != nil {
		args = append(args, *input.Description)
		set = append(set, fmt.Sprintf("description = $%d", len(args)))
	}
	if input.TargetValue != nil {
		args = append(args, *input.TargetValue)
		set = append(set, fmt.Sprintf("target_value = $%d", len(args)))
	}
	if input.CurrentValue != nil {
		args = append(args, *input.CurrentValue)
		set = append(set, fmt.Sprintf("current_value = $%d", len(args)))
	}
	if input.Weight != nil {
		args = append(args, *input.Weight)
		set = append(set, fmt.Sprintf("weight = $%d", len(args)))
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
		if !ValidStatuses[*input.Status] {
			return KPI{}, ErrInvalidStatus
		}
		args = append(args, *input.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CategoryID != nil {
		args = append(args, *input.CategoryID)
		set = append(set, fmt.Sprintf("category_id = NULLIF($%d,'')::uuid", len(args)))
	}

	args = append(args, kpiID)
	tag, err := s.DB.Exec(ctx, fmt.Sprintf("UPDATE kpis SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return KPI{}, err
	}
	if tag.RowsAffected() == 0 {
		return KPI{}, ErrNotFound
	}
	return s.Get(ctx, kpiID)
}

func (s *Service) Delete(ctx context.Context, kpiID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM kpis WHERE id = $1", kpiID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUpdate appends a progress record and moves the KPI's current value. The
// update history itself is never mutated.
func (s *Service) AddUpdate(ctx context.Context, kpiID string, value float64, notes, createdBy string) (Update, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Update{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var update Update
	err = tx.QueryRow(ctx, `
    INSERT INTO kpi_updates (kpi_id, value, notes, created_by)
    VALUES ($1,$2,$3,$4)
    RETURNING id, kpi_id, value, notes, created_by, created_at
  `, kpiID, value, notes, createdBy).Scan(&update.ID, &update.KpiID, &update.Value, &update.Notes, &update.CreatedBy, &update.CreatedAt)
	if err != nil {
		return Update{}, err
	}

	tag, err := tx.Exec(ctx, "UPDATE kpis SET current_value = $1, updated_at = now() WHERE id = $2", value, kpiID)
	if err != nil {
		return Update{}, err
	}
	if tag.RowsAffected() == 0 {
		return Update{}, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return Update{}, err
	}
	return update, nil
}

func (s *Service) ListUpdates(ctx context.Context, kpiID string) ([]Update, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, kpi_id, value, notes, created_by, created_at
    FROM kpi_updates
    WHERE kpi_id = $1
    ORDER BY created_at DESC
  `, kpiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []Update
	for rows.Next() {
		var u Update
		if err := rows.Scan(&u.ID, &u.KpiID, &u.Value, &u.Notes, &u.CreatedBy, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, description, created_at
    FROM kpi_categories
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO kpi_categories (name, description)
    VALUES ($1,$2)
    RETURNING id
  `, name, description).Scan(&id)
	return id, err
}

func (s *Service) UpdateCategory(ctx context.Context, categoryID, name, description string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpi_categories SET name = $1, description = $2 WHERE id = $3
  `, name, description, categoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory orphans referencing KPIs rather than cascading; the FK
// clears category_id.
func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM kpi_categories WHERE id = $1", categoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) AnalyticsSummary(ctx context.Context, userID string) (Summary, error) {
	query := `
    SELECT k.status, k.target_value, k.current_value, k.end_date
    FROM kpis k
  `
	args := []any{}
	if userID != "" {
		query += " WHERE k.user_id = $1"
		args = append(args, userID)
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	summary := Summary{ByStatus: map[string]int{}}
	now := time.Now()
	progressTotal := 0
	for rows.Next() {
		var status string
		var target, current float64
		var endDate *time.Time
		if err := rows.Scan(&status, &target, &current, &endDate); err != nil {
			return Summary{}, err
		}
		summary.Total++
		summary.ByStatus[status]++
		progress := ProgressPercent(current, target)
		progressTotal += progress
		if IsOverdue(endDate, progress, status, now) {
			summary.OverdueCount++
		}
	}
	if summary.Total > 0 {
		summary.AverageProgress = float64(progressTotal) / float64(summary.Total)
	}
	return summary, nil
}
