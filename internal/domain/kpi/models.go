package kpi

import "time"

const (
	TypeQuantitative = "quantitative"
	TypeQualitative  = "qualitative"

	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var ValidTypes = map[string]bool{
	TypeQuantitative: true,
	TypeQualitative:  true,
}

// ValidStatuses is the closed value set; transitions between members are
// deliberately unconstrained.
var ValidStatuses = map[string]bool{
	StatusDraft:     true,
	StatusActive:    true,
	StatusCompleted: true,
	StatusCancelled: true,
}

type KPI struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Type         string     `json:"type"`
	TargetValue  float64    `json:"targetValue"`
	CurrentValue float64    `json:"currentValue"`
	Weight       float64    `json:"weight"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	Status       string     `json:"status"`
	CategoryID   string     `json:"categoryId,omitempty"`
	UserID       string     `json:"userId"`
	CreatedBy    string     `json:"createdBy"`
	Progress     int        `json:"progress"`
	IsOverdue    bool       `json:"isOverdue"`
	Metrics      []Metric   `json:"metrics,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Metric struct {
	ID           string  `json:"id"`
	KpiID        string  `json:"kpiId,omitempty"`
	Name         string  `json:"name"`
	TargetValue  float64 `json:"targetValue"`
	CurrentValue float64 `json:"currentValue"`
	Unit         string  `json:"unit,omitempty"`
	Progress     int     `json:"progress"`
}

type Update struct {
	ID        string    `json:"id"`
	KpiID     string    `json:"kpiId"`
	Value     float64   `json:"value"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Filter struct {
	UserID     string
	Status     string
	CategoryID string
	Search     string
}

type Summary struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"byStatus"`
	AverageProgress float64        `json:"averageProgress"`
	OverdueCount    int            `json:"overdueCount"`
}
