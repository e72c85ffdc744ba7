package feedback

import "time"

const (
	RequestStatusPending   = "pending"
	RequestStatusCompleted = "completed"
	RequestStatusDeclined  = "declined"
	RequestStatusExpired   = "expired"

	TypePeer    = "peer"
	TypeManager = "manager"
	TypeSelf    = "self"
	TypeUpward  = "upward"
	Type360     = "360"

	FeedbackStatusDraft        = "draft"
	FeedbackStatusSubmitted    = "submitted"
	FeedbackStatusAcknowledged = "acknowledged"

	CycleStatusPlanned   = "planned"
	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"
	CycleStatusCancelled = "cancelled"

	CycleTypeQuarterly = "quarterly"
	CycleTypeAnnual    = "annual"
	CycleTypeMonthly   = "monthly"
	CycleTypeCustom    = "custom"
	CycleType360       = "360"
)

var ValidTypes = map[string]bool{
	TypePeer:    true,
	TypeManager: true,
	TypeSelf:    true,
	TypeUpward:  true,
	Type360:     true,
}

var ValidRequestStatuses = map[string]bool{
	RequestStatusPending:   true,
	RequestStatusCompleted: true,
	RequestStatusDeclined:  true,
	RequestStatusExpired:   true,
}

var ValidCycleStatuses = map[string]bool{
	CycleStatusPlanned:   true,
	CycleStatusActive:    true,
	CycleStatusCompleted: true,
	CycleStatusCancelled: true,
}

var ValidCycleTypes = map[string]bool{
	CycleTypeQuarterly: true,
	CycleTypeAnnual:    true,
	CycleTypeMonthly:   true,
	CycleTypeCustom:    true,
	CycleType360:       true,
}

// DefaultRatingCriteria seeds every ratings payload; criteria the author
// never touched read back as 0.
var DefaultRatingCriteria = []string{"communication", "teamwork", "technical"}

const (
	RatingMin = 0
	RatingMax = 5
)

type Request struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requesterId"`
	SubjectID   string     `json:"subjectId"`
	RecipientID string     `json:"recipientId"`
	Type        string     `json:"type"`
	Message     string     `json:"message,omitempty"`
	DueDate     time.Time  `json:"dueDate"`
	Status      string     `json:"status"`
	IsAnonymous bool       `json:"isAnonymous"`
	CycleID     string     `json:"cycleId,omitempty"`
	DecidedBy   string     `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	RequesterName string `json:"requesterName,omitempty"`
	SubjectName   string `json:"subjectName,omitempty"`
	RecipientName string `json:"recipientName,omitempty"`
}

type Feedback struct {
	ID           string         `json:"id"`
	AuthorID     string         `json:"authorId,omitempty"`
	SubjectID    string         `json:"subjectId"`
	RequestID    string         `json:"requestId,omitempty"`
	CycleID      string         `json:"cycleId,omitempty"`
	Type         string         `json:"type"`
	Content      string         `json:"content"`
	Strengths    string         `json:"strengths,omitempty"`
	Improvements string         `json:"improvements,omitempty"`
	Ratings      map[string]int `json:"ratings"`
	IsAnonymous  bool           `json:"isAnonymous"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	AuthorName  string `json:"authorName,omitempty"`
	SubjectName string `json:"subjectName,omitempty"`
}

type Cycle struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	StartDate   time.Time      `json:"startDate"`
	EndDate     time.Time      `json:"endDate"`
	Status      string         `json:"status"`
	Template    map[string]any `json:"template,omitempty"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type RequestFilter struct {
	Status      string
	Type        string
	RequesterID string
	RecipientID string
	SubjectID   string
	CycleID     string
}

type FeedbackFilter struct {
	SubjectID string
	AuthorID  string
	Type      string
	CycleID   string
}

// Analytics aggregates submission volumes for the reporting screens.
type Analytics struct {
	Total          int                `json:"total"`
	ByStatus       map[string]int     `json:"byStatus"`
	ByType         map[string]int     `json:"byType"`
	AverageRatings map[string]float64 `json:"averageRatings"`
}

// Summary aggregates submitted feedback about one subject.
type Summary struct {
	SubjectID      string             `json:"subjectId"`
	SubjectName    string             `json:"subjectName,omitempty"`
	FeedbackCount  int                `json:"feedbackCount"`
	ByType         map[string]int     `json:"byType"`
	AverageRatings map[string]float64 `json:"averageRatings"`
	Entries        []Feedback         `json:"entries"`
}
