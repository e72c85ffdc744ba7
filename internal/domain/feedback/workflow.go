package feedback

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("feedback record not found")
	ErrForbidden    = errors.New("not allowed")
	ErrInvalidState = errors.New("invalid state for this operation")
)

// RequestInput is the caller-supplied part of a feedback request. The
// subject is never taken from the payload; it is always the session user.
type RequestInput struct {
	RecipientID    string
	Type           string
	Message        string
	DueDate        time.Time
	IsAnonymous    bool
	CycleID        string
	SelfAssessment bool
}

// PrepareRequest validates the input and produces the row to insert.
// A self assessment collapses recipient and type regardless of what the
// payload carried.
func PrepareRequest(requesterID string, input RequestInput, now time.Time) (Request, map[string]string) {
	fieldErrors := map[string]string{}

	if input.SelfAssessment || input.Type == TypeSelf {
		input.RecipientID = requesterID
		input.Type = TypeSelf
	}

	if input.RecipientID == "" {
		fieldErrors["recipientId"] = "recipientId is required"
	}
	if !ValidTypes[input.Type] {
		fieldErrors["type"] = "type must be one of peer, manager, self, upward, 360"
	}
	if input.DueDate.IsZero() {
		fieldErrors["dueDate"] = "dueDate is required"
	} else if !input.DueDate.After(now) {
		fieldErrors["dueDate"] = "dueDate must be in the future"
	}
	if len(fieldErrors) > 0 {
		return Request{}, fieldErrors
	}

	return Request{
		RequesterID: requesterID,
		SubjectID:   requesterID,
		RecipientID: input.RecipientID,
		Type:        input.Type,
		Message:     input.Message,
		DueDate:     input.DueDate,
		Status:      RequestStatusPending,
		IsAnonymous: input.IsAnonymous,
		CycleID:     input.CycleID,
	}, nil
}

// CollapseSelfUpdate re-applies the self-assessment rule to a pending
// edit: whenever the effective type is self the recipient snaps back to
// the requester, no matter which of the two fields the edit touched.
func CollapseSelfUpdate(current Request, input RequestUpdate) RequestUpdate {
	effective := current.Type
	if input.Type != nil {
		effective = *input.Type
	}
	if effective == TypeSelf {
		recipient := current.RequesterID
		input.RecipientID = &recipient
	}
	return input
}

// CanTransition reports whether a request may move between the two
// statuses. Declined and expired are terminal; completed only moves to
// expired, and only once.
func CanTransition(from, to string) bool {
	switch from {
	case RequestStatusPending:
		return to == RequestStatusCompleted || to == RequestStatusDeclined
	case RequestStatusCompleted:
		return to == RequestStatusExpired
	default:
		return false
	}
}

// Editable reports whether the requester may still change or withdraw the
// request. Only pending requests are mutable.
func Editable(r Request, userID string) bool {
	return r.RequesterID == userID && r.Status == RequestStatusPending
}

// NormalizeRatings seeds the default criteria and clamps every value to the
// 0..5 scale. Criteria outside the defaults are kept as given.
func NormalizeRatings(in map[string]int) map[string]int {
	out := make(map[string]int, len(DefaultRatingCriteria))
	for _, criterion := range DefaultRatingCriteria {
		out[criterion] = 0
	}
	for criterion, value := range in {
		if value < RatingMin {
			value = RatingMin
		}
		if value > RatingMax {
			value = RatingMax
		}
		out[criterion] = value
	}
	return out
}

// VisibleTo strips the author from anonymous feedback unless the reader
// wrote it or is an admin.
func VisibleTo(f Feedback, readerID string, isAdmin bool) Feedback {
	if f.IsAnonymous && f.AuthorID != readerID && !isAdmin {
		f.AuthorID = ""
		f.AuthorName = ""
	}
	return f
}
