package feedback

import (
	"testing"
	"time"
)

func TestPrepareRequestForcesSubjectToRequester(t *testing.T) {
	now := time.Now()
	r, fieldErrors := PrepareRequest("user-1", RequestInput{
		RecipientID: "user-2",
		Type:        TypePeer,
		DueDate:     now.Add(48 * time.Hour),
	}, now)
	if fieldErrors != nil {
		t.Fatalf("unexpected field errors: %v", fieldErrors)
	}
	if r.SubjectID != "user-1" {
		t.Fatalf("subject = %q, want requester", r.SubjectID)
	}
	if r.Status != RequestStatusPending {
		t.Fatalf("status = %q, want pending", r.Status)
	}
}

func TestPrepareRequestSelfCollapsesRecipientAndType(t *testing.T) {
	now := time.Now()
	r, fieldErrors := PrepareRequest("user-1", RequestInput{
		RecipientID:    "user-2",
		Type:           TypePeer,
		DueDate:        now.Add(24 * time.Hour),
		SelfAssessment: true,
	}, now)
	if fieldErrors != nil {
		t.Fatalf("unexpected field errors: %v", fieldErrors)
	}
	if r.RecipientID != "user-1" {
		t.Fatalf("recipient = %q, want requester", r.RecipientID)
	}
	if r.Type != TypeSelf {
		t.Fatalf("type = %q, want self", r.Type)
	}
}

func TestPrepareRequestRejectsPastDueDate(t *testing.T) {
	now := time.Now()
	for _, due := range []time.Time{now.Add(-time.Hour), now} {
		_, fieldErrors := PrepareRequest("user-1", RequestInput{
			RecipientID: "user-2",
			Type:        TypePeer,
			DueDate:     due,
		}, now)
		if fieldErrors["dueDate"] == "" {
			t.Fatalf("dueDate %v accepted, want rejection", due)
		}
	}
}

func TestPrepareRequestRejectsMissingRecipientAndBadType(t *testing.T) {
	now := time.Now()
	_, fieldErrors := PrepareRequest("user-1", RequestInput{
		Type:    "sideways",
		DueDate: now.Add(time.Hour),
	}, now)
	if fieldErrors["recipientId"] == "" {
		t.Fatal("missing recipient accepted")
	}
	if fieldErrors["type"] == "" {
		t.Fatal("unknown type accepted")
	}
}

func TestCollapseSelfUpdateForcesRecipient(t *testing.T) {
	current := Request{RequesterID: "user-1", RecipientID: "user-2", Type: TypePeer, Status: RequestStatusPending}
	self := TypeSelf

	got := CollapseSelfUpdate(current, RequestUpdate{Type: &self})
	if got.RecipientID == nil || *got.RecipientID != "user-1" {
		t.Fatalf("recipient = %v, want forced to requester", got.RecipientID)
	}
}

func TestCollapseSelfUpdateKeepsSelfRequestOnRequester(t *testing.T) {
	current := Request{RequesterID: "user-1", RecipientID: "user-1", Type: TypeSelf, Status: RequestStatusPending}
	other := "user-2"

	got := CollapseSelfUpdate(current, RequestUpdate{RecipientID: &other})
	if got.RecipientID == nil || *got.RecipientID != "user-1" {
		t.Fatalf("recipient = %v, want snapped back to requester", got.RecipientID)
	}
}

func TestCollapseSelfUpdateLeavesOtherTypesAlone(t *testing.T) {
	current := Request{RequesterID: "user-1", RecipientID: "user-2", Type: TypePeer, Status: RequestStatusPending}
	other := "user-3"

	got := CollapseSelfUpdate(current, RequestUpdate{RecipientID: &other})
	if got.RecipientID == nil || *got.RecipientID != "user-3" {
		t.Fatalf("recipient = %v, want untouched edit", got.RecipientID)
	}
	if got.Type != nil {
		t.Fatalf("type = %v, want nil", got.Type)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{RequestStatusPending, RequestStatusCompleted, true},
		{RequestStatusPending, RequestStatusDeclined, true},
		{RequestStatusPending, RequestStatusExpired, false},
		{RequestStatusCompleted, RequestStatusExpired, true},
		{RequestStatusCompleted, RequestStatusDeclined, false},
		{RequestStatusDeclined, RequestStatusCompleted, false},
		{RequestStatusExpired, RequestStatusCompleted, false},
		{RequestStatusExpired, RequestStatusExpired, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCycleFieldSetsAreClosed(t *testing.T) {
	types := []struct {
		value string
		want  bool
	}{
		{CycleTypeQuarterly, true},
		{CycleTypeAnnual, true},
		{CycleTypeMonthly, true},
		{CycleTypeCustom, true},
		{CycleType360, true},
		{"weekly", false},
		{"", false},
	}
	for _, tc := range types {
		if got := ValidCycleTypes[tc.value]; got != tc.want {
			t.Errorf("ValidCycleTypes[%q] = %v, want %v", tc.value, got, tc.want)
		}
	}

	statuses := []struct {
		value string
		want  bool
	}{
		{CycleStatusPlanned, true},
		{CycleStatusActive, true},
		{CycleStatusCompleted, true},
		{CycleStatusCancelled, true},
		{"paused", false},
		{"draft", false},
	}
	for _, tc := range statuses {
		if got := ValidCycleStatuses[tc.value]; got != tc.want {
			t.Errorf("ValidCycleStatuses[%q] = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestNormalizeRatingsSeedsDefaultsAndClamps(t *testing.T) {
	got := NormalizeRatings(map[string]int{
		"communication": 9,
		"leadership":    -3,
	})
	if got["communication"] != RatingMax {
		t.Fatalf("communication = %d, want clamped to %d", got["communication"], RatingMax)
	}
	if got["leadership"] != RatingMin {
		t.Fatalf("leadership = %d, want clamped to %d", got["leadership"], RatingMin)
	}
	if got["teamwork"] != 0 || got["technical"] != 0 {
		t.Fatalf("unset criteria should default to 0, got %v", got)
	}
}

func TestNormalizeRatingsNilInput(t *testing.T) {
	got := NormalizeRatings(nil)
	if len(got) != len(DefaultRatingCriteria) {
		t.Fatalf("got %d criteria, want %d", len(got), len(DefaultRatingCriteria))
	}
	for _, criterion := range DefaultRatingCriteria {
		if v, ok := got[criterion]; !ok || v != 0 {
			t.Fatalf("criterion %q = %d (present=%v), want 0", criterion, v, ok)
		}
	}
}

func TestVisibleToHidesAnonymousAuthor(t *testing.T) {
	f := Feedback{AuthorID: "user-1", AuthorName: "Avery", IsAnonymous: true}

	hidden := VisibleTo(f, "user-2", false)
	if hidden.AuthorID != "" || hidden.AuthorName != "" {
		t.Fatal("anonymous author leaked to another reader")
	}

	own := VisibleTo(f, "user-1", false)
	if own.AuthorID != "user-1" {
		t.Fatal("author should see their own identity")
	}

	admin := VisibleTo(f, "user-2", true)
	if admin.AuthorID != "user-1" {
		t.Fatal("admin should see the author")
	}
}

func TestEditable(t *testing.T) {
	r := Request{RequesterID: "user-1", Status: RequestStatusPending}
	if !Editable(r, "user-1") {
		t.Fatal("requester should be able to edit a pending request")
	}
	if Editable(r, "user-2") {
		t.Fatal("non-requester edited a request")
	}
	r.Status = RequestStatusCompleted
	if Editable(r, "user-1") {
		t.Fatal("completed request should be immutable")
	}
}
