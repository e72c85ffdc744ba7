package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"loophr/internal/app/server"
	"loophr/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Warning string          `json:"warning"`
	Error   any             `json:"error"`
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		Addr:              ":0",
		DatabaseURL:       dbURL,
		JWTSecret:         "test-secret",
		Environment:       "test",
		AllowedOrigins:    []string{"*"},
		AllowSelfSignup:   true,
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		SeedAdminName:     "Test Admin",
		SeedAdminEmail:    "admin@test.local",
		SeedAdminPassword: "ChangeMe123!",
		RunMigrations:     true,
		RunSeed:           true,
		MaxBodyBytes:      1048576,
		AuthRatePerMinute: 1000,
		AuthRateBurst:     1000,
		MetricsEnabled:    true,
	}
}

func startApp(t *testing.T) (*server.App, *httptest.Server) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	app, err := server.New(context.Background(), testConfig(dbURL))
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return app, ts
}

// The full request lifecycle: an employee asks a colleague for feedback, an
// admin approves it, the colleague answers, and the request leaves the
// colleague's queue for good.
func TestFeedbackRequestJourney(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	suffix := time.Now().UnixNano()
	requesterToken, requesterID := register(t, client, ts.URL, fmt.Sprintf("requester-%d@example.com", suffix))
	recipientToken, recipientID := register(t, client, ts.URL, fmt.Sprintf("recipient-%d@example.com", suffix))

	dueDate := time.Now().Add(72 * time.Hour).Format(time.RFC3339)
	created := postJSON(t, client, ts.URL+"/feedback/requests", requesterToken, map[string]any{
		"recipientId": recipientID,
		"type":        "peer",
		"message":     "Looking for honest input on the Q3 launch.",
		"dueDate":     dueDate,
	}, http.StatusCreated)

	var request map[string]any
	mustUnmarshal(t, created.Data, &request)
	requestID, _ := request["id"].(string)
	if requestID == "" {
		t.Fatal("expected request id")
	}
	if request["status"] != "pending" {
		t.Fatalf("new request status = %v, want pending", request["status"])
	}
	if request["subjectId"] != requesterID {
		t.Fatalf("subjectId = %v, want requester %s", request["subjectId"], requesterID)
	}

	// Not actionable until approved.
	if n := countList(t, client, ts.URL+"/feedback/requests/actionable", recipientToken); n != 0 {
		t.Fatalf("actionable before approval = %d, want 0", n)
	}

	approved := postJSON(t, client, ts.URL+"/feedback/requests/"+requestID+"/approve", adminToken, nil, http.StatusOK)
	mustUnmarshal(t, approved.Data, &request)
	if request["status"] != "completed" {
		t.Fatalf("approved request status = %v, want completed", request["status"])
	}

	// Approving twice must fail; the decision is final.
	postJSON(t, client, ts.URL+"/feedback/requests/"+requestID+"/approve", adminToken, nil, http.StatusConflict)

	if n := countList(t, client, ts.URL+"/feedback/requests/actionable", recipientToken); n != 1 {
		t.Fatalf("actionable after approval = %d, want 1", n)
	}

	// The payload names the wrong subject on purpose; request-bound
	// feedback is always about the request's subject.
	submitted := postJSON(t, client, ts.URL+"/feedback", recipientToken, map[string]any{
		"requestId": requestID,
		"subjectId": recipientID,
		"content":   "Strong ownership through the launch. Communicate risks earlier.",
		"ratings":   map[string]int{"communication": 4, "teamwork": 5},
	}, http.StatusCreated)

	var stored map[string]any
	mustUnmarshal(t, submitted.Data, &stored)
	if stored["status"] != "submitted" {
		t.Fatalf("feedback status = %v, want submitted", stored["status"])
	}
	if stored["subjectId"] != requesterID {
		t.Fatalf("subjectId = %v, want the request's subject %s", stored["subjectId"], requesterID)
	}
	ratings, _ := stored["ratings"].(map[string]any)
	if ratings["technical"] != float64(0) {
		t.Fatalf("unset criterion technical = %v, want 0", ratings["technical"])
	}

	// First submission expires the request exactly once.
	fetched := getJSON(t, client, ts.URL+"/feedback/requests/"+requestID, requesterToken, http.StatusOK)
	mustUnmarshal(t, fetched.Data, &request)
	if request["status"] != "expired" {
		t.Fatalf("request status after submission = %v, want expired", request["status"])
	}

	if n := countList(t, client, ts.URL+"/feedback/requests/actionable", recipientToken); n != 0 {
		t.Fatalf("actionable after submission = %d, want 0", n)
	}

	// The subject sees the feedback about them.
	if n := countList(t, client, ts.URL+"/feedback", requesterToken); n != 1 {
		t.Fatalf("feedback about requester = %d, want 1", n)
	}
}

func TestDeclinedRequestIsTerminal(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	suffix := time.Now().UnixNano()
	requesterToken, _ := register(t, client, ts.URL, fmt.Sprintf("decl-req-%d@example.com", suffix))
	_, recipientID := register(t, client, ts.URL, fmt.Sprintf("decl-rec-%d@example.com", suffix))

	created := postJSON(t, client, ts.URL+"/feedback/requests", requesterToken, map[string]any{
		"recipientId": recipientID,
		"type":        "peer",
		"dueDate":     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	var request map[string]any
	mustUnmarshal(t, created.Data, &request)
	requestID, _ := request["id"].(string)

	declined := postJSON(t, client, ts.URL+"/feedback/requests/"+requestID+"/decline", adminToken, nil, http.StatusOK)
	mustUnmarshal(t, declined.Data, &request)
	if request["status"] != "declined" {
		t.Fatalf("status = %v, want declined", request["status"])
	}

	// No decision, edit, or withdrawal is possible afterwards.
	postJSON(t, client, ts.URL+"/feedback/requests/"+requestID+"/approve", adminToken, nil, http.StatusConflict)
	putJSON(t, client, ts.URL+"/feedback/requests/"+requestID, requesterToken, map[string]any{
		"message": "never mind",
	}, http.StatusConflict)
	deleteJSON(t, client, ts.URL+"/feedback/requests/"+requestID, requesterToken, http.StatusConflict)
}

func TestSelfAssessmentCollapsesRecipient(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	suffix := time.Now().UnixNano()
	token, userID := register(t, client, ts.URL, fmt.Sprintf("self-%d@example.com", suffix))
	_, otherID := register(t, client, ts.URL, fmt.Sprintf("self-other-%d@example.com", suffix))

	created := postJSON(t, client, ts.URL+"/feedback/requests", token, map[string]any{
		"recipientId":    otherID,
		"type":           "peer",
		"dueDate":        time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"selfAssessment": true,
	}, http.StatusCreated)

	var request map[string]any
	mustUnmarshal(t, created.Data, &request)
	if request["recipientId"] != userID {
		t.Fatalf("recipientId = %v, want the requester %s", request["recipientId"], userID)
	}
	if request["type"] != "self" {
		t.Fatalf("type = %v, want self", request["type"])
	}
}

func TestEditToSelfSnapsRecipient(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	suffix := time.Now().UnixNano()
	token, userID := register(t, client, ts.URL, fmt.Sprintf("edit-self-%d@example.com", suffix))
	_, otherID := register(t, client, ts.URL, fmt.Sprintf("edit-self-other-%d@example.com", suffix))

	created := postJSON(t, client, ts.URL+"/feedback/requests", token, map[string]any{
		"recipientId": otherID,
		"type":        "peer",
		"dueDate":     time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	var request map[string]any
	mustUnmarshal(t, created.Data, &request)
	requestID, _ := request["id"].(string)

	// Switching a pending request to self must pull the recipient back to
	// the requester.
	edited := putJSON(t, client, ts.URL+"/feedback/requests/"+requestID, token, map[string]any{
		"type": "self",
	}, http.StatusOK)
	mustUnmarshal(t, edited.Data, &request)
	if request["type"] != "self" {
		t.Fatalf("type = %v, want self", request["type"])
	}
	if request["recipientId"] != userID {
		t.Fatalf("recipientId = %v, want the requester %s", request["recipientId"], userID)
	}

	// And a self request cannot be pointed at someone else afterwards.
	edited = putJSON(t, client, ts.URL+"/feedback/requests/"+requestID, token, map[string]any{
		"recipientId": otherID,
	}, http.StatusOK)
	mustUnmarshal(t, edited.Data, &request)
	if request["recipientId"] != userID {
		t.Fatalf("recipientId after redirect attempt = %v, want %s", request["recipientId"], userID)
	}
}

func TestCycleRoundTrip(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	name := fmt.Sprintf("Q1 Review %d", time.Now().UnixNano())
	created := postJSON(t, client, ts.URL+"/feedback/cycles", adminToken, map[string]any{
		"name":      name,
		"type":      "quarterly",
		"startDate": "2031-01-01",
		"endDate":   "2031-03-31",
	}, http.StatusCreated)

	var cycle map[string]any
	mustUnmarshal(t, created.Data, &cycle)
	cycleID, _ := cycle["id"].(string)
	if cycleID == "" {
		t.Fatal("expected cycle id")
	}

	fetched := getJSON(t, client, ts.URL+"/feedback/cycles/"+cycleID, adminToken, http.StatusOK)
	mustUnmarshal(t, fetched.Data, &cycle)
	if cycle["name"] != name {
		t.Fatalf("name = %v, want %s", cycle["name"], name)
	}
	if cycle["type"] != "quarterly" {
		t.Fatalf("type = %v, want quarterly", cycle["type"])
	}
	if cycle["status"] != "planned" {
		t.Fatalf("status = %v, want the planned default", cycle["status"])
	}
	start, _ := cycle["startDate"].(string)
	end, _ := cycle["endDate"].(string)
	if !strings.HasPrefix(start, "2031-01-01") || !strings.HasPrefix(end, "2031-03-31") {
		t.Fatalf("dates = %v..%v, want 2031-01-01..2031-03-31", start, end)
	}

	// End before start and unknown type/status never reach storage.
	postJSON(t, client, ts.URL+"/feedback/cycles", adminToken, map[string]any{
		"name":      name + " backwards",
		"startDate": "2031-03-31",
		"endDate":   "2031-01-01",
	}, http.StatusBadRequest)
	postJSON(t, client, ts.URL+"/feedback/cycles", adminToken, map[string]any{
		"name":      name + " weekly",
		"type":      "weekly",
		"startDate": "2031-01-01",
		"endDate":   "2031-03-31",
	}, http.StatusBadRequest)
	putJSON(t, client, ts.URL+"/feedback/cycles/"+cycleID, adminToken, map[string]any{
		"status": "paused",
	}, http.StatusBadRequest)
}

func TestPastDueDateRejected(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	suffix := time.Now().UnixNano()
	token, _ := register(t, client, ts.URL, fmt.Sprintf("past-%d@example.com", suffix))
	_, recipientID := register(t, client, ts.URL, fmt.Sprintf("past-rec-%d@example.com", suffix))

	postJSON(t, client, ts.URL+"/feedback/requests", token, map[string]any{
		"recipientId": recipientID,
		"type":        "peer",
		"dueDate":     time.Now().Add(-24 * time.Hour).Format(time.RFC3339),
	}, http.StatusBadRequest)
}

func TestEmployeeCannotApproveRequests(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	suffix := time.Now().UnixNano()
	requesterToken, _ := register(t, client, ts.URL, fmt.Sprintf("emp-req-%d@example.com", suffix))
	recipientToken, recipientID := register(t, client, ts.URL, fmt.Sprintf("emp-rec-%d@example.com", suffix))

	created := postJSON(t, client, ts.URL+"/feedback/requests", requesterToken, map[string]any{
		"recipientId": recipientID,
		"type":        "peer",
		"dueDate":     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	var request map[string]any
	mustUnmarshal(t, created.Data, &request)
	requestID, _ := request["id"].(string)

	postJSON(t, client, ts.URL+"/feedback/requests/"+requestID+"/approve", recipientToken, nil, http.StatusForbidden)
}

func TestKPIProgressJourney(t *testing.T) {
	_, ts := startApp(t)
	client := ts.Client()

	suffix := time.Now().UnixNano()
	token, _ := register(t, client, ts.URL, fmt.Sprintf("kpi-%d@example.com", suffix))

	created := postJSON(t, client, ts.URL+"/kpis", token, map[string]any{
		"title":       "Close 20 support tickets",
		"type":        "quantitative",
		"targetValue": 20,
		"status":      "active",
	}, http.StatusCreated)
	var record map[string]any
	mustUnmarshal(t, created.Data, &record)
	kpiID, _ := record["id"].(string)
	if record["progress"] != float64(0) {
		t.Fatalf("initial progress = %v, want 0", record["progress"])
	}

	postJSON(t, client, ts.URL+"/kpis/"+kpiID+"/updates", token, map[string]any{
		"value": 10,
		"notes": "halfway",
	}, http.StatusCreated)

	fetched := getJSON(t, client, ts.URL+"/kpis/"+kpiID, token, http.StatusOK)
	mustUnmarshal(t, fetched.Data, &record)
	if record["currentValue"] != float64(10) {
		t.Fatalf("currentValue = %v, want 10", record["currentValue"])
	}
	if record["progress"] != float64(50) {
		t.Fatalf("progress = %v, want 50", record["progress"])
	}

	if n := countList(t, client, ts.URL+"/kpis/"+kpiID+"/updates", token); n != 1 {
		t.Fatalf("update history length = %d, want 1", n)
	}
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	var payload map[string]any
	mustUnmarshal(t, resp.Data, &payload)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func register(t *testing.T, client *http.Client, baseURL, email string) (token, userID string) {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/auth/register", "", map[string]any{
		"name":     "Journey Tester",
		"email":    email,
		"password": "Password123!",
	}, http.StatusCreated)
	var payload struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	mustUnmarshal(t, resp.Data, &payload)
	if payload.Token == "" || payload.User.ID == "" {
		t.Fatal("expected token and user id from registration")
	}
	return payload.Token, payload.User.ID
}

func countList(t *testing.T, client *http.Client, url, token string) int {
	t.Helper()
	resp := getJSON(t, client, url, token, http.StatusOK)
	var list []json.RawMessage
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return 0
	}
	mustUnmarshal(t, resp.Data, &list)
	return len(list)
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("failed to decode %s: %v", string(raw), err)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, wantStatus int) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d (body: %s)", method, url, resp.StatusCode, wantStatus, string(raw))
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("failed to decode envelope %s: %v", string(raw), err)
		}
	}
	return env
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any, wantStatus int) envelope {
	return doJSON(t, client, http.MethodPost, url, token, body, wantStatus)
}

func putJSON(t *testing.T, client *http.Client, url, token string, body any, wantStatus int) envelope {
	return doJSON(t, client, http.MethodPut, url, token, body, wantStatus)
}

func getJSON(t *testing.T, client *http.Client, url, token string, wantStatus int) envelope {
	return doJSON(t, client, http.MethodGet, url, token, nil, wantStatus)
}

func deleteJSON(t *testing.T, client *http.Client, url, token string, wantStatus int) envelope {
	return doJSON(t, client, http.MethodDelete, url, token, nil, wantStatus)
}
