// Package main runs end-to-end checks of the booking API against a running
// server. Scenarios cover:
//   - Happy-path booking from the slot list
//   - Double-booking rejection with conflicting ids and alternatives
//   - Idempotent retry returning the original appointment
//   - Full lifecycle (confirm, start, complete) and terminal immutability
//   - Reschedule to an alternative slot
//   - Advisory check on an occupied slot
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 SERVICE_ID=<uuid> go run scripts/e2e/run_e2e.go [scenario-name]
//
// DATE (YYYY-MM-DD, default tomorrow) selects the day used for slot lookups.
// Runs against the in-memory server (USE_MEMORY_STORE=1) or a real stack.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	apiBase   string
	serviceID string
	date      string
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type appointment struct {
	ID       string    `json:"id"`
	StaffID  string    `json:"staff_id"`
	Status   string    `json:"status"`
	Version  int64     `json:"version"`
	StartsAt time.Time `json:"starts_at"`
}

type apiError struct {
	Error          string      `json:"error"`
	Kind           string      `json:"kind"`
	ConflictingIDs []string    `json:"conflicting_ids"`
	Alternatives   []time.Time `json:"alternatives"`
	Retryable      bool        `json:"retryable"`
}

func doJSON(method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func listSlots(staff string, limit int) ([]time.Time, error) {
	path := fmt.Sprintf("/staff/%s/slots?service_id=%s&date=%s&limit=%d", staff, serviceID, date, limit)
	status, raw, err := doJSON(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("slots returned %d: %s", status, raw)
	}
	var out struct {
		Slots []time.Time `json:"slots"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func book(staff string, startsAt time.Time, idempotencyKey string) (int, appointment, apiError, error) {
	payload := map[string]string{
		"staff_id":        staff,
		"service_id":      serviceID,
		"client_id":       "e2e-client",
		"starts_at":       startsAt.Format(time.RFC3339),
		"idempotency_key": idempotencyKey,
	}
	status, raw, err := doJSON(http.MethodPost, "/bookings", payload)
	if err != nil {
		return 0, appointment{}, apiError{}, err
	}
	if status == http.StatusCreated {
		var appt appointment
		err = json.Unmarshal(raw, &appt)
		return status, appt, apiError{}, err
	}
	var apiErr apiError
	err = json.Unmarshal(raw, &apiErr)
	return status, appointment{}, apiErr, err
}

// mustBook books a fresh slot for the scenario, skipping the first offset
// slots so scenarios don't trample each other's bookings.
func mustBook(t *T, offset int) (appointment, bool) {
	slots, err := listSlots("any", offset+1)
	if err != nil || len(slots) <= offset {
		t.fatalf("could not list slots: %v", err)
		return appointment{}, false
	}
	status, appt, apiErr, err := book("any", slots[offset], uuid.NewString())
	if err != nil || status != http.StatusCreated {
		t.fatalf("booking failed: status=%d err=%v apiErr=%+v", status, err, apiErr)
		return appointment{}, false
	}
	return appt, true
}

func transition(t *T, id, action string, wantStatus int) appointment {
	status, raw, err := doJSON(http.MethodPost, fmt.Sprintf("/appointments/%s/%s", id, action), nil)
	if err != nil {
		t.fatalf("%s request failed: %v", action, err)
		return appointment{}
	}
	t.check(fmt.Sprintf("%s returns %d", action, wantStatus), status == wantStatus)
	var appt appointment
	_ = json.Unmarshal(raw, &appt)
	return appt
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHappyPath(t *T) {
	appt, ok := mustBook(t, 0)
	if !ok {
		return
	}
	t.check("appointment is scheduled", appt.Status == "scheduled")
	t.check("staff was assigned", appt.StaffID != "" && appt.StaffID != uuid.Nil.String())

	status, raw, err := doJSON(http.MethodGet, "/appointments/"+appt.ID, nil)
	if err != nil || status != http.StatusOK {
		t.fatalf("get appointment: status=%d err=%v", status, err)
		return
	}
	var fetched appointment
	_ = json.Unmarshal(raw, &fetched)
	t.check("fetched appointment matches", fetched.ID == appt.ID)

	transition(t, appt.ID, "confirm", http.StatusOK)
}

func scenarioDoubleBooking(t *T) {
	appt, ok := mustBook(t, 1)
	if !ok {
		return
	}
	status, _, apiErr, err := book(appt.StaffID, appt.StartsAt, uuid.NewString())
	if err != nil {
		t.fatalf("second booking request failed: %v", err)
		return
	}
	t.check("second booking rejected with 409", status == http.StatusConflict)
	t.check("conflict kind reported", apiErr.Kind == "conflict")
	t.check("conflicting appointment id returned", len(apiErr.ConflictingIDs) == 1 && apiErr.ConflictingIDs[0] == appt.ID)
	t.check("alternatives suggested", len(apiErr.Alternatives) > 0)
	t.check("conflict is not retryable", !apiErr.Retryable)
}

func scenarioIdempotentRetry(t *T) {
	slots, err := listSlots("any", 3)
	if err != nil || len(slots) < 3 {
		t.fatalf("could not list slots: %v", err)
		return
	}
	key := uuid.NewString()
	status1, first, _, err := book("any", slots[2], key)
	if err != nil || status1 != http.StatusCreated {
		t.fatalf("first booking failed: status=%d err=%v", status1, err)
		return
	}
	status2, second, _, err := book("any", slots[2], key)
	if err != nil {
		t.fatalf("retry request failed: %v", err)
		return
	}
	t.check("retry succeeds", status2 == http.StatusCreated)
	t.check("retry returns the original appointment", second.ID == first.ID)
}

func scenarioLifecycle(t *T) {
	appt, ok := mustBook(t, 3)
	if !ok {
		return
	}
	transition(t, appt.ID, "confirm", http.StatusOK)
	transition(t, appt.ID, "start", http.StatusOK)
	final := transition(t, appt.ID, "complete", http.StatusOK)
	t.check("final status is completed", final.Status == "completed")

	status, raw, err := doJSON(http.MethodPost, "/appointments/"+appt.ID+"/cancel", map[string]string{"reason": "too late"})
	if err != nil {
		t.fatalf("cancel request failed: %v", err)
		return
	}
	t.check("cancel after completion rejected with 422", status == http.StatusUnprocessableEntity)
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)
	t.check("invalid transition kind reported", apiErr.Kind == "invalid_transition")
}

func scenarioReschedule(t *T) {
	appt, ok := mustBook(t, 4)
	if !ok {
		return
	}
	slots, err := listSlots(appt.StaffID, 8)
	if err != nil || len(slots) == 0 {
		t.fatalf("could not list slots for reschedule: %v", err)
		return
	}
	target := slots[len(slots)-1]
	status, raw, err := doJSON(http.MethodPut, "/appointments/"+appt.ID+"/schedule", map[string]string{
		"starts_at": target.Format(time.RFC3339),
	})
	if err != nil {
		t.fatalf("reschedule request failed: %v", err)
		return
	}
	t.check("reschedule returns 200", status == http.StatusOK)
	var moved appointment
	_ = json.Unmarshal(raw, &moved)
	t.check("version bumped", moved.Version == appt.Version+1)
	t.check("start time moved", moved.StartsAt.Equal(target))
}

func scenarioAdvisoryCheck(t *T) {
	appt, ok := mustBook(t, 5)
	if !ok {
		return
	}
	status, raw, err := doJSON(http.MethodPost, "/bookings/check", map[string]string{
		"staff_id":   appt.StaffID,
		"service_id": serviceID,
		"starts_at":  appt.StartsAt.Format(time.RFC3339),
	})
	if err != nil || status != http.StatusOK {
		t.fatalf("check request failed: status=%d err=%v", status, err)
		return
	}
	var res struct {
		OK             bool     `json:"ok"`
		ConflictingIDs []string `json:"conflicting_ids"`
	}
	_ = json.Unmarshal(raw, &res)
	t.check("occupied slot reported as not ok", !res.OK)
	t.check("conflicting id reported", len(res.ConflictingIDs) == 1 && res.ConflictingIDs[0] == appt.ID)
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	serviceID = os.Getenv("SERVICE_ID")
	if apiBase == "" || serviceID == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and SERVICE_ID required")
		os.Exit(1)
	}
	date = os.Getenv("DATE")
	if date == "" {
		date = time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"double-booking", scenarioDoubleBooking},
		{"idempotent-retry", scenarioIdempotentRetry},
		{"lifecycle", scenarioLifecycle},
		{"reschedule", scenarioReschedule},
		{"advisory-check", scenarioAdvisoryCheck},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "ok"
		if t.failed > 0 {
			status = "FAILED"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  [%s] %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		os.Exit(1)
	}
}
