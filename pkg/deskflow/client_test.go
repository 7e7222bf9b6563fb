package deskflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() with empty BaseURL should fail")
	}
}

func TestSubmitIdea(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq intakeRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(IntakeResult{
			Idea:    Idea{ID: "idea-1", Title: gotReq.Idea.Title},
			Routing: Routing{ID: "rt-1", Status: "scheduled", Tier: "a"},
			Placement: Placement{
				Kind:     "scheduled",
				Schedule: &ScheduleEntry{CalendarDate: "2025-03-05"},
			},
		})
	})

	reason := "editorial call"
	dest := "core"
	result, err := c.SubmitIdea(context.Background(), Idea{Title: "Zero-downtime deploys"}, &Override{
		Destination: &dest,
		Reason:      reason,
	})
	if err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}

	if gotPath != "/api/v1/ideas" {
		t.Errorf("path = %q, want /api/v1/ideas", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
	if gotReq.Override == nil || *gotReq.Override.Destination != "core" {
		t.Errorf("override not forwarded: %+v", gotReq.Override)
	}
	if result.Routing.Status != "scheduled" {
		t.Errorf("Routing.Status = %q, want scheduled", result.Routing.Status)
	}
	if result.Placement.Schedule == nil || result.Placement.Schedule.CalendarDate != "2025-03-05" {
		t.Errorf("Placement.Schedule = %+v", result.Placement.Schedule)
	}
}

func TestListIdeas_StatusFilter(t *testing.T) {
	var gotStatus string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		json.NewEncoder(w).Encode([]Routing{{ID: "rt-1"}, {ID: "rt-2"}})
	})

	routings, err := c.ListIdeas(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("ListIdeas() error = %v", err)
	}
	if gotStatus != "scheduled" {
		t.Errorf("status query = %q, want scheduled", gotStatus)
	}
	if len(routings) != 2 {
		t.Errorf("len(routings) = %d, want 2", len(routings))
	}
}

func TestKill_SendsReason(t *testing.T) {
	var gotReq killRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(Routing{ID: "rt-1", Status: "killed"})
	})

	rt, err := c.Kill(context.Background(), "idea-1", "duplicate topic")
	if err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if gotReq.Reason != "duplicate topic" {
		t.Errorf("reason = %q, want duplicate topic", gotReq.Reason)
	}
	if rt.Status != "killed" {
		t.Errorf("Status = %q, want killed", rt.Status)
	}
}

func TestBump_ForwardsReasonAndActor(t *testing.T) {
	var gotPath string
	var gotReq bumpRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(IntakeResult{Routing: Routing{
			ID: "rt-1", Status: "scheduled", CalendarDate: "2025-03-12",
			OriginalDate: "2025-03-05", BumpCount: 1,
		}})
	})

	result, err := c.Bump(context.Background(), "idea-1", "launch coverage", "editor")
	if err != nil {
		t.Fatalf("Bump() error = %v", err)
	}
	if gotPath != "/api/v1/ideas/idea-1/bump" {
		t.Errorf("path = %q, want /api/v1/ideas/idea-1/bump", gotPath)
	}
	if gotReq.Reason != "launch coverage" || gotReq.BumpedBy != "editor" {
		t.Errorf("request = %+v, want launch coverage by editor", gotReq)
	}
	if result.Routing.OriginalDate != "2025-03-05" || result.Routing.BumpCount != 1 {
		t.Errorf("routing = %+v, want bump bookkeeping decoded", result.Routing)
	}
}

func TestAPIError_ProblemBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"type":   "https://deskflow.dev/errors/validation-error",
			"title":  "Validation Error",
			"status": 422,
			"detail": "Request contains invalid fields",
			"errors": []map[string]string{{"field": "title", "message": "is required"}},
		})
	})

	_, err := c.SubmitIdea(context.Background(), Idea{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != 422 {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}
	if len(apiErr.Errors) != 1 || apiErr.Errors[0].Field != "title" {
		t.Errorf("Errors = %+v, want one error on title", apiErr.Errors)
	}
}

func TestAPIError_NonProblemBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	})

	_, err := c.Stats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", apiErr.Status)
	}
	if apiErr.Title != "Bad Gateway" {
		t.Errorf("Title = %q, want Bad Gateway", apiErr.Title)
	}
}

func TestPullEvergreen_EmptyQueue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"type":   "https://deskflow.dev/errors/not-found",
			"title":  "Not Found",
			"status": 404,
			"detail": "Evergreen queue is empty",
		})
	})

	_, err := c.PullEvergreen(context.Background(), "pub-core", "2025-03-05", "gap fill")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", apiErr.Status)
	}
}

func TestGetIdea_EscapesID(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(IdeaDetail{Idea: Idea{ID: "a/b"}})
	})

	if _, err := c.GetIdea(context.Background(), "a/b"); err != nil {
		t.Fatalf("GetIdea() error = %v", err)
	}
	if gotPath != "/api/v1/ideas/a%2Fb" {
		t.Errorf("path = %q, want /api/v1/ideas/a%%2Fb", gotPath)
	}
}
