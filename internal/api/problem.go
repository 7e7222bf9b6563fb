package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/store"
	"github.com/hyperengineering/deskflow/internal/validation"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemWithErrors carries field-level validation failures alongside the
// problem body.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

const problemTypeBase = "https://deskflow.dev/errors/"

// problemSlugs names the type URI per status. Statuses outside the map
// fall back to the "unknown" slug with the stdlib status text as title.
var problemSlugs = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not-found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation-error",
	http.StatusInternalServerError: "internal-error",
	http.StatusServiceUnavailable:  "service-unavailable",
}

var problemTitles = map[int]string{
	http.StatusUnprocessableEntity: "Validation Error",
}

func newProblem(r *http.Request, status int, detail string) Problem {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = "unknown"
	}
	title := problemTitles[status]
	if title == "" {
		title = http.StatusText(status)
	}
	return Problem{
		Type:     problemTypeBase + slug,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 response for the status and detail.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// WriteProblemWithErrors writes a 422 response carrying the collected
// field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	})
}

// MapDomainError converts store and engine errors into problem responses.
// Configuration defects surface as 422 with the sentinel's message;
// anything unrecognized becomes an opaque 500 so internal details never
// reach the client.
func MapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrDuplicateSlug):
		WriteProblem(w, r, http.StatusConflict, "Publication slug already exists")
	case errors.Is(err, routing.ErrInvalidTransition):
		WriteProblem(w, r, http.StatusConflict, "Status transition not allowed")
	case errors.Is(err, routing.ErrClaimExhausted):
		WriteProblem(w, r, http.StatusConflict, "Could not claim a calendar slot, retry later")
	case errors.Is(err, routing.ErrNoMatchingRule),
		errors.Is(err, routing.ErrNoTierMatch),
		errors.Is(err, routing.ErrNoPublication),
		errors.Is(err, routing.ErrNoRubrics):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
