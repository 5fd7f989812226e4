package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "https://netsweep.dev/problems/not-found"
	ProblemTypeBadRequest  = "https://netsweep.dev/problems/bad-request"
	ProblemTypeInternal    = "https://netsweep.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://netsweep.dev/problems/rate-limited"
	ProblemTypeConflict    = "https://netsweep.dev/problems/conflict"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ProblemFor builds a Problem for one of the known status codes.
func ProblemFor(status int, detail, instance string) Problem {
	typ := ProblemTypeInternal
	switch status {
	case http.StatusNotFound:
		typ = ProblemTypeNotFound
	case http.StatusBadRequest:
		typ = ProblemTypeBadRequest
	case http.StatusTooManyRequests:
		typ = ProblemTypeRateLimited
	case http.StatusConflict:
		typ = ProblemTypeConflict
	}
	return Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, ProblemFor(http.StatusNotFound, detail, instance))
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, ProblemFor(http.StatusBadRequest, detail, instance))
}

// Conflict writes a 409 problem response.
func Conflict(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, ProblemFor(http.StatusConflict, detail, instance))
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, ProblemFor(http.StatusInternalServerError, detail, instance))
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, ProblemFor(http.StatusTooManyRequests, detail, instance))
}
