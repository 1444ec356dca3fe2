package server

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/spigell/ai-interviewer/internal/interview"
)

// problem is an RFC 7807 problem details body.
type problem struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors validation.Errors `json:"errors,omitempty"`
}

// badRequestError marks request decoding failures.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func respondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		respondProblem(w, problem{Status: http.StatusInternalServerError, Detail: "failed to encode response"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func respondProblem(w http.ResponseWriter, p problem) {
	p.Type = problemType(p.Status)
	p.Title = http.StatusText(p.Status)

	payload, err := json.Marshal(p)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}

// problemFor maps a handler error to the problem returned to the client.
// Unknown errors become a 500 without leaking their text.
func problemFor(err error) problem {
	var (
		fieldErrs validation.Errors
		decodeErr *badRequestError
	)

	switch {
	case errors.As(err, &fieldErrs):
		return problem{Status: http.StatusBadRequest, Detail: "request validation failed", Errors: fieldErrs}
	case errors.As(err, &decodeErr):
		return problem{Status: http.StatusBadRequest, Detail: decodeErr.Error()}
	case errors.Is(err, interview.ErrInvalidInput):
		return problem{Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, interview.ErrSessionNotFound):
		return problem{Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, interview.ErrInvalidState):
		return problem{Status: http.StatusConflict, Detail: err.Error()}
	default:
		return problem{Status: http.StatusInternalServerError, Detail: "internal server error"}
	}
}

func problemType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.1"
	case http.StatusNotFound:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.4"
	case http.StatusConflict:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.8"
	case http.StatusInternalServerError:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.1"
	case http.StatusServiceUnavailable:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.4"
	default:
		return "about:blank"
	}
}
