package httputil

import (
	"encoding/json"
	"net/http"
)

// RespondJSON writes data as JSON. The payload is marshaled before any
// header is written so an encoding failure still yields a clean 500.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ProblemDetail is an RFC 7807 body. Code is a stable machine-readable
// reason shared with stream error frames (e.g. "credential_error").
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// RespondError writes a problem response without a code.
func RespondError(w http.ResponseWriter, status int, detail string) {
	RespondProblem(w, status, "", detail)
}

// RespondProblem writes a problem response carrying code.
func RespondProblem(w http.ResponseWriter, status int, code, detail string) {
	payload, err := json.Marshal(ProblemDetail{
		Type:   errorTypeFromStatus(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   code,
	})
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write(payload)
}

func errorTypeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.5.1"
	case http.StatusUnauthorized:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.5.2"
	case http.StatusForbidden:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.5.4"
	case http.StatusNotFound:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.5.5"
	case http.StatusConflict:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.5.10"
	case http.StatusInternalServerError:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.6.1"
	case http.StatusBadGateway:
		return "https://datatracker.ietf.org/doc/html/rfc9110#section-15.6.3"
	default:
		return "about:blank"
	}
}
