package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/failure"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error Problem `json:"error"`
}

// Problem describes a failed request.
type Problem struct {
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Backend   string `json:"backend,omitempty"`
	Construct string `json:"construct,omitempty"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		http.Error(w, `{"error":{"code":"INTERNAL","message":"encode response"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: Problem{Code: code, Message: msg}})
}

// writeError maps a compile or execution error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	fe, ok := failure.As(err)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, StatusFor(fe), ErrorBody{Error: Problem{
		Code:      string(fe.Code),
		Kind:      string(fe.Kind),
		Backend:   fe.Backend,
		Construct: fe.Construct,
		Message:   fe.Error(),
	}})
}

// StatusFor is the HTTP status reported for fe.
func StatusFor(fe *failure.Error) int {
	switch fe.Code {
	case failure.CodeUnsupported, failure.CodeInvalidID:
		return http.StatusUnprocessableEntity
	case failure.CodeBackend:
		switch fe.Kind {
		case failure.KindNotFound:
			return http.StatusNotFound
		case failure.KindConstraintViolation:
			return http.StatusConflict
		case failure.KindMalformedFilter, failure.KindBadArgument:
			return http.StatusBadRequest
		case failure.KindUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}
