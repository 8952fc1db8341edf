package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/tabula/logging"
	"github.com/tailored-agentic-units/tabula/match"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/store"
	"github.com/tailored-agentic-units/tabula/transform"
)

// ErrBadRequest marks malformed request bodies.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type classified struct {
	status int
	code   connect.Code
}

// classify maps domain errors onto HTTP statuses and Connect codes.
func classify(err error) classified {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, source.ErrInvalidKey),
		errors.Is(err, transform.ErrInvalidSpec),
		errors.Is(err, transform.ErrTransform),
		errors.Is(err, match.ErrInvalidQuery),
		errors.Is(err, match.ErrUnscopedComparison):
		return classified{http.StatusBadRequest, connect.CodeInvalidArgument}
	case errors.Is(err, source.ErrKeyNotFound):
		return classified{http.StatusNotFound, connect.CodeNotFound}
	case errors.Is(err, store.ErrFetch):
		return classified{http.StatusBadGateway, connect.CodeUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return classified{http.StatusGatewayTimeout, connect.CodeDeadlineExceeded}
	case errors.Is(err, context.Canceled):
		return classified{http.StatusServiceUnavailable, connect.CodeCanceled}
	default:
		return classified{http.StatusInternalServerError, connect.CodeInternal}
	}
}

// respondError logs err with the request ID and writes a JSON error reply.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", c.status,
		"error", err.Error(),
	)

	respondJSON(w, c.status, ErrorResponse{Error: err.Error(), Code: c.code.String()})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func connectError(err error) error {
	return connect.NewError(classify(err).code, err)
}
