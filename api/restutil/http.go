// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package restutil holds small helpers shared by the REST handlers.
package restutil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/a2afabric/fabric/errs"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError creates an error with an explicit http status code.
func HTTPError(cause error, status int) error {
	return &httpError{cause: cause, status: status}
}

// BadRequest creates an http bad request error.
func BadRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

// NotFound creates an http not found error.
func NotFound(cause error) error {
	return &httpError{cause: cause, status: http.StatusNotFound}
}

// Forbidden creates an http forbidden error.
func Forbidden(cause error) error {
	return &httpError{cause: cause, status: http.StatusForbidden}
}

// statusOf maps domain error kinds onto http status codes.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidArgument:
		return http.StatusBadRequest
	case errs.NotFound, errs.SessionNotFound, errs.ProposalNotFound:
		return http.StatusNotFound
	case errs.AuthenticationFailed:
		return http.StatusForbidden
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.PreconditionFailed, errs.InsufficientFunds:
		return http.StatusConflict
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandlerFunc is like http.HandlerFunc but returns an error. An httpError
// responds with its status, other errors respond by their domain kind.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc converts a HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		if he, ok := err.(*httpError); ok {
			if he.cause != nil {
				http.Error(w, he.cause.Error(), he.status)
			} else {
				w.WriteHeader(he.status)
			}
			return
		}
		http.Error(w, err.Error(), statusOf(err))
	}
}

// JSONContentType is the content type of all JSON responses.
const JSONContentType = "application/json; charset=utf-8"

// ParseJSON parses a JSON object using strict mode.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON responds with an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M is a shortcut for map[string]any.
type M map[string]any
