// Package apierror defines the typed error taxonomy returned by every
// public operation and rendered as the HTTP JSON error envelope.
package apierror

import (
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable error category.
type Kind string

const (
	KindInvalidRequest           Kind = "InvalidRequest"
	KindDocumentNotFound         Kind = "DocumentNotFound"
	KindPropertyNotFound         Kind = "PropertyNotFound"
	KindUserNotFound             Kind = "UserNotFound"
	KindConflict                 Kind = "Conflict"
	KindNotEnoughInteractions    Kind = "NotEnoughInteractions"
	KindIngestingDocumentsFailed Kind = "IngestingDocumentsFailed"
	KindUpstream                 Kind = "Upstream"
	KindInternalServerError      Kind = "InternalServerError"
)

var statusByKind = map[Kind]int{
	KindInvalidRequest:           http.StatusBadRequest,
	KindDocumentNotFound:         http.StatusNotFound,
	KindPropertyNotFound:         http.StatusNotFound,
	KindUserNotFound:             http.StatusNotFound,
	KindConflict:                 http.StatusConflict,
	KindNotEnoughInteractions:    http.StatusNotFound,
	KindIngestingDocumentsFailed: http.StatusInternalServerError,
	KindUpstream:                 http.StatusBadGateway,
	KindInternalServerError:      http.StatusInternalServerError,
}

// APIError is the typed error carried through every layer of the
// service. RequestID is populated by reqcontext.WriteError when the
// error is rendered.
type APIError struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	RequestID string
	Cause     error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// HTTPStatus maps a Kind to the HTTP status code spec.md assigns it.
func (e *APIError) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newError(kind Kind, msg string, details map[string]any, cause error) *APIError {
	return &APIError{Kind: kind, Message: msg, Details: details, Cause: cause}
}

func InvalidRequest(msg string, details map[string]any) *APIError {
	return newError(KindInvalidRequest, msg, details, nil)
}

func DocumentNotFound(id string) *APIError {
	return newError(KindDocumentNotFound, "document not found", map[string]any{"document_id": id}, nil)
}

func PropertyNotFound(name string) *APIError {
	return newError(KindPropertyNotFound, "property not found", map[string]any{"property": name}, nil)
}

func UserNotFound(id string) *APIError {
	return newError(KindUserNotFound, "user not found", map[string]any{"user_id": id}, nil)
}

func Conflict(msg string, details map[string]any) *APIError {
	return newError(KindConflict, msg, details, nil)
}

func NotEnoughInteractions(userID string) *APIError {
	return newError(KindNotEnoughInteractions, "user has not enough interactions to personalize",
		map[string]any{"user_id": userID}, nil)
}

func IngestingDocumentsFailed(details map[string]any) *APIError {
	return newError(KindIngestingDocumentsFailed, "one or more documents failed to ingest", details, nil)
}

func Upstream(msg string, cause error) *APIError {
	return newError(KindUpstream, msg, nil, cause)
}

func Internal(msg string, cause error) *APIError {
	return newError(KindInternalServerError, msg, nil, cause)
}

// As extracts an *APIError from err, wrapping it as InternalServerError
// if err is not already one.
func As(err error) *APIError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*APIError); ok {
		return ae
	}
	return Internal("unexpected error", err)
}
