package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an API failure by how the caller should react to it.
type Kind string

const (
	// KindSessionExpired: the session could not be renewed and has been
	// cleared. The user must sign in again.
	KindSessionExpired Kind = "session_expired"
	// KindAccessDenied: the session is valid but the resource is off limits.
	KindAccessDenied Kind = "access_denied"
	// KindValidation: the server rejected the request (4xx other than 401/403).
	KindValidation Kind = "validation"
	// KindNetwork: the server could not be reached. Safe to retry manually.
	KindNetwork Kind = "network"
	// KindServer: the server failed (5xx).
	KindServer Kind = "server"
)

// Error is returned for every failed API call.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Code    string // server error code, when provided
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same Kind, so errors.Is(err, ErrSessionExpired)
// holds for any session-expired error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Err == nil
}

// Sentinel kinds for errors.Is.
var (
	ErrSessionExpired = &Error{Kind: KindSessionExpired}
	ErrAccessDenied   = &Error{Kind: KindAccessDenied}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrServer         = &Error{Kind: KindServer}
)

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" if it is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func sessionExpired(cause error) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Status:  http.StatusUnauthorized,
		Message: "session expired, please sign in again",
		Err:     cause,
	}
}

func networkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "server unreachable",
		Err:     err,
	}
}

// statusError builds an error from a non-2xx response. 401 is handled by
// the gateway before this is reached.
func statusError(status int, body []byte) *Error {
	code, msg := parseErrorBody(body)
	if msg == "" {
		msg = strings.ToLower(http.StatusText(status))
	}

	e := &Error{Status: status, Code: code, Message: msg}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindSessionExpired
	case status == http.StatusForbidden:
		e.Kind = KindAccessDenied
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindValidation
	}
	return e
}

const maxRawErrorLen = 200

// parseErrorBody understands {"error": "msg"}, {"error": {"code", "message"}}
// and {"msg": "..."}.
func parseErrorBody(body []byte) (code, message string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Msg     string          `json:"msg"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > maxRawErrorLen {
			text = text[:maxRawErrorLen] + "..."
		}
		return "", text
	}

	if len(envelope.Error) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil {
			return "", s
		}
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &obj); err == nil {
			return obj.Code, obj.Message
		}
	}
	if envelope.Msg != "" {
		return "", envelope.Msg
	}
	return "", envelope.Message
}
