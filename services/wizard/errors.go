package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrClosed           = errors.New("wizard is closed")
	ErrTransitioning    = errors.New("step transition in progress")
	ErrRetreatDisabled  = errors.New("cannot go back from the first step while editing")
	ErrForwardJump      = errors.New("cannot jump ahead of the current step")
	ErrStepRange        = errors.New("step out of range")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrNoIdentity       = errors.New("you must be signed in to submit an agent")
)

// FieldError is one violated rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors holds every violation found, in rule order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Messages returns the distinct messages.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v))
	seen := make(map[string]struct{}, len(v))
	for _, fe := range v {
		if _, ok := seen[fe.Message]; ok {
			continue
		}
		seen[fe.Message] = struct{}{}
		out = append(out, fe.Message)
	}
	return out
}

// Category groups persistence failures for display.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryBadRequest Category = "bad_request"
	CategoryServer     Category = "server"
	CategoryGeneric    Category = "generic"
)

// SubmitError is a classified persistence failure. The draft is kept for retry.
type SubmitError struct {
	Category Category `json:"category"`
	Status   int      `json:"status,omitempty"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func (e *SubmitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// detailer exposes the server-provided reason, when any.
type detailer interface {
	Detail() string
}

// ClassifySubmitError maps a persistence error to a user-facing category.
func ClassifySubmitError(err error) *SubmitError {
	if err == nil {
		return nil
	}
	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}

	status := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	detail := ""
	var d detailer
	if errors.As(err, &d) {
		detail = strings.TrimSpace(d.Detail())
	}

	out := &SubmitError{Status: status, Err: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		out.Category = CategoryAuth
		out.Message = "Your session has expired or you are not allowed to do this. Sign in again and resubmit."
	case status == http.StatusBadRequest || status == http.StatusConflict ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		out.Category = CategoryBadRequest
		out.Message = "The agent could not be saved because the request was rejected."
		if detail != "" {
			out.Message += " " + detail
		}
	case status >= http.StatusInternalServerError:
		out.Category = CategoryServer
		out.Message = "The catalog service failed to save the agent. Try again in a moment."
	case errors.Is(err, context.DeadlineExceeded):
		out.Category = CategoryGeneric
		out.Message = "Saving the agent timed out. Try again."
	default:
		out.Category = CategoryGeneric
		out.Message = "The agent could not be saved."
		if detail != "" {
			out.Message += " " + detail
		}
	}
	return out
}
