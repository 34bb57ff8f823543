package models

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Category decides how a failure is reported to the caller.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryClientInput
	CategoryModelUnavailable
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryClientInput:
		return "client_input_error"
	case CategoryModelUnavailable:
		return "model_unavailable"
	case CategoryInternal:
		return "internal_error"
	default:
		return "unknown_error"
	}
}

// StatusCode is the HTTP status used for the category.
func (c Category) StatusCode() int {
	switch c {
	case CategoryClientInput:
		return http.StatusBadRequest
	case CategoryModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Pipeline stages, used as error context.
const (
	StageRequest    = "request"
	StagePreprocess = "preprocess"
	StageModelLoad  = "model_load"
	StageClassify   = "classify"
	StageRank       = "rank"
)

var (
	ErrMissingImage   = errors.New("no image found in the request")
	ErrInvalidPayload = errors.New("invalid request format")
	ErrDecode         = errors.New("unsupported or corrupt image")
	ErrNotFound       = errors.New("model artifact not found")
	ErrTransientFetch = errors.New("model artifact fetch failed")
	ErrCorruptModel   = errors.New("model artifact is corrupt")
	ErrShapeMismatch  = errors.New("tensor shape mismatch")
	ErrLabelMismatch  = errors.New("model output width does not match class labels")
	ErrInvalidK       = errors.New("invalid top-k value")
	ErrModelLoad      = errors.New("model load failed")
	ErrInference      = errors.New("prediction failed")
)

// Error is a stage-local failure tagged with its reporting category.
type Error struct {
	Category Category
	Stage    string
	Kind     error
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func ClientInputError(stage string, kind, cause error) *Error {
	return &Error{Category: CategoryClientInput, Stage: stage, Kind: kind, Cause: cause}
}

func ModelUnavailableError(stage string, kind, cause error) *Error {
	return &Error{Category: CategoryModelUnavailable, Stage: stage, Kind: kind, Cause: cause}
}

func InternalError(stage string, kind, cause error) *Error {
	return &Error{Category: CategoryInternal, Stage: stage, Kind: kind, Cause: cause}
}

// CategoryOf returns the category of the outermost *Error in the chain.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryUnknown
}

func StatusCode(err error) int {
	return CategoryOf(err).StatusCode()
}

var pathPattern = regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.\-]+){2,}`)

// PublicMessage renders err for API callers. Paths are redacted and model
// source causes are dropped, since they can carry bucket or credential context.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return redactPaths(err.Error())
	}
	if e.Cause == nil || e.Category == CategoryModelUnavailable {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return redactPaths(fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Cause))
}

func redactPaths(msg string) string {
	return pathPattern.ReplaceAllString(msg, "<path>")
}
