package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Problem is an RFC 9457 problem-details body.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ErrorKind is a sentinel-comparable taxonomy tag, not a Go type name.
type ErrorKind string

const (
	KindNoProvidersConfigured ErrorKind = "NoProvidersConfigured"
	KindNoEligibleProvider    ErrorKind = "NoEligibleProvider"
	KindCircuitOpen           ErrorKind = "CircuitOpen"
	KindRateLimited           ErrorKind = "RateLimited"
	KindTransient             ErrorKind = "Transient"
	KindServerError           ErrorKind = "ServerError"
	KindTimeout               ErrorKind = "Timeout"
	KindBadRequest            ErrorKind = "BadRequest"
	KindAuthError             ErrorKind = "AuthError"
	KindTokenLimitExceeded    ErrorKind = "TokenLimitExceeded"
	KindAllProvidersFailed    ErrorKind = "AllProvidersFailed"
	KindStateBackendUnavailable ErrorKind = "StateBackendUnavailable"
)

// Retriable reports whether the fallback loop should advance to the next
// candidate (true) or short-circuit immediately (false). CircuitOpen is
// neither: it is consumed internally and never reaches this check.
func (k ErrorKind) Retriable() bool {
	switch k {
	case KindRateLimited, KindTransient, KindServerError, KindTimeout:
		return true
	}
	return false
}

// httpStatus maps a kind to the status a Problem should render as.
func (k ErrorKind) httpStatus() int {
	switch k {
	case KindBadRequest, KindTokenLimitExceeded:
		return http.StatusBadRequest
	case KindAuthError:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNoProvidersConfigured, KindNoEligibleProvider, KindAllProvidersFailed:
		return http.StatusServiceUnavailable
	case KindStateBackendUnavailable, KindServerError, KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AttemptError records one candidate's failure inside an AllProvidersFailed.
type AttemptError struct {
	Provider string
	Kind     ErrorKind
	Message  string
}

// RouterError is the single error type the core returns. Handlers switch
// on Kind to render the right Problem; services compare Kind to decide
// fallback-loop behavior.
type RouterError struct {
	Kind     ErrorKind
	Provider string
	Err      error
	Attempts []AttemptError
}

func (e *RouterError) Error() string {
	if e.Provider != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Provider, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Provider)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *RouterError) Unwrap() error { return e.Err }

// Problem renders the error as an RFC 9457 problem-details body.
func (e *RouterError) Problem() *Problem {
	return &Problem{
		Type:   "https://errors.llmrouter.dev/" + string(e.Kind),
		Title:  string(e.Kind),
		Status: e.Kind.httpStatus(),
		Detail: e.Error(),
	}
}

func newErr(kind ErrorKind, provider string, err error) *RouterError {
	return &RouterError{Kind: kind, Provider: provider, Err: err}
}

func NewNoProvidersConfigured() *RouterError {
	return newErr(KindNoProvidersConfigured, "", nil)
}

func NewNoEligibleProvider() *RouterError {
	return newErr(KindNoEligibleProvider, "", nil)
}

func NewCircuitOpen(provider string) *RouterError {
	return newErr(KindCircuitOpen, provider, nil)
}

func NewRateLimited(provider string, err error) *RouterError {
	return newErr(KindRateLimited, provider, err)
}

func NewTransient(provider string, err error) *RouterError {
	return newErr(KindTransient, provider, err)
}

func NewServerError(provider string, err error) *RouterError {
	return newErr(KindServerError, provider, err)
}

func NewTimeout(provider string, err error) *RouterError {
	return newErr(KindTimeout, provider, err)
}

func NewBadRequest(provider string, err error) *RouterError {
	return newErr(KindBadRequest, provider, err)
}

func NewAuthError(provider string, err error) *RouterError {
	return newErr(KindAuthError, provider, err)
}

func NewTokenLimitExceeded(provider string, err error) *RouterError {
	return newErr(KindTokenLimitExceeded, provider, err)
}

func NewStateBackendUnavailable(provider string, err error) *RouterError {
	return newErr(KindStateBackendUnavailable, provider, err)
}

func NewAllProvidersFailed(attempts []AttemptError) *RouterError {
	e := newErr(KindAllProvidersFailed, "", nil)
	e.Attempts = attempts
	return e
}

// AsRouterError unwraps err looking for a *RouterError, the way services
// code decides fallback-loop behavior without string matching.
func AsRouterError(err error) (*RouterError, bool) {
	var re *RouterError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
