package kbsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL = errors.New("kbsdk: server url missing")
	ErrNoToken     = errors.New("kbsdk: access token missing")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeRateLimited    = "E_RATE_LIMITED"
	CodeInternalError  = "E_INTERNAL_ERROR"
	CodeAccessDenied   = "E_ACCESS_DENIED"
	CodeNotFound       = "E_NOT_FOUND"
	CodeUnknownError   = "E_UNKNOWN_ERR"
)

// APIError is the error body returned by the knowledge base API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %d %s - %s", e.Status, e.Code, e.Message)
}

// Unwrap maps transport status onto the kb sentinels so callers can use errors.Is
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return kb.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return kb.ErrUnauthorized
	}
	return nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if !resp.IsErrorState() {
		return nil
	}

	apiErr, ok := resp.ErrorResult().(*APIError)
	if !ok || apiErr == nil || apiErr.Code == "" {
		apiErr = NewAPIError(resp.StatusCode, CodeUnknownError, http.StatusText(resp.StatusCode))
	}
	apiErr.Status = resp.StatusCode
	return fmt.Errorf("%s: %w", operation, apiErr)
}
