package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errTokenRequired   = domainError(http.StatusUnauthorized, "TOKEN_REQUIRED", "An access token is required; run login or send Authorization: token <token>", nil)
	errPrefsDisabled   = domainError(http.StatusServiceUnavailable, "PREFS_DISABLED", "Preference storage is not configured", nil)
	errHistoryDisabled = domainError(http.StatusServiceUnavailable, "HISTORY_DISABLED", "Publish history is not configured", nil)
)
