package validation

import (
	"fmt"
	"time"
)

// Code identifies which check rejected a request.
type Code string

const (
	CodeInvalidAmount Code = "invalid_amount"
	CodeInjection     Code = "injection_detected"
	CodeLimitExceeded Code = "limit_exceeded"
	CodeReplay        Code = "replay_detected"
	CodeDuplicate     Code = "duplicate_transaction"
	CodeBadAddress    Code = "invalid_address"
	CodeRateLimited   Code = "rate_limited"
	CodeBadRequest    Code = "invalid_request"
)

// Error is a structured rejection. Security rejections are additionally
// written to the audit log by the caller.
type Error struct {
	Code       Code
	Reason     string
	Security   bool
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s, try again in %d seconds", e.Code, e.Reason, int(e.RetryAfter.Seconds()+0.5))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func reject(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func rejectSecurity(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...), Security: true}
}
