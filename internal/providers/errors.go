package providers

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"verixiv/internal/util"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, util.ErrQuotaExhausted):
		return ErrorQuota
	case errors.Is(err, util.ErrRateLimited):
		return ErrorRate
	case errors.Is(err, util.ErrContextTooLong):
		return ErrorContext
	case errors.Is(err, util.ErrTransient):
		return ErrorTransient
	case errors.Is(err, util.ErrPermanent):
		return ErrorPermanent
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), hasCode(e, "429"), strings.Contains(e, "resource_exhausted"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "context_length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "deadline exceeded"), strings.Contains(e, "temporarily"),
		strings.Contains(e, "unavailable"), hasCode(e, "503"), strings.Contains(e, "connection reset"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// hasCode reports whether an HTTP status code appears in msg as its own token,
// so ids such as "2401.14290" do not match "429".
func hasCode(msg, code string) bool {
	for _, f := range strings.FieldsFunc(msg, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if f == code {
			return true
		}
	}
	return false
}

// Retryable reports whether a later attempt at the same call could succeed.
func Retryable(t ErrorType) bool {
	switch t {
	case ErrorRate, ErrorTransient:
		return true
	default:
		return false
	}
}

// Wrap attaches the sentinel for the error's class, so callers outside this
// package can use errors.Is without string matching.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch ClassifyError(err) {
	case ErrorQuota:
		sentinel = util.ErrQuotaExhausted
	case ErrorRate:
		sentinel = util.ErrRateLimited
	case ErrorContext:
		sentinel = util.ErrContextTooLong
	case ErrorTransient:
		sentinel = util.ErrTransient
	default:
		sentinel = util.ErrPermanent
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
