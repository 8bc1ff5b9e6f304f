package rpcerr

import (
	"context"
	"errors"
	"strings"
)

// Classification keyword groups. Inspection order matters: rate-limit
// signals before generic transient signals, both before client signals,
// so "rate limit timeout" classifies as rate_limit.
var (
	rateLimitSignals = []string{"rate limit", "too many requests", "429"}
	quotaSignals     = []string{"quota"}
	transientSignals = []string{"timeout", "timed out", "unavailable", "connection refused", "connection reset", "temporar", "try again", "deadline exceeded"}
	clientSignals    = []string{"validation", "invalid", "malformed", "missing required", "parse", "unsupported"}
)

// Classify maps a raw failure to a structured Error using message and code
// inspection. Typed Errors pass through unchanged so classification applied
// once is never overwritten downstream.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(CodeRequestCancelled, err)
	}

	msg := strings.ToLower(err.Error())

	for _, signal := range quotaSignals {
		if strings.Contains(msg, signal) {
			return Wrap(CodeQuotaExceeded, err)
		}
	}
	for _, signal := range rateLimitSignals {
		if strings.Contains(msg, signal) {
			return Wrap(CodeRateLimitExceeded, err)
		}
	}
	for _, signal := range transientSignals {
		if strings.Contains(msg, signal) {
			if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded") {
				return Wrap(CodeTimeout, err)
			}
			return Wrap(CodeServiceUnavailable, err)
		}
	}
	for _, signal := range clientSignals {
		if strings.Contains(msg, signal) {
			return Wrap(CodeValidationFailed, err)
		}
	}

	// Unexpected internal failures default to system and are not retried.
	return Wrap(CodeInternalError, err)
}
