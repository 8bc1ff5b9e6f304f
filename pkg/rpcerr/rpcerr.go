package rpcerr

import (
	"fmt"
)

// Category classifies an error for retry purposes. Category alone
// determines retryability.
type Category string

const (
	CategoryClient    Category = "client"
	CategoryRateLimit Category = "rate_limit"
	CategoryRetryable Category = "retryable"
	CategorySystem    Category = "system"
)

// Retryable reports whether errors in this category may be retried.
func (c Category) Retryable() bool {
	return c == CategoryRateLimit || c == CategoryRetryable
}

// Standard JSON-RPC error codes plus domain-specific codes in the
// implementation-defined server range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeVersionUnsupported   = -32001
	CodeRateLimitExceeded    = -32002
	CodeValidationFailed     = -32003
	CodeAuthFailed           = -32004
	CodeResourceNotFound     = -32005
	CodeResourceConflict     = -32006
	CodeServiceUnavailable   = -32007
	CodeTimeout              = -32008
	CodeQuotaExceeded        = -32009
	CodeAnalysisFailed       = -32010
	CodeCacheOperationFailed = -32011
	CodeRetryLimitExceeded   = -32012
	CodeRequestCancelled     = -32013
)

// definition is a single row of the central code table: one category and
// one default message per code.
type definition struct {
	category    Category
	message     string
	suggestions []string
}

// codeTable is the single source of truth for code, category, default
// message and actionable suggestions.
var codeTable = map[int]definition{
	CodeParseError:     {CategoryClient, "parse error", []string{"check the request payload is well-formed JSON"}},
	CodeInvalidRequest: {CategoryClient, "invalid request", []string{"check the request envelope fields"}},
	CodeMethodNotFound: {CategoryClient, "method not found", []string{"check the method name against the advertised capabilities"}},
	CodeInvalidParams:  {CategoryClient, "invalid params", []string{"check required parameters and their types"}},
	CodeInternalError:  {CategorySystem, "internal error", []string{"contact support with the correlation id"}},

	CodeVersionUnsupported:   {CategoryClient, "protocol version unsupported", []string{"use a supported protocol version"}},
	CodeRateLimitExceeded:    {CategoryRateLimit, "rate limit exceeded", []string{"reduce request frequency"}},
	CodeValidationFailed:     {CategoryClient, "validation failed", []string{"check required parameters"}},
	CodeAuthFailed:           {CategoryClient, "authentication or authorization failed", []string{"check credentials and granted scopes"}},
	CodeResourceNotFound:     {CategoryClient, "resource not found", []string{"check the resource identifier"}},
	CodeResourceConflict:     {CategoryClient, "resource conflict", []string{"refresh the resource and retry the change"}},
	CodeServiceUnavailable:   {CategoryRetryable, "service unavailable", []string{"retry after the suggested delay"}},
	CodeTimeout:              {CategoryRetryable, "operation timed out", []string{"retry after the suggested delay", "consider a smaller request"}},
	CodeQuotaExceeded:        {CategoryRateLimit, "quota exceeded", []string{"reduce request frequency", "review quota allocation"}},
	CodeAnalysisFailed:       {CategorySystem, "analysis failed", []string{"contact support with the correlation id"}},
	CodeCacheOperationFailed: {CategoryRetryable, "cache operation failed", []string{"retry after the suggested delay"}},
	CodeRetryLimitExceeded:   {CategorySystem, "retry limit exceeded", []string{"contact support with the correlation id"}},
	CodeRequestCancelled:     {CategoryClient, "request cancelled", []string{"resubmit the request if cancellation was unintended"}},
}

// Error is a structured error record surfaced in responses and counted in
// the per-method metrics. It is never persisted.
type Error struct {
	Code          int      `json:"code"`
	Category      Category `json:"category"`
	Message       string   `json:"message"`
	Retryable     bool     `json:"retryable"`
	RetryAfterMs  int64    `json:"retry_after_ms,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithRetryAfter returns a copy carrying a server-suggested retry delay.
func (e *Error) WithRetryAfter(ms int64) *Error {
	clone := *e
	clone.RetryAfterMs = ms
	return &clone
}

// WithCorrelation returns a copy carrying a correlation id for support lookup.
func (e *Error) WithCorrelation(correlationID string) *Error {
	clone := *e
	clone.CorrelationID = correlationID
	return &clone
}

// New creates an Error from the code table with its default message.
// Unknown codes map to internal errors rather than panicking.
func New(code int) *Error {
	def, ok := codeTable[code]
	if !ok {
		def = codeTable[CodeInternalError]
		code = CodeInternalError
	}
	return &Error{
		Code:        code,
		Category:    def.category,
		Message:     def.message,
		Retryable:   def.category.Retryable(),
		Suggestions: append([]string(nil), def.suggestions...),
	}
}

// Newf creates an Error from the code table with a custom message.
func Newf(code int, format string, args ...any) *Error {
	e := New(code)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// Wrap creates an Error from the code table wrapping an underlying cause.
func Wrap(code int, cause error) *Error {
	e := New(code)
	e.cause = cause
	return e
}
