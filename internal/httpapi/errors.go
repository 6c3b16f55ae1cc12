package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sentirag/internal/storage"
	"github.com/dshills/sentirag/pkg/types"
)

// ErrorCode represents standardized error codes for the API
type ErrorCode string

const (
	// Client Error Codes (4xx)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeInvalidJSON      ErrorCode = "INVALID_JSON"
	ErrorCodeInvalidQuery     ErrorCode = "INVALID_QUERY"
	ErrorCodeRunNotFound      ErrorCode = "RUN_NOT_FOUND"
	ErrorCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"

	// Server Error Codes (5xx)
	ErrorCodeAcquisitionFailed ErrorCode = "ACQUISITION_FAILED"
	ErrorCodeRunFailed         ErrorCode = "RUN_FAILED"
	ErrorCodeTimeout           ErrorCode = "TIMEOUT"
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetail provides additional context for an error
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError is the body of every non-2xx response. Kind and Run are set for
// errors raised by a run or a query.
type APIError struct {
	Error     string          `json:"error"`
	Code      ErrorCode       `json:"code"`
	Kind      types.ErrorKind `json:"kind,omitempty"`
	Message   string          `json:"message"`
	Details   []ErrorDetail   `json:"details,omitempty"`
	Run       *types.Run      `json:"run,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// APIErrorResponse creates a standardized error response
func APIErrorResponse(code ErrorCode, message string, details ...ErrorDetail) *APIError {
	return &APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...ErrorDetail) {
	send(c, statusCode, APIErrorResponse(code, message, details...))
}

func send(c *gin.Context, statusCode int, resp *APIError) {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			resp.RequestID = id
		}
	}
	c.JSON(statusCode, resp)
}

// SendValidationError reports one bad request field.
func SendValidationError(c *gin.Context, field, message string) {
	SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, message, ErrorDetail{
		Field:   field,
		Message: message,
		Code:    "VALIDATION_ERROR",
	})
}

// SendInvalidJSONError sends a standardized invalid JSON error
func SendInvalidJSONError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON,
		"Invalid JSON in request body: "+err.Error())
}

// SendFileNotFoundError sends a standardized file not found error
func SendFileNotFoundError(c *gin.Context, name string) {
	SendError(c, http.StatusNotFound, ErrorCodeFileNotFound,
		"File '"+name+"' not found")
}

// SendDomainError maps err onto a status code and writes it. run, when
// non-nil, is attached so callers see the failed run record.
func SendDomainError(c *gin.Context, err error, run *types.Run) {
	status, code := classify(err)
	resp := APIErrorResponse(code, err.Error())
	resp.Kind = types.KindOf(err)
	resp.Run = run
	send(c, status, resp)
}

// classify is 400 for caller mistakes, 502 when the comment source failed
// and 500 for everything else.
func classify(err error) (int, ErrorCode) {
	switch {
	case types.IsInvalidRequest(err):
		return http.StatusBadRequest, ErrorCodeInvalidQuery
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrorCodeRunNotFound
	case errors.Is(err, types.ErrAcquisition):
		return http.StatusBadGateway, ErrorCodeAcquisitionFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorCodeTimeout
	case errors.Is(err, types.ErrClassification),
		errors.Is(err, types.ErrEmbedding),
		errors.Is(err, types.ErrIndexWrite),
		errors.Is(err, types.ErrDimensionMismatch),
		errors.Is(err, types.ErrNoComments):
		return http.StatusInternalServerError, ErrorCodeRunFailed
	default:
		return http.StatusInternalServerError, ErrorCodeInternalError
	}
}
