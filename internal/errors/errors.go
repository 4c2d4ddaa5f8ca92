// Package errors provides structured error types for the voxpack system.
// All errors include a category, code, message, and detail map so failures
// can name the offending row identifier and partition key consistently
// across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryPlan       ErrorCategory = "PLAN"
	ErrCategoryIO         ErrorCategory = "IO"
	ErrCategoryState      ErrorCategory = "STATE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidLabel           = "INVALID_LABEL"
	CodeMissingPartitionColumn = "MISSING_PARTITION_COLUMN"
	CodeNoMatchingRows         = "NO_MATCHING_ROWS"

	// Schema codes
	CodeSchemaViolation = "SCHEMA_VIOLATION"
	CodeDuplicateRowID  = "DUPLICATE_ROW_ID"

	// Plan codes
	CodeBatchCapacityExceeded = "BATCH_CAPACITY_EXCEEDED"

	// IO codes
	CodeIOFailure         = "IO_FAILURE"
	CodeFilenameCollision = "FILENAME_COLLISION"
	CodeDatasetLocked     = "DATASET_LOCKED"

	// State index codes
	CodeIndexOpenFailed = "INDEX_OPEN_FAILED"
	CodeIndexCorrupt    = "INDEX_CORRUPT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// VoxpackError is the structured error type used throughout the system.
type VoxpackError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *VoxpackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *VoxpackError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *VoxpackError) Is(target error) bool {
	var t *VoxpackError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new VoxpackError.
func New(category ErrorCategory, code, message string) *VoxpackError {
	return &VoxpackError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new VoxpackError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *VoxpackError {
	return &VoxpackError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *VoxpackError) WithDetails(details map[string]interface{}) *VoxpackError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithRow returns a copy of the error naming the offending row and partition
// key. Either argument may be empty when unknown.
func (e *VoxpackError) WithRow(rowID, partitionKey string) *VoxpackError {
	cp := *e
	cp.Details = map[string]interface{}{}
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	if rowID != "" {
		cp.Details["row_id"] = rowID
	}
	if partitionKey != "" {
		cp.Details["partition_key"] = partitionKey
	}
	return &cp
}

// Abortive reports whether the error must abort the whole operation before
// any output is committed. Per-row payload IO failures are collectible;
// everything structural aborts.
func Abortive(err error) bool {
	var ve *VoxpackError
	if !errors.As(err, &ve) {
		return true
	}
	if ve.Category == ErrCategoryIO && ve.Code == CodeIOFailure {
		return false
	}
	return true
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a VoxpackError.
func GetCategory(err error) ErrorCategory {
	var ve *VoxpackError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a VoxpackError.
func GetCode(err error) string {
	var ve *VoxpackError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *VoxpackError {
	return New(ErrCategoryValidation, code, message)
}

func NewSchemaError(code, message string) *VoxpackError {
	return New(ErrCategorySchema, code, message)
}

func NewPlanError(code, message string) *VoxpackError {
	return New(ErrCategoryPlan, code, message)
}

func NewIOError(code, message string, cause error) *VoxpackError {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewStateError(code, message string, cause error) *VoxpackError {
	return Wrap(ErrCategoryState, code, message, cause)
}

func NewInternalError(message string, cause error) *VoxpackError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
