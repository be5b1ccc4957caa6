package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches DomainErrors by code so sentinel values survive wrapping.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeKeyNotFound      = "KEY_NOT_FOUND"
	ErrCodeInvalidCipher    = "INVALID_CIPHERTEXT"
	ErrCodeAuthentication   = "AUTHENTICATION_FAILED"
	ErrCodeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeStorageAdapter   = "STORAGE_ADAPTER_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidSourceType      = NewDomainError(ErrCodeValidation, "invalid knowledge source type")
	ErrInvalidSourceStatus    = NewDomainError(ErrCodeValidation, "invalid knowledge source status")
	ErrInvalidStorageStrategy = NewDomainError(ErrCodeValidation, "invalid storage strategy")
	ErrInvalidRetentionPolicy = NewDomainError(ErrCodeValidation, "invalid retention policy")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrSourceNotFound = NewDomainError(ErrCodeNotFound, "knowledge source not found")
	ErrChunkNotFound  = NewDomainError(ErrCodeNotFound, "knowledge chunk not found")
)

// Crypto errors. AuthenticationFailed is fatal for the failing decrypt call
// only, never a process-level crash.
var (
	ErrWeakMasterKey        = NewDomainError(ErrCodeConfiguration, "master key fails strength requirements")
	ErrDuplicateKeyVersion  = NewDomainError(ErrCodeConfiguration, "duplicate master key version")
	ErrInvalidKeyVersion    = NewDomainError(ErrCodeConfiguration, "master key version must be a positive integer")
	ErrKeyVersionNotFound   = NewDomainError(ErrCodeKeyNotFound, "requested master key version is not registered")
	ErrInvalidCiphertext    = NewDomainError(ErrCodeInvalidCipher, "ciphertext envelope is malformed or truncated")
	ErrAuthenticationFailed = NewDomainError(ErrCodeAuthentication, "ciphertext failed authentication")
)

// Ingestion errors
var (
	ErrUnsupportedMediaType = NewDomainError(ErrCodeUnsupportedMedia, "unsupported media type for text extraction")
	ErrStorageAdapterFailed = NewDomainError(ErrCodeStorageAdapter, "storage adapter operation failed")
	ErrEmptyIngestionInput  = NewDomainError(ErrCodeValidation, "ingestion input contains no usable text")
)
