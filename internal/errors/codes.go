// Package errors provides structured error handling for amanfind.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: Model errors (embedding, reranking)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category classifies an error by the subsystem that raised it.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryModel      Category = "MODEL"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current pass or command.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning means degraded operation.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigInvalid   = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigWrite     = "ERR_102_CONFIG_WRITE"
	ErrCodeContainerExists = "ERR_103_CONTAINER_EXISTS"
	ErrCodeContainerAbsent = "ERR_104_CONTAINER_NOT_FOUND"
	ErrCodeContainerLocked = "ERR_105_CONTAINER_PROTECTED"

	// IO and storage errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileUnreadable = "ERR_202_FILE_UNREADABLE"
	ErrCodeStoreOpen      = "ERR_203_STORE_OPEN"
	ErrCodeStoreWrite     = "ERR_204_STORE_WRITE"
	ErrCodeStoreBusy      = "ERR_205_STORE_BUSY"
	ErrCodeCorruptIndex   = "ERR_206_CORRUPT_INDEX"

	// Model errors (300-399)
	ErrCodeModelUnavailable  = "ERR_301_MODEL_UNAVAILABLE"
	ErrCodeModelTimeout      = "ERR_302_MODEL_TIMEOUT"
	ErrCodeDimensionMismatch = "ERR_303_DIMENSION_MISMATCH"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodePathDenied   = "ERR_403_PATH_NOT_PERMITTED"
	ErrCodeInvalidRange = "ERR_404_INVALID_RANGE"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeEmbedFailed    = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed   = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed    = "ERR_505_INDEX_FAILED"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreOpen:
		return SeverityFatal
	}
	if isRetryableCode(code) || code == ErrCodeDimensionMismatch {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether errors with this code are worth retrying.
// Store writes fail transiently under lock contention from another process.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeModelUnavailable, ErrCodeModelTimeout, ErrCodeStoreBusy, ErrCodeStoreWrite:
		return true
	default:
		return false
	}
}
