package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidSMILES    ErrorCode = "MOL_001"
	ErrCodeMoleculeInvalidFormat    ErrorCode = "MOL_003"
	ErrCodeMoleculeParsingFailed    ErrorCode = "MOL_006"
	ErrCodeMoleculeConversionFailed ErrorCode = "MOL_011"
	ErrCodeMoleculeSanitizeFailed   ErrorCode = "MOL_016"
	ErrCodeMoleculeValenceInvalid   ErrorCode = "MOL_017"
	ErrCodeConformerEmbedFailed     ErrorCode = "MOL_018"
	ErrCodeConformerAlignFailed     ErrorCode = "MOL_019"
	ErrCodeGraphEncodingFailed      ErrorCode = "MOL_020"
)

// Dataset Module Error Codes
const (
	ErrCodeRawDataMissing       ErrorCode = "DS_001"
	ErrCodePropertiesMalformed  ErrorCode = "DS_002"
	ErrCodeSplitIndexMalformed  ErrorCode = "DS_003"
	ErrCodeFieldNotFound        ErrorCode = "DS_004"
	ErrCodeTargetOutOfRange     ErrorCode = "DS_005"
	ErrCodeRecordOutOfRange     ErrorCode = "DS_006"
	ErrCodeSplitUnknown         ErrorCode = "DS_007"
	ErrCodeSplitModeUnknown     ErrorCode = "DS_008"
	ErrCodeProcessedFileCorrupt ErrorCode = "DS_009"
	ErrCodeManifestMalformed    ErrorCode = "DS_010"
)

// Storage Module Error Codes
const (
	ErrCodeStorage        ErrorCode = "STO_001"
	ErrCodeObjectNotFound ErrorCode = "STO_002"
	ErrCodeBucketMissing  ErrorCode = "STO_003"
	ErrCodeEventPublish   ErrorCode = "STO_004"
)

// AI Engine Error Codes
const (
	ErrCodeAIModelNotAvailable ErrorCode = "AI_001"
	ErrCodeAIInferenceFailed   ErrorCode = "AI_002"
	ErrCodeAIInputInvalid      ErrorCode = "AI_004"
	ErrCodeAIOutputInvalid     ErrorCode = "AI_006"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeMoleculeInvalidSMILES:    http.StatusBadRequest,
	ErrCodeMoleculeInvalidFormat:    http.StatusBadRequest,
	ErrCodeMoleculeParsingFailed:    http.StatusUnprocessableEntity,
	ErrCodeMoleculeSanitizeFailed:   http.StatusUnprocessableEntity,
	ErrCodeMoleculeValenceInvalid:   http.StatusUnprocessableEntity,
	ErrCodeConformerEmbedFailed:     http.StatusInternalServerError,
	ErrCodeConformerAlignFailed:     http.StatusInternalServerError,
	ErrCodeGraphEncodingFailed:      http.StatusInternalServerError,
	ErrCodeMoleculeConversionFailed: http.StatusInternalServerError,

	ErrCodeRawDataMissing:       http.StatusServiceUnavailable,
	ErrCodePropertiesMalformed:  http.StatusInternalServerError,
	ErrCodeSplitIndexMalformed:  http.StatusInternalServerError,
	ErrCodeFieldNotFound:        http.StatusNotFound,
	ErrCodeTargetOutOfRange:     http.StatusBadRequest,
	ErrCodeRecordOutOfRange:     http.StatusNotFound,
	ErrCodeSplitUnknown:         http.StatusBadRequest,
	ErrCodeSplitModeUnknown:     http.StatusBadRequest,
	ErrCodeProcessedFileCorrupt: http.StatusInternalServerError,
	ErrCodeManifestMalformed:    http.StatusInternalServerError,

	ErrCodeStorage:        http.StatusInternalServerError,
	ErrCodeObjectNotFound: http.StatusNotFound,
	ErrCodeBucketMissing:  http.StatusServiceUnavailable,
	ErrCodeEventPublish:   http.StatusInternalServerError,

	ErrCodeAIModelNotAvailable: http.StatusServiceUnavailable,
	ErrCodeAIInferenceFailed:   http.StatusInternalServerError,
	ErrCodeAIInputInvalid:      http.StatusBadRequest,
	ErrCodeAIOutputInvalid:     http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeMoleculeInvalidSMILES:    "invalid SMILES format",
	ErrCodeMoleculeInvalidFormat:    "unsupported molecule format",
	ErrCodeMoleculeParsingFailed:    "failed to parse molecule",
	ErrCodeMoleculeSanitizeFailed:   "molecule sanitization failed",
	ErrCodeMoleculeValenceInvalid:   "explicit valence exceeds the allowed maximum",
	ErrCodeConformerEmbedFailed:     "conformer embedding failed",
	ErrCodeConformerAlignFailed:     "conformer atom alignment failed",
	ErrCodeGraphEncodingFailed:      "graph encoding failed",
	ErrCodeMoleculeConversionFailed: "molecule format conversion failed",

	ErrCodeRawDataMissing:       "raw data missing",
	ErrCodePropertiesMalformed:  "malformed properties",
	ErrCodeSplitIndexMalformed:  "malformed split index",
	ErrCodeFieldNotFound:        "field not found",
	ErrCodeTargetOutOfRange:     "target index out of range",
	ErrCodeRecordOutOfRange:     "record index out of range",
	ErrCodeSplitUnknown:         "unknown split",
	ErrCodeSplitModeUnknown:     "unknown split mode",
	ErrCodeProcessedFileCorrupt: "processed file corrupt",
	ErrCodeManifestMalformed:    "malformed build manifest",

	ErrCodeStorage:        "storage error",
	ErrCodeObjectNotFound: "object not found",
	ErrCodeBucketMissing:  "bucket missing",
	ErrCodeEventPublish:   "failed to publish event",

	ErrCodeAIModelNotAvailable: "AI model not available",
	ErrCodeAIInferenceFailed:   "AI inference failed",
	ErrCodeAIInputInvalid:      "invalid input for AI model",
	ErrCodeAIOutputInvalid:     "invalid output from AI model",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
