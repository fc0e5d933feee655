package apperrors

// ErrorCode identifies the failure class independent of HTTP status.
type ErrorCode string

const (
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrorCodeConflict        ErrorCode = "CONFLICT"
	ErrorCodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	ErrorCodeKillSwitch      ErrorCode = "KILL_SWITCH_ENGAGED"
	ErrorCodeUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrorCodeProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	ErrorCodeAssetNotFound   ErrorCode = "ASSET_NOT_FOUND"
	ErrorCodeSensorNotFound  ErrorCode = "SENSOR_NOT_FOUND"
	ErrorCodePolicyNotFound  ErrorCode = "POLICY_NOT_FOUND"
	ErrorCodeInvalidAPIKey   ErrorCode = "INVALID_API_KEY"
	ErrorCodeInvalidSig      ErrorCode = "INVALID_SIGNATURE"
	ErrorCodeMissingScope    ErrorCode = "MISSING_SCOPE"
	ErrorCodeInvalidSchedule ErrorCode = "INVALID_SCHEDULE"
)

// AppError is the base error type for HTTP responses. Message is always safe
// to show to the caller; technical detail belongs in the audit trail, not here.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (err *AppError) Error() string {
	return err.Message
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details)
}

// NewPolicyViolationError marks a guardrail rejection on an optimise-mode asset.
func NewPolicyViolationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodePolicyViolation, message, 422, details)
}

// NewUpstreamError hides vendor detail from the caller; the technical message
// is recorded in the audit trail by the raising service.
func NewUpstreamError(message string) *AppError {
	return NewAppError(ErrorCodeUpstreamError, message, 502, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil)
}

// EnsureAppError converts an arbitrary error into an AppError without leaking
// its text to the caller.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
