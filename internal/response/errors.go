package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session tokens ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam entry ────────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotPublished    ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft        ErrCode = "EXAM_NOT_DRAFT"
	ErrInvalidSecurityCode ErrCode = "INVALID_SECURITY_CODE"
	ErrAttemptCompleted    ErrCode = "ATTEMPT_COMPLETED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrCodeTaken           ErrCode = "EXAM_CODE_TAKEN"

	// ─── Live session ──────────────────────────────────────────────────
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrSessionFinalized ErrCode = "SESSION_FINALIZED"
	ErrSessionBlocked   ErrCode = "SESSION_BLOCKED"

	// ─── Hints ─────────────────────────────────────────────────────────
	ErrHintsDisabled    ErrCode = "HINTS_DISABLED"
	ErrHintUnavailable  ErrCode = "HINT_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "A session token is required."
	case ErrTokenInvalid:
		return "The session token is invalid."
	case ErrTokenExpired:
		return "The session token has expired."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	case ErrExamNotFound:
		return "No exam matches that code."
	case ErrExamNotAvailable:
		return "This exam is not currently open."
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrExamNotDraft:
		return "This exam is not in DRAFT status."
	case ErrInvalidSecurityCode:
		return "The security code is incorrect."
	case ErrAttemptCompleted:
		return "You have already completed this exam."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrCodeTaken:
		return "That exam code is already in use."

	case ErrSessionNotFound:
		return "No live session found. Join the exam first."
	case ErrSessionFinalized:
		return "This session has already been finalized."
	case ErrSessionBlocked:
		return "The session is blocked pending a violation acknowledgement."

	case ErrHintsDisabled:
		return "Hints are disabled for this exam."
	case ErrHintUnavailable:
		return "A hint is not available right now. Try again shortly."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
