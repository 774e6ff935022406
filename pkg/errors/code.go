package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Challenge module errors
// 12000-12999: Submission & Verdict module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10006

	// Database errors (10100-10199)
	DatabaseError ErrorCode = 10100

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidValue       ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== Challenge Module Errors (11000-11999) ==========

	ChallengeNotFound   ErrorCode = 11000
	ChallengeTestsEmpty ErrorCode = 11001

	// ========== Submission & Verdict Module Errors (12000-12999) ==========

	// Submission (12000-12099)
	SubmissionNotFound     ErrorCode = 12000
	SubmissionCreateFailed ErrorCode = 12001
	CodeTooLarge           ErrorCode = 12002
	SubmitInProgress       ErrorCode = 12003

	// Verdict ingestion (12100-12199)
	InvalidVerdictReport ErrorCode = 12100
	DuplicateResult      ErrorCode = 12101
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	ServiceUnavailable:  "Service temporarily unavailable",

	// Database
	DatabaseError: "Database operation failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Challenge
	ChallengeNotFound:   "Challenge not found",
	ChallengeTestsEmpty: "Challenge has no test cases",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	SubmitInProgress:       "An identical submission is already being processed",

	// Verdict ingestion
	InvalidVerdictReport: "Invalid verdict report",
	DuplicateResult:      "Submission already has a terminal verdict",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == NotFound, c == ChallengeNotFound, c == SubmissionNotFound:
		return 404
	case c == SubmitInProgress:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == InvalidVerdictReport:
		return 400
	default:
		return 500
	}
}
