package hosting

import "errors"

// Sentinel errors shared across provider implementations. The not-found
// values are the cases the submission state machine treats as terminal.
var (
	// Entity lookups
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrReleaseNotFound    = errors.New("release not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrRefNotFound        = errors.New("git ref not found")
	ErrCommitNotFound     = errors.New("commit not found")
	ErrPathNotFound       = errors.New("path not found in repository")

	// Rate limiting
	ErrRateLimited = errors.New("hosting API rate limit exceeded")
)

// APIError represents a non-sentinel failure reported by the hosting API.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// WrapRemoteError builds an APIError for a failed remote call. A zero status
// code means the failure happened before any response arrived.
func WrapRemoteError(status int, message string, err error) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}
