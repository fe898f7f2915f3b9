package graphapi

import (
	"errors"
	"fmt"
	"strings"
)

const (
	codeOAuth             = 190
	codeClientError       = 100
	subcodeNoProfile      = 2018218
	subcodeMessageDeleted = 2534001
)

// GraphError is the structured error object the graph API returns inside
// non-200 responses.
type GraphError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	HTTPStatus int    `json:"-"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph API error %d (subcode %d, http %d): %s", e.Code, e.Subcode, e.HTTPStatus, e.Message)
}

// TransientError wraps network failures and 5xx responses; callers retry
// these with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient graph API failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuthError reports an invalid or expired access token. Code 190 is the
// OAuth family, but a deleted story/message also surfaces as 190 with a
// distinguishing subcode or message, so exclude that shape first.
func IsAuthError(err error) bool {
	var ge *GraphError
	if !errors.As(err, &ge) {
		return false
	}
	if IsDeletedResource(err) {
		return false
	}
	return ge.Code == codeOAuth || ge.HTTPStatus == 401
}

// IsProfileNotAvailable reports the sender has no public profile
// (code 100, subcode 2018218).
func IsProfileNotAvailable(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge) && ge.Code == codeClientError && ge.Subcode == subcodeNoProfile
}

// IsDeletedResource reports that the referenced story or message was deleted
// by the user or the business.
func IsDeletedResource(err error) bool {
	var ge *GraphError
	if !errors.As(err, &ge) {
		return false
	}
	if ge.Subcode == subcodeMessageDeleted {
		return true
	}
	return ge.Code == codeOAuth && strings.Contains(strings.ToLower(ge.Message), "deleted")
}
