package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned when a request can't be authenticated and the
// session has been cleared.
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultErrorMessage is used when a failed response carries no message.
const DefaultErrorMessage = "request failed"

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
