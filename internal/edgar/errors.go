package edgar

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound   = errors.New("edgar: not found")
	ErrInvalidCIK = errors.New("edgar: invalid cik")
)

// StatusError is returned for any non-success response from EDGAR. A filing
// download that fails this way aborts that filing only.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("edgar: GET %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
