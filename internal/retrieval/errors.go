package retrieval

import (
	"errors"

	"github.com/dgallion1/filingrag/internal/vectorstore"
)

var (
	ErrMissingQuery   = errors.New("retrieval: missing required field: query")
	ErrInvalidRequest = errors.New("retrieval: invalid request")
	ErrInvalidFilter  = errors.New("retrieval: invalid filter")
	ErrEmbedQuery     = errors.New("retrieval: query embedding failed")
	ErrStoreQuery     = errors.New("retrieval: vector store query failed")
)

// QueryError carries the request context of a failed retrieval.
type QueryError struct {
	Err   error // One of the package sentinels
	Cause error // Underlying failure, if any
	Query string
	Where *vectorstore.Where
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return e.Err.Error() + ": " + e.Cause.Error()
	}
	return e.Err.Error()
}

func (e *QueryError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// ErrorResult is the structured form of a failed retrieval returned to
// callers in place of results.
type ErrorResult struct {
	Error     string             `json:"error"`
	Exception string             `json:"exception,omitempty"`
	Query     string             `json:"query,omitempty"`
	Where     *vectorstore.Where `json:"where,omitempty"`
}

// NewErrorResult converts any retrieval error into its structured form.
func NewErrorResult(err error) ErrorResult {
	var qe *QueryError
	if !errors.As(err, &qe) {
		return ErrorResult{Error: err.Error()}
	}
	r := ErrorResult{Error: qe.Err.Error(), Query: qe.Query, Where: qe.Where}
	if qe.Cause != nil {
		r.Exception = qe.Cause.Error()
	}
	return r
}
