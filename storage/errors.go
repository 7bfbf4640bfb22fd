package storage

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// PersistenceError reports a request the backend rejected. The backend's
// message is preserved verbatim for callers to surface.
type PersistenceError struct {
	Op    string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError reports an expected single row that was absent.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Table, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// wrapErr converts a backend failure into the storage error taxonomy.
// A 404 on a single-row operation becomes a NotFoundError so callers can
// distinguish missing rows from rejected requests.
func wrapErr(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 && id != "" {
		return &NotFoundError{Table: table, ID: id}
	}
	return &PersistenceError{Op: op, Table: table, Err: err}
}
