package descendants

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks malformed requests rejected before any lookup.
var ErrInvalidArgument = errors.New("invalid argument")

// DataAccessError is returned when a query against a backend store fails.
// Op names the query.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// DataAccess wraps err as a DataAccessError for op. Errors that already are
// data access failures are returned unchanged.
func DataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// IsDataAccess reports whether err is, or wraps, a DataAccessError.
func IsDataAccess(err error) bool {
	var dae *DataAccessError
	return errors.As(err, &dae)
}
