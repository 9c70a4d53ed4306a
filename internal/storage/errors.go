package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("task not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("a user is required to create a task")
	ErrMissingIdentityInfo = errors.New("the account does not exist and there is not enough information to create it")
)

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
