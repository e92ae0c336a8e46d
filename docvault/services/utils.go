package services

import (
	"errors"
	"log/slog"
	"net/http"
)

var (
	ErrEmailAlreadyInUse  = errors.New("email is already in use")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrQuotaExceeded      = errors.New("storage capacity exceeded")
	ErrObjectForbidden    = errors.New("object does not belong to the requesting user")
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}
