package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// Approval taxonomy. Handlers map these onto HTTP statuses; the
	// failing operation never leaves a partial state change behind.
	ErrorForbidden    = errors.New("forbidden")
	ErrorInvalidState = errors.New("invalid state")
	ErrorConflict     = errors.New("conflict")

	ErrorUnsupportedFormat = errors.New("unsupported format")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
