package staging

import "errors"

var (
	// ErrUnauthorized signals the access context may not perform the
	// requested operation or see the requested object.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrObjectNotFound signals the digital object the caller named does
	// not exist or is not visible to the caller.
	ErrObjectNotFound = errors.New("digital object not found")

	// ErrTransferPreparation wraps any failure while scheduling or
	// preparing a transfer. The proximate cause is attached to it.
	ErrTransferPreparation = errors.New("transfer preparation failed")
)
