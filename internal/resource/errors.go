package resource

import "errors"

// Error kinds returned by Engine operations. The message of each sentinel is
// the code surfaced to HTTP clients.
var (
	ErrInvalidResourceID   = errors.New("InvalidResourceId")
	ErrInvalidResourceName = errors.New("InvalidResourceName")
	ErrInvalidResourceData = errors.New("InvalidResourceData")
	ErrInvalidResourcePath = errors.New("InvalidResourcePath")
	ErrSharingDisabled     = errors.New("SharingDisabled")
)
