package service

import "errors"

// Sentinel errors for the challenge service.
var (
	ErrInvalidPath             = errors.New("invalid verification path")
	ErrInvalidDomain           = errors.New("invalid domain")
	ErrInvalidKeyAuthorization = errors.New("invalid key authorization")
	ErrCapacityExceeded        = errors.New("too many live challenges; retry later")
	ErrDuplicatePath           = errors.New("verification path already registered for another domain")
	ErrNotFound                = errors.New("challenge not found")
)
