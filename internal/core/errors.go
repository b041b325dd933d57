package core

import "errors"

var (
	ErrCancelled         = errors.New("cancelled")
	ErrDownloadFailed    = errors.New("download failed")
	ErrConversionFailed  = errors.New("conversion failed")
	ErrDependencyMissing = errors.New("required tool missing")
	ErrInvariant         = errors.New("episode numbering invariant violated")
	ErrRunInProgress     = errors.New("a run is already in progress")
)
