package index

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidChunking = errors.New("chunk overlap must be non-negative and smaller than chunk size")
	ErrIndexNotFound   = errors.New("no index found at path")
	ErrEmptyIndex      = errors.New("index contains no chunks")
	ErrEmptyCorpus     = errors.New("corpus produced no chunks")
)

// IncompatibleBackendError reports an embedding backend mismatch between
// index build time and load time. Querying across mismatched backends would
// produce plausible-looking but meaningless similarity scores, so the load
// path rejects it outright.
type IncompatibleBackendError struct {
	BuiltWith   string
	Loading     string
	BuiltDims   int
	LoadingDims int
}

func (e *IncompatibleBackendError) Error() string {
	return fmt.Sprintf("index built with backend %q (%d dims) cannot be used with %q (%d dims)",
		e.BuiltWith, e.BuiltDims, e.Loading, e.LoadingDims)
}
