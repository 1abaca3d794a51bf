package feed

import "errors"

var (
	ErrStorage          = errors.New("storage_error")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidArgument  = errors.New("invalid_argument")
	ErrStoreFetchFailed = errors.New("store_fetch_failed")
)
