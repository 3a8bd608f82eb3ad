// Package services defines the business logic for searching and serving the
// custom index. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Search-related errors.
var (
	// ErrQueryTooLong is returned when the query text exceeds the configured
	// maximum length.
	ErrQueryTooLong = errors.New("query too long")

	// ErrIndexUnavailable is returned when the custom index has never been
	// built successfully and the latest build attempt failed.
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrNoIndexSource is returned when neither a CMS nor a remote index URL
	// is configured.
	ErrNoIndexSource = errors.New("no search index source configured")
)
