package domain

import "errors"

var (
	// ErrConfig is returned when required settings are missing or invalid
	ErrConfig = errors.New("invalid configuration")

	// ErrFeedUnavailable is returned when the feed URL cannot be fetched
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrFeedMalformed is returned when the feed document cannot be parsed
	ErrFeedMalformed = errors.New("feed document malformed")

	// ErrRateLimited is returned when the catalog API throttles a request
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRetriesExhausted is returned when a throttled or failing request used up its attempts
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrDuplicate is returned when the catalog reports that a resource already exists
	ErrDuplicate = errors.New("resource already exists")

	// ErrNotFound is returned when a catalog resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when the access token lacks a scope for the call
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCatalogAPI is returned when a catalog API request fails for any other reason
	ErrCatalogAPI = errors.New("catalog API request failed")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrRunInProgress is returned when a sync run is requested while another is active
	ErrRunInProgress = errors.New("sync run already in progress")
)
