package metadata

import "errors"

var (
	// ErrNoAPIKey is returned when creating a client without an API key.
	ErrNoAPIKey = errors.New("tmdb api key is not configured")

	// ErrUnauthorized indicates TMDB rejected the API key.
	ErrUnauthorized = errors.New("tmdb rejected the api key")

	// ErrUnexpectedStatus indicates a non-2xx response other than 401.
	ErrUnexpectedStatus = errors.New("unexpected tmdb response status")

	// ErrInvalidMediaType indicates a media type other than movie or tv.
	ErrInvalidMediaType = errors.New("invalid media type")
)
