// Package source loads the snapshot document and the hourly history log from
// local files, HTTP endpoints or S3 and decodes them into model records.
package source

import "errors"

var (
	// ErrMalformedRow marks a single record that could not be decoded. Bulk
	// parsers count such rows and drop them instead of returning the error.
	ErrMalformedRow = errors.New("malformed row")
	// ErrMissingColumns is returned when the history header lacks a required column.
	ErrMissingColumns = errors.New("history header is missing required columns")
	// ErrUnsupportedScheme is returned for URIs no fetcher can serve.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
)
