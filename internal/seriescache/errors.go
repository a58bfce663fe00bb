package seriescache

import "errors"

var (
	// ErrStorageUnavailable means the backend could not be opened. The cache
	// then behaves as always-miss.
	ErrStorageUnavailable = errors.New("series cache storage unavailable")
	// ErrTransactionFailure wraps a failed read or write against an open backend.
	ErrTransactionFailure = errors.New("series cache transaction failed")
	// ErrInvalidImportFormat is returned for import payloads that do not have
	// the {symbol, interval, candles} shape. The store is left untouched.
	ErrInvalidImportFormat = errors.New("invalid import format")
	ErrNotFound            = errors.New("series not cached")

	errInvalidKey   = errors.New("series key requires symbol and interval")
	errCorruptEntry = errors.New("stored entry is not decodable")
)
