// Package core holds the registry's shared domain types: publisher
// addresses, recoverable signatures, identifier validation and package
// references.
package core

import "errors"

// Error kinds shared across the registry. Callers wrap these with
// xerrors.Errorf to add context; the API surface maps each kind to an
// HTTP status.
var (
	// ErrBadRequest indicates malformed input, an invalid identifier
	// or an invalid semver version.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized indicates signature recovery failed, the address
	// is denied, or the signer is not permitted on the target.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates an unknown namespace, package or version,
	// or a blob missing from every storage layer.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate publisher, namespace or member,
	// a version that is not strictly ahead, or an already yanked version.
	ErrConflict = errors.New("conflict")

	// ErrPayloadTooLarge indicates the request body exceeds the
	// configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnsupportedMediaType indicates the content type does not match
	// the configured archive mime.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrIntegrityFailure indicates a pointer resolved but the blob
	// checksum or signature did not match the stored version row.
	ErrIntegrityFailure = errors.New("integrity failure")

	// ErrInvalidSignature indicates public key recovery failed.
	ErrInvalidSignature = errors.New("invalid signature")
)
