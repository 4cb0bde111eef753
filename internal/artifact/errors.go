package artifact

import "errors"

// Sentinel errors for the persistence layers. Callers match with errors.Is;
// call sites add context with eris.Wrap so the sentinel stays in the chain.
var (
	// ErrValidation marks malformed input to a persistence call (missing
	// identifier, no resolvable bucket where one is required).
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks a requested artifact, bucket, or snapshot that does
	// not exist on disk.
	ErrNotFound = errors.New("artifact not found")

	// ErrConflict marks an operation that would destroy pre-existing data
	// that is not ours to replace (e.g. "latest" exists as a real directory).
	ErrConflict = errors.New("conflicting filesystem state")

	// ErrSerialization marks a value that cannot be represented as JSON.
	ErrSerialization = errors.New("value not JSON-serializable")

	// ErrParse marks malformed JSON read back from disk.
	ErrParse = errors.New("malformed JSON")
)
