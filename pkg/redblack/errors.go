package redblack

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyFormat indicates a key string is not a valid hex-encoded
	// secp256k1 key.
	ErrKeyFormat = errors.New("redblack: invalid key format")

	// ErrSerialization indicates a red message could not be serialized.
	ErrSerialization = errors.New("redblack: serialization failed")

	// ErrMalformedEnvelope indicates a black envelope is missing fields or
	// carries empty or non-hex content.
	ErrMalformedEnvelope = errors.New("redblack: malformed envelope")

	// ErrSignatureVerification indicates the envelope signature does not
	// verify against the declared sender key.
	ErrSignatureVerification = errors.New("redblack: signature verification failed")

	// ErrDecryption indicates the ciphertext could not be decrypted with the
	// recipient key.
	ErrDecryption = errors.New("redblack: decryption failed")

	// ErrDeserialization indicates the decrypted plaintext is not valid JSON.
	ErrDeserialization = errors.New("redblack: deserialization failed")

	// ErrInvalidProtocolEnvelope indicates a message is not a well-formed
	// JSON-RPC 2.0 envelope of one of the known kinds.
	ErrInvalidProtocolEnvelope = errors.New("redblack: invalid protocol envelope")
)

// Error wraps an underlying error with the operation that failed.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("redblack.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errorf creates an Error whose chain contains kind.
func errorf(op string, kind error, format string, args ...any) error {
	return &Error{
		Op:  op,
		Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)),
	}
}

// IsSecurityFailure reports whether err is a signature or decryption failure.
// Callers should treat these as security events and drop the connection
// rather than retry.
func IsSecurityFailure(err error) bool {
	return errors.Is(err, ErrSignatureVerification) || errors.Is(err, ErrDecryption)
}

// ErrorKind returns the sentinel classifying err, or nil when err carries none of
// the package sentinels.
func ErrorKind(err error) error {
	for _, kind := range []error{
		ErrKeyFormat,
		ErrSerialization,
		ErrMalformedEnvelope,
		ErrSignatureVerification,
		ErrDecryption,
		ErrDeserialization,
		ErrInvalidProtocolEnvelope,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
