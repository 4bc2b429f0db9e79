package redblack

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/secmsg/redblack-go/pkg/redblack/ecies"
)

// BlackToRed verifies and decrypts env with recipientPrivateKey and returns
// the decoded JSON value (map[string]any for a red message). Numbers are
// returned as json.Number so integer ids survive beyond 2^53.
//
// Steps run in a fixed order and stop at the first failure:
//
//  1. hex-decode msghex and sighex (ErrMalformedEnvelope)
//  2. hash the ciphertext with SHA-256
//  3. parse spkhex (ErrKeyFormat)
//  4. verify the signature (ErrSignatureVerification)
//  5. decrypt with the recipient key (ErrDecryption)
//  6. parse the plaintext as JSON (ErrDeserialization)
//
// The recipient key is not touched until the signature has verified.
func BlackToRed(recipientPrivateKey string, env *BlackMessage) (any, error) {
	const op = "BlackToRed"

	plaintext, err := openEnvelope(op, recipientPrivateKey, env)
	if err != nil {
		return nil, err
	}
	defer ZeroizeBytes(plaintext)

	value, err := decodeValue(plaintext)
	if err != nil {
		return nil, errorf(op, ErrDeserialization, "%v", err)
	}
	return value, nil
}

// Open runs BlackToRed and additionally requires the plaintext to be a
// JSON-RPC 2.0 envelope (ErrInvalidProtocolEnvelope) of one of the four
// message kinds. On success env.SpkHex is the verified signer of the message.
func Open(recipientPrivateKey string, env *BlackMessage) (Message, error) {
	const op = "Open"

	plaintext, err := openEnvelope(op, recipientPrivateKey, env)
	if err != nil {
		return Message{}, err
	}
	defer ZeroizeBytes(plaintext)

	value, err := decodeValue(plaintext)
	if err != nil {
		return Message{}, errorf(op, ErrDeserialization, "%v", err)
	}
	if !IsJSONRPC(value) {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "plaintext is not a JSON-RPC 2.0 envelope")
	}
	return ParseMessage(plaintext)
}

func openEnvelope(op, recipientPrivateKey string, env *BlackMessage) ([]byte, error) {
	if env == nil {
		return nil, errorf(op, ErrMalformedEnvelope, "nil envelope")
	}

	ciphertext, err := decodeHexField(op, "msghex", env.MsgHex)
	if err != nil {
		return nil, err
	}
	sigBytes, err := decodeHexField(op, "sighex", env.SigHex)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(ciphertext)

	sender, err := parsePublicKey(op, env.SpkHex)
	if err != nil {
		return nil, err
	}

	// A signature that does not parse as DER is treated like one that does
	// not verify: both mean the envelope is not from spkhex.
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return nil, errorf(op, ErrSignatureVerification, "signature encoding: %v", err)
	}
	if !sig.Verify(digest[:], sender) {
		return nil, errorf(op, ErrSignatureVerification, "signature does not match sender key")
	}

	recipient, err := parsePrivateKey(op, recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	defer recipient.Zero()

	plaintext, err := ecies.Decrypt(recipient, ciphertext)
	if err != nil {
		return nil, errorf(op, ErrDecryption, "%v", err)
	}
	return plaintext, nil
}

// decodeValue parses exactly one JSON document, keeping numbers as
// json.Number.
func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return value, nil
}

func decodeHexField(op, name, value string) ([]byte, error) {
	if value == "" {
		return nil, errorf(op, ErrMalformedEnvelope, "%s is empty", name)
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, errorf(op, ErrMalformedEnvelope, "%s is not hex", name)
	}
	return raw, nil
}
