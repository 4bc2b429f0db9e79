package redblack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/secmsg/redblack-go/pkg/redblack/ecies"
)

// RedToBlack serializes message, encrypts it to recipientPublicKey and signs
// SHA-256 of the ciphertext with senderPrivateKey.
//
// message may be any JSON-serializable value; callers are responsible for
// passing a valid red message shape. Invalid keys fail with ErrKeyFormat and
// unserializable messages with ErrSerialization. The output differs between
// calls for the same input because encryption draws a fresh ephemeral key.
func RedToBlack(senderPrivateKey, recipientPublicKey string, message any) (*BlackMessage, error) {
	const op = "RedToBlack"

	sender, err := parsePrivateKey(op, senderPrivateKey)
	if err != nil {
		return nil, err
	}
	defer sender.Zero()

	recipient, err := parsePublicKey(op, recipientPublicKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(message)
	if err != nil {
		return nil, errorf(op, ErrSerialization, "%v", err)
	}
	defer ZeroizeBytes(plaintext)

	ciphertext, err := ecies.Encrypt(recipient, plaintext)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	digest := sha256.Sum256(ciphertext)
	sig := ecdsa.Sign(sender, digest[:])

	return &BlackMessage{
		MsgHex: hex.EncodeToString(ciphertext),
		SigHex: hex.EncodeToString(sig.Serialize()),
		SpkHex: hex.EncodeToString(sender.PubKey().SerializeCompressed()),
	}, nil
}
