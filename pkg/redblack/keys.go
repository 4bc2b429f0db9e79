package redblack

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/secmsg/redblack-go/pkg/redblack/logging"
)

const (
	// PrivateKeySize is the length in bytes of a secp256k1 private scalar.
	PrivateKeySize = btcec.PrivKeyBytesLen
	// PublicKeySize is the length in bytes of a compressed secp256k1 point.
	PublicKeySize = btcec.PubKeyBytesLenCompressed
)

// KeyPair is a hex-encoded secp256k1 key pair. PrivateKey is the 32-byte
// scalar and PublicKey the 33-byte compressed point.
type KeyPair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// String omits the private half.
func (k KeyPair) String() string {
	return fmt.Sprintf("KeyPair{PublicKey: %s, PrivateKey: %s}", k.PublicKey, logging.Placeholder())
}

// LogValue implements slog.LogValuer so a KeyPair passed to a logger never
// emits its private half.
func (k KeyPair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("public_key", k.PublicKey),
		logging.Redacted("private_key"),
	)
}

// GenerateKeyPair draws a fresh key pair from crypto/rand. It fails only when
// the entropy source does.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return KeyPair{}, &Error{Op: "GenerateKeyPair", Err: err}
	}
	defer priv.Zero()

	raw := priv.Serialize()
	defer ZeroizeBytes(raw)

	return KeyPair{
		PrivateKey: hex.EncodeToString(raw),
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}, nil
}

// PublicKeyFromPrivate returns the compressed hex public key for a hex
// private key.
func PublicKeyFromPrivate(privateKey string) (string, error) {
	priv, err := parsePrivateKey("PublicKeyFromPrivate", privateKey)
	if err != nil {
		return "", err
	}
	defer priv.Zero()
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// ValidatePublicKey reports whether publicKey is a hex-encoded point on the
// curve, in compressed or uncompressed form.
func ValidatePublicKey(publicKey string) error {
	_, err := parsePublicKey("ValidatePublicKey", publicKey)
	return err
}

// NormalizePublicKey returns the lower-case compressed hex form of a public
// key given in any accepted encoding, so keys can be compared as strings.
func NormalizePublicKey(publicKey string) (string, error) {
	pub, err := parsePublicKey("NormalizePublicKey", publicKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub.SerializeCompressed()), nil
}

func parsePrivateKey(op, privateKey string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, errorf(op, ErrKeyFormat, "private key is not hex")
	}
	defer ZeroizeBytes(raw)

	if len(raw) != PrivateKeySize {
		return nil, errorf(op, ErrKeyFormat, "private key must be %d bytes, got %d", PrivateKeySize, len(raw))
	}

	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(raw)
	zero := scalar.IsZero()
	scalar.Zero()
	if overflow || zero {
		return nil, errorf(op, ErrKeyFormat, "private key is out of range")
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func parsePublicKey(op, publicKey string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, errorf(op, ErrKeyFormat, "public key is not hex")
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, errorf(op, ErrKeyFormat, "public key: %v", err)
	}
	return pub, nil
}
