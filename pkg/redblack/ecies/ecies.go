package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

const (
	// PublicKeySize is the length of a compressed secp256k1 point.
	PublicKeySize = btcec.PubKeyBytesLenCompressed
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = PublicKeySize + NonceSize + TagSize

	keySize = 32
)

var kdfInfo = []byte("redblack-ecies-v1")

var (
	// ErrInvalidPublicKey indicates a nil or unusable recipient key.
	ErrInvalidPublicKey = errors.New("ecies: invalid public key")

	// ErrInvalidPrivateKey indicates a nil recipient private key.
	ErrInvalidPrivateKey = errors.New("ecies: invalid private key")

	// ErrInvalidCiphertext indicates the ciphertext is truncated or carries an
	// unparsable ephemeral key.
	ErrInvalidCiphertext = errors.New("ecies: invalid ciphertext")

	// ErrAuthentication indicates the AES-GCM tag did not verify: wrong key or
	// modified ciphertext.
	ErrAuthentication = errors.New("ecies: message authentication failed")
)

// Encrypt seals plaintext for the holder of recipient's private key.
func Encrypt(recipient *btcec.PublicKey, plaintext []byte) ([]byte, error) {
	return encrypt(rand.Reader, recipient, plaintext)
}

func encrypt(random io.Reader, recipient *btcec.PublicKey, plaintext []byte) ([]byte, error) {
	if recipient == nil {
		return nil, ErrInvalidPublicKey
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("ecies: generate ephemeral key: %w", err)
	}
	defer ephemeral.Zero()

	ephPub := ephemeral.PubKey().SerializeCompressed()
	aead, err := newAEAD(btcec.GenerateSharedSecret(ephemeral, recipient), ephPub, recipient.SerializeCompressed())
	if err != nil {
		return nil, err
	}

	out := make([]byte, PublicKeySize+NonceSize, Overhead+len(plaintext))
	copy(out, ephPub)
	nonce := out[PublicKeySize : PublicKeySize+NonceSize]
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("ecies: read nonce: %w", err)
	}

	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(recipient *btcec.PrivateKey, ciphertext []byte) ([]byte, error) {
	if recipient == nil {
		return nil, ErrInvalidPrivateKey
	}
	if len(ciphertext) < Overhead {
		return nil, ErrInvalidCiphertext
	}

	ephPubBytes := ciphertext[:PublicKeySize]
	ephPub, err := btcec.ParsePubKey(ephPubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %v", ErrInvalidCiphertext, err)
	}

	aead, err := newAEAD(btcec.GenerateSharedSecret(recipient, ephPub), ephPubBytes, recipient.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[PublicKeySize : PublicKeySize+NonceSize]
	plaintext, err := aead.Open(nil, nonce, ciphertext[PublicKeySize+NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// newAEAD derives the AES-256-GCM instance for one ECDH shared secret. The
// shared secret is zeroed before returning.
func newAEAD(shared, ephPub, recipientPub []byte) (cipher.AEAD, error) {
	defer zero(shared)

	salt := make([]byte, 0, len(ephPub)+len(recipientPub))
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)

	key := make([]byte, keySize)
	defer zero(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, kdfInfo), key); err != nil {
		return nil, fmt.Errorf("ecies: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecies: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ecies: new gcm: %w", err)
	}
	return aead, nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}
