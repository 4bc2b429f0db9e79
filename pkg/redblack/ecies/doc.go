// Package ecies implements the hybrid public-key encryption used by black
// envelopes: an ephemeral secp256k1 key agreement followed by AES-256-GCM.
//
// # Ciphertext Layout
//
//	[ephemeral_pubkey:33 compressed][nonce:12][ciphertext+tag]
//
// The AES key is derived with HKDF-SHA256 over the x-coordinate of the ECDH
// shared point, salted with the ephemeral and recipient public keys so the
// derived key is bound to both ends of the agreement.
//
// # Usage
//
//	ct, err := ecies.Encrypt(recipientPub, plaintext)
//	if err != nil {
//	    return err
//	}
//	pt, err := ecies.Decrypt(recipientPriv, ct)
//
// A fresh ephemeral key is drawn for every call to Encrypt; the sender's
// long-lived key never takes part in the agreement. Authenticity of the
// ciphertext is the caller's concern (see package redblack, which signs the
// ciphertext hash).
package ecies
