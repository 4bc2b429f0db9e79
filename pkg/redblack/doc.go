// Package redblack converts plaintext JSON-RPC 2.0 messages ("red") into
// encrypted, signed wire envelopes ("black") and back.
//
// A black envelope carries three hex strings:
//
//	{"msghex": "<ciphertext>", "sighex": "<DER signature>", "spkhex": "<sender pubkey>"}
//
// The ciphertext is produced by package ecies (ephemeral secp256k1 ECDH and
// AES-256-GCM) for the recipient's public key. The signature is an ECDSA
// signature by the sender over SHA-256 of the ciphertext bytes, and spkhex is
// the sender's compressed public key.
//
// # Transform
//
//	env, err := redblack.RedToBlack(alice.PrivateKey, bob.PublicKey, req)
//	if err != nil {
//	    return err
//	}
//	msg, err := redblack.Open(bob.PrivateKey, env)
//
// BlackToRed verifies the signature against spkhex before the recipient's
// private key is used for decryption, so unauthenticated envelopes never reach
// the decryption step.
//
// # Errors
//
// Failures wrap one of the package sentinels and are classified with
// errors.Is. ErrSignatureVerification and ErrDecryption are distinct so that
// "not from whom it claims" can be told apart from "not decryptable by me";
// IsSecurityFailure reports either.
//
// # Security Considerations
//
//   - The signature covers the ciphertext, not the plaintext. It proves that
//     the holder of spkhex produced this ciphertext; it does not prove the
//     signer knew the plaintext. The ordering is part of the wire format and
//     is kept as-is.
//   - spkhex is asserted by the sender. Binding a public key to an identity
//     must happen out of band (pinning, prior exchange).
//   - Private keys and plaintext buffers handled inside the package are
//     zeroized before returning. Hex strings passed in by callers are
//     immutable and remain the caller's responsibility.
package redblack
