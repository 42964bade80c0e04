// Package auth implements the wallet sign-in primitives: Solana address and
// signature handling, the sign-in message format, and HS256 session tokens.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidAddress is returned for strings that are not a Solana public key.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrInvalidSignature is returned when a signature is malformed or does
	// not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

var walletRE = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ParsePublicKey decodes a base58 Solana address into an ed25519 public key.
func ParsePublicKey(address string) (ed25519.PublicKey, error) {
	if !walletRE.MatchString(address) {
		return nil, ErrInvalidAddress
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidAddress
	}
	return ed25519.PublicKey(raw), nil
}

// ValidAddress reports whether address is a well-formed Solana public key.
func ValidAddress(address string) bool {
	_, err := ParsePublicKey(address)
	return err == nil
}

// VerifySignature checks a base58 detached ed25519 signature of message made
// by the key behind address.
func VerifySignature(address string, message []byte, signature string) error {
	pub, err := ParsePublicKey(address)
	if err != nil {
		return err
	}
	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: not base58", ErrInvalidSignature)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(pub, message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// SignInMessage is the exact text a wallet signs to prove control of address.
func SignInMessage(domain, address, nonce string) string {
	return domain + " wants you to sign in with your Solana account:\n" +
		address + "\n\n" +
		"Sign in to $ENGRISH\n\n" +
		"Nonce: " + nonce
}

// EncodeAddress renders a public key as a base58 address.
func EncodeAddress(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// EncodeSignature renders a signature as base58.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}
