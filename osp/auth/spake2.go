// Package auth implements the SPAKE2-style mutual authentication
// exchange the QUIC protocol endpoint runs over its first stream, and
// the HKDF-scrypt derivation that turns a human-entered or provisioned
// password into the shared PSK both sides authenticate with.
package auth

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// PrivateKeySize is the size in bytes of the P-256 scalar private key used
// in the exchange.
const PrivateKeySize = 32

// SharedKeySize is the size in bytes of the derived shared key: the
// SHA-512 digest of the ECDH shared value concatenated with the
// password.
const SharedKeySize = 64

// scryptCost, scryptR, scryptP are the fixed scrypt cost parameters of
// the PSK derivation.
const (
	scryptCost = 32768
	scryptR    = 8
	scryptP    = 1
)

// GeneratePrivateKey returns a fresh random P-256 scalar suitable for use
// as an exchange participant's private key.
func GeneratePrivateKey() ([]byte, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, &errors.ProtocolError{Code: "spake2-keygen-failed", Operation: "GeneratePrivateKey", Err: err}
	}
	return key.Bytes(), nil
}

// ComputePublicValue computes the public value V = k*G on P-256 from a
// 32-byte private scalar, grounded on quic_service_base.cc's
// ComputePublicValue (there built on OpenSSL EC_KEY/EC_POINT_mul; here on
// the stdlib crypto/ecdh, which exposes the same scalar-multiplication
// operation without the OpenSSL dependency the pack does not carry).
func ComputePublicValue(selfPrivateKey []byte) ([]byte, error) {
	key, err := ecdh.P256().NewPrivateKey(selfPrivateKey)
	if err != nil {
		return nil, &errors.ProtocolError{Code: "spake2-invalid-private-key", Operation: "ComputePublicValue", Err: err}
	}
	return key.PublicKey().Bytes(), nil
}

// ComputeSharedKey computes the ECDH shared value between selfPrivateKey
// and peerPublicValue, then derives the 64-byte shared key as
// SHA-512(ecdh_shared || password), grounded on quic_service_base.cc's
// ComputeSharedKey.
func ComputeSharedKey(selfPrivateKey, peerPublicValue []byte, password string) ([SharedKeySize]byte, error) {
	var out [SharedKeySize]byte

	key, err := ecdh.P256().NewPrivateKey(selfPrivateKey)
	if err != nil {
		return out, &errors.ProtocolError{Code: "spake2-invalid-private-key", Operation: "ComputeSharedKey", Err: err}
	}
	peer, err := ecdh.P256().NewPublicKey(peerPublicValue)
	if err != nil {
		return out, &errors.ProtocolError{Code: "spake2-invalid-peer-public-value", Operation: "ComputeSharedKey", Err: err}
	}
	ecdhShared, err := key.ECDH(peer)
	if err != nil {
		return out, &errors.ProtocolError{Code: "spake2-ecdh-failed", Operation: "ComputeSharedKey", Err: err}
	}

	h := sha512.New()
	h.Write(ecdhShared)
	h.Write([]byte(password))
	copy(out[:], h.Sum(nil))
	return out, nil
}

// DerivePSK implements the HKDF-scrypt construction: an
// scrypt-stretched password (parameterized by salt and the fixed cost
// above) feeds an HKDF-SHA256 expansion keyed by info, producing a 32-byte
// PSK. This is the password SPAKE2 authenticates with, not a replacement
// for the ECDH exchange itself.
func DerivePSK(psk, salt, info []byte) ([]byte, error) {
	stretched, err := scrypt.Key(psk, salt, scryptCost, scryptR, scryptP, sha256.Size)
	if err != nil {
		return nil, &errors.ProtocolError{Code: "hkdf-scrypt-derive-failed", Operation: "DerivePSK", Err: err}
	}

	out := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, stretched, salt, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, &errors.ProtocolError{Code: "hkdf-scrypt-expand-failed", Operation: "DerivePSK", Err: err}
	}
	return out, nil
}
