// Package certificate is the pure-function certificate validator L4 calls
// into: parse a DER certificate, and build a trusted chain from a target
// certificate through intermediates to a root in the trust store.
//
// It never reimplements ASN.1 or RSA/ECDSA itself — parsing and
// signature verification are delegated to crypto/x509, the one place in
// the pack's dependency surface that does full X.509 parsing. What it
// adds over crypto/x509 is the stricter RFC 5280 GeneralizedTime parsing
// (see generalizedtime.go) and the Cast-specific audio-only policy tag.
package certificate

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	osperrors "github.com/openscreen-go/openscreen/internal/errors"
)

// DigestAlgorithm names a hash used under RSA PKCS#1 v1.5 signatures.
type DigestAlgorithm int

const (
	DigestSha1 DigestAlgorithm = iota
	DigestSha256
	DigestSha384
	DigestSha512
)

// Policy is the Cast device-certificate restriction tagged onto a
// verified chain.
type Policy int

const (
	PolicyUnrestricted Policy = iota
	PolicyAudioOnly
)

// audioOnlyPolicyOID is the well-known OID Cast device certificates carry
// to restrict themselves to audio-only operation.
var audioOnlyPolicyOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 5, 2}

const minRSAModulusBits = 2048

// ParsedCertificate exposes the fields and operations Cast device
// authentication needs from an X.509 certificate, independent of the
// parsing backend behind it.
type ParsedCertificate interface {
	// SerializeToDER returns the certificate's DER encoding preceded by
	// frontSpacing zero bytes of padding, reserved by callers that place
	// a nonce in front during authentication.
	SerializeToDER(frontSpacing int) ([]byte, error)

	GetNotBeforeTime() (GeneralizedTime, error)
	GetNotAfterTime() (GeneralizedTime, error)

	// GetCommonName returns the subject's Common Name, or "" if absent.
	GetCommonName() string

	// GetSpkiTlv returns the DER encoding of the SubjectPublicKeyInfo.
	GetSpkiTlv() []byte

	// GetSerialNumber returns the certificate's serial number, failing if
	// it does not fit in 64 bits.
	GetSerialNumber() (uint64, error)

	VerifySignedData(algorithm DigestAlgorithm, data, signature []byte) bool

	HasPolicyOid(oid asn1.ObjectIdentifier) bool
}

// x509ParsedCertificate is the crypto/x509-backed implementation of
// ParsedCertificate.
type x509ParsedCertificate struct {
	cert *x509.Certificate
}

// ParseFromDER parses a single DER-encoded certificate.
func ParseFromDER(der []byte) (ParsedCertificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "kErrCertsParse", Operation: "ParseFromDER", Err: err}
	}
	return &x509ParsedCertificate{cert: cert}, nil
}

func (p *x509ParsedCertificate) SerializeToDER(frontSpacing int) ([]byte, error) {
	if frontSpacing < 0 {
		return nil, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "SerializeToDER", Err: fmt.Errorf("negative front spacing %d", frontSpacing)}
	}
	out := make([]byte, frontSpacing+len(p.cert.Raw))
	copy(out[frontSpacing:], p.cert.Raw)
	return out, nil
}

func (p *x509ParsedCertificate) GetNotBeforeTime() (GeneralizedTime, error) {
	return generalizedTimeFromStdlib(p.cert.NotBefore)
}

func (p *x509ParsedCertificate) GetNotAfterTime() (GeneralizedTime, error) {
	return generalizedTimeFromStdlib(p.cert.NotAfter)
}

func (p *x509ParsedCertificate) GetCommonName() string {
	return p.cert.Subject.CommonName
}

func (p *x509ParsedCertificate) GetSpkiTlv() []byte {
	return p.cert.RawSubjectPublicKeyInfo
}

func (p *x509ParsedCertificate) GetSerialNumber() (uint64, error) {
	if !p.cert.SerialNumber.IsUint64() {
		return 0, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "GetSerialNumber", Err: fmt.Errorf("serial number does not fit in 64 bits")}
	}
	return p.cert.SerialNumber.Uint64(), nil
}

func (p *x509ParsedCertificate) VerifySignedData(algorithm DigestAlgorithm, data, signature []byte) bool {
	alg, ok := signatureAlgorithmFor(p.cert.PublicKeyAlgorithm, algorithm)
	if !ok {
		return false
	}
	return p.cert.CheckSignature(alg, data, signature) == nil
}

func (p *x509ParsedCertificate) HasPolicyOid(oid asn1.ObjectIdentifier) bool {
	for _, id := range p.cert.PolicyIdentifiers {
		if id.Equal(oid) {
			return true
		}
	}
	return false
}

func signatureAlgorithmFor(pubKeyAlg x509.PublicKeyAlgorithm, digest DigestAlgorithm) (x509.SignatureAlgorithm, bool) {
	if pubKeyAlg != x509.RSA {
		return 0, false
	}
	switch digest {
	case DigestSha1:
		return x509.SHA1WithRSA, true
	case DigestSha256:
		return x509.SHA256WithRSA, true
	case DigestSha384:
		return x509.SHA384WithRSA, true
	case DigestSha512:
		return x509.SHA512WithRSA, true
	default:
		return 0, false
	}
}

func generalizedTimeFromStdlib(t time.Time) (GeneralizedTime, error) {
	formatted := t.UTC().Format("20060102150405") + "Z"
	gt, ok := ParseGeneralizedTime([]byte(formatted))
	if !ok {
		return GeneralizedTime{}, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "GetNotBeforeTime/GetNotAfterTime", Err: fmt.Errorf("certificate time %q does not satisfy strict GeneralizedTime rules", formatted)}
	}
	return gt, nil
}

// Fingerprint returns the SHA-256 fingerprint of a certificate's DER
// encoding, the value the agent advertises under the "pk" DNS-SD TXT key.
func Fingerprint(der []byte) [32]byte {
	return sha256.Sum256(der)
}
