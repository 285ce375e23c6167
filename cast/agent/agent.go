// Package agent implements certificate bootstrap for a receiver: loading
// the agent's DER-encoded identity certificate and RSA private key, and
// advertising the certificate's fingerprint over DNS-SD so peers can
// bind the connection they open to the identity they expect.
//
// The loader reads whatever paths the embedder supplies; nothing here
// is baked in at build time.
package agent

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/openscreen-go/openscreen/cast/certificate"
	osperrors "github.com/openscreen-go/openscreen/internal/errors"
)

// ServiceType is the DNS-SD service type receivers advertise under.
const ServiceType = "_openscreen._udp"

// Identity is a receiver's loaded certificate and private key, plus the
// derived values advertised over DNS-SD.
type Identity struct {
	CertificateDER []byte
	PrivateKey     *rsa.PrivateKey
	Fingerprint    [32]byte
}

// LoadIdentity reads a DER certificate and a DER (PKCS#1 or PKCS#8) RSA
// private key from disk and computes the certificate's fingerprint.
func LoadIdentity(certPath, keyPath string) (*Identity, error) {
	certDER, err := os.ReadFile(certPath)
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "agent-cert-load-failed", Operation: "LoadIdentity", Err: err}
	}
	if _, err := certificate.ParseFromDER(certDER); err != nil {
		return nil, &osperrors.ProtocolError{Code: "agent-cert-parse-failed", Operation: "LoadIdentity", Err: err}
	}

	keyDER, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "agent-key-load-failed", Operation: "LoadIdentity", Err: err}
	}
	key, err := parseRSAPrivateKeyDER(keyDER)
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "agent-key-parse-failed", Operation: "LoadIdentity", Err: err}
	}

	return &Identity{
		CertificateDER: certDER,
		PrivateKey:     key,
		Fingerprint:    certificate.Fingerprint(certDER),
	}, nil
}

func parseRSAPrivateKeyDER(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("not a valid PKCS#1 or PKCS#8 RSA private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

// FingerprintHex returns the colon-separated uppercase hex form the
// original agent_certificate.cc used for its logged constant, kept here
// only as a human-readable rendering; the DNS-SD TXT value itself uses
// the raw lowercase hex form written by [BuildService].
func (id *Identity) FingerprintHex() string {
	raw := strings.ToUpper(hex.EncodeToString(id.Fingerprint[:]))
	out := make([]byte, 0, len(raw)+len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, raw[i], raw[i+1])
	}
	return string(out)
}
