package certificate

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	osperrors "github.com/openscreen-go/openscreen/internal/errors"
)

// TrustStore holds the root certificates a chain must ultimately reach.
type TrustStore struct {
	Roots []*x509.Certificate
}

// NewTrustStore builds a TrustStore from DER-encoded root certificates.
func NewTrustStore(rootsDER [][]byte) (*TrustStore, error) {
	store := &TrustStore{}
	for _, der := range rootsDER {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, &osperrors.ProtocolError{Code: "kErrCertsParse", Operation: "NewTrustStore", Err: err}
		}
		store.Roots = append(store.Roots, cert)
	}
	return store, nil
}

// FindCertificatePath builds a chain from certs[0] (the target) through
// any remaining entries in certs (intermediates, order-independent) to a
// root in store, validating every link as it goes: each adjacent
// pair's signature is checked with the issuer's
// public key, every certificate's validity window must contain time, RSA
// issuer keys must be at least 2048 bits, and the target must carry the
// digital-signature key usage bit.
//
// On success it returns the path from target to root (inclusive) and the
// policy tag the chain carries.
func FindCertificatePath(certsDER [][]byte, t GeneralizedTime, store *TrustStore) ([]ParsedCertificate, Policy, error) {
	if len(certsDER) == 0 {
		return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsMissing", Operation: "FindCertificatePath"}
	}

	parsed := make([]*x509.Certificate, 0, len(certsDER))
	for _, der := range certsDER {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsParse", Operation: "FindCertificatePath", Err: err}
		}
		parsed = append(parsed, cert)
	}

	target := parsed[0]
	if target.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "FindCertificatePath", Err: fmt.Errorf("target certificate lacks the digital-signature key usage bit")}
	}

	pool := append(append([]*x509.Certificate{}, parsed[1:]...), store.Roots...)
	path := []*x509.Certificate{target}

	current := target
	for {
		if isTrustAnchor(current, store.Roots) {
			break
		}
		issuer := findIssuer(current, pool)
		if issuer == nil {
			return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsVerifyUntrustedCert", Operation: "FindCertificatePath", Err: fmt.Errorf("no path from %q reaches a trusted root", target.Subject.CommonName)}
		}
		if len(path) > len(parsed)+len(store.Roots) {
			return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsPathlen", Operation: "FindCertificatePath", Err: fmt.Errorf("certificate chain exceeds the number of supplied certificates")}
		}
		path = append(path, issuer)
		current = issuer
	}

	for i, cert := range path {
		gt, err := generalizedTimeFromStdlib(cert.NotBefore)
		if err != nil {
			return nil, 0, err
		}
		gtAfter, err := generalizedTimeFromStdlib(cert.NotAfter)
		if err != nil {
			return nil, 0, err
		}
		if t.Before(gt) || gtAfter.Before(t) {
			return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsDateInvalid", Operation: "FindCertificatePath", Err: fmt.Errorf("certificate %d of %d is outside its validity window", i, len(path))}
		}

		if i < len(path)-1 {
			issuer := path[i+1]
			if pub, ok := issuer.PublicKey.(*rsa.PublicKey); ok {
				if pub.N.BitLen() < minRSAModulusBits {
					return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "FindCertificatePath", Err: fmt.Errorf("issuer RSA modulus below %d bits", minRSAModulusBits)}
				}
			}
			if err := cert.CheckSignatureFrom(issuer); err != nil {
				return nil, 0, &osperrors.ProtocolError{Code: "kErrCertsVerifyGeneric", Operation: "FindCertificatePath", Err: err}
			}
		}
	}

	policy := PolicyUnrestricted
	for _, cert := range path {
		if (&x509ParsedCertificate{cert: cert}).HasPolicyOid(audioOnlyPolicyOID) {
			policy = PolicyAudioOnly
			break
		}
	}

	result := make([]ParsedCertificate, len(path))
	for i, cert := range path {
		result[i] = &x509ParsedCertificate{cert: cert}
	}
	return result, policy, nil
}

func isTrustAnchor(cert *x509.Certificate, roots []*x509.Certificate) bool {
	for _, root := range roots {
		if cert.Equal(root) {
			return true
		}
	}
	return false
}

func findIssuer(cert *x509.Certificate, pool []*x509.Certificate) *x509.Certificate {
	for _, candidate := range pool {
		if cert.Equal(candidate) {
			continue
		}
		if cert.CheckSignatureFrom(candidate) == nil {
			return candidate
		}
	}
	return nil
}
