package agent

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestIdentity(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test Receiver"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "agent.der")
	keyPath = filepath.Join(dir, "agent.key")
	if err := os.WriteFile(certPath, der, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func TestLoadIdentity_ParsesCertAndKey(t *testing.T) {
	certPath, keyPath := writeTestIdentity(t)

	id, err := LoadIdentity(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if id.PrivateKey == nil {
		t.Fatal("want a parsed RSA private key")
	}
	if id.Fingerprint == ([32]byte{}) {
		t.Fatal("want a non-zero fingerprint")
	}
}

func TestLoadIdentity_RejectsMissingFiles(t *testing.T) {
	if _, err := LoadIdentity("/nonexistent/cert.der", "/nonexistent/key.der"); err == nil {
		t.Fatal("want an error when the certificate file is missing")
	}
}

func TestFingerprintHex_IsColonSeparatedUppercaseHexPairs(t *testing.T) {
	certPath, keyPath := writeTestIdentity(t)
	id, err := LoadIdentity(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	hexForm := id.FingerprintHex()
	// 32 bytes -> 32 two-char groups joined by 31 colons = 95 characters.
	if len(hexForm) != 95 {
		t.Fatalf("want a 95-character colon-separated fingerprint, got %d: %q", len(hexForm), hexForm)
	}
}

func TestBuildService_SetsAllRequiredTXTKeys(t *testing.T) {
	certPath, keyPath := writeTestIdentity(t)
	id, err := LoadIdentity(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}

	svc := BuildService(id, Advertisement{
		InstanceID:   "receiver-1",
		ProtocolVer:  1,
		Capabilities: 3,
		Status:       StatusIdle,
		FriendlyName: "Living Room TV",
		ModelName:    "Model X",
		Port:         9001,
		Hostname:     "tv.local",
		Addresses:    []netip.Addr{netip.MustParseAddr("192.168.1.20")},
	})

	for _, key := range []string{"id", "ve", "ca", "st", "fn", "md", "pk"} {
		if _, ok := svc.Txt[key]; !ok {
			t.Fatalf("want TXT key %q present, got %+v", key, svc.Txt)
		}
	}
	if svc.ServiceType != ServiceType+".local" {
		t.Fatalf("want service type %q, got %q", ServiceType+".local", svc.ServiceType)
	}
	if svc.Txt["st"] != "0" {
		t.Fatalf("want st=0 for idle, got %q", svc.Txt["st"])
	}
	if err := svc.Validate(); err != nil {
		t.Fatalf("built service must validate: %v", err)
	}
}
