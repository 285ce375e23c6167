package auth

import (
	"bytes"
	"testing"
)

// TestSpake2_BothSidesDeriveSameSharedKey: two
// endpoints with identical password exchange public values and each
// derives the same 64-byte shared key.
func TestSpake2_BothSidesDeriveSameSharedKey(t *testing.T) {
	const password = "shared-password"

	aPriv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey (a): %v", err)
	}
	bPriv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey (b): %v", err)
	}

	aPub, err := ComputePublicValue(aPriv)
	if err != nil {
		t.Fatalf("ComputePublicValue (a): %v", err)
	}
	bPub, err := ComputePublicValue(bPriv)
	if err != nil {
		t.Fatalf("ComputePublicValue (b): %v", err)
	}

	aShared, err := ComputeSharedKey(aPriv, bPub, password)
	if err != nil {
		t.Fatalf("ComputeSharedKey (a): %v", err)
	}
	bShared, err := ComputeSharedKey(bPriv, aPub, password)
	if err != nil {
		t.Fatalf("ComputeSharedKey (b): %v", err)
	}

	if aShared != bShared {
		t.Fatalf("both sides should derive the same shared key, got %x vs %x", aShared, bShared)
	}
}

func TestSpake2_DifferentPasswordsDeriveDifferentKeys(t *testing.T) {
	aPriv, _ := GeneratePrivateKey()
	bPriv, _ := GeneratePrivateKey()
	_, _ = ComputePublicValue(aPriv)
	bPub, _ := ComputePublicValue(bPriv)

	k1, err := ComputeSharedKey(aPriv, bPub, "password-one")
	if err != nil {
		t.Fatalf("ComputeSharedKey: %v", err)
	}
	k2, err := ComputeSharedKey(aPriv, bPub, "password-two")
	if err != nil {
		t.Fatalf("ComputeSharedKey: %v", err)
	}
	if k1 == k2 {
		t.Fatal("different passwords must derive different shared keys")
	}
}

func TestSpake2_ComputeSharedKeyRejectsMalformedPeerValue(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	if _, err := ComputeSharedKey(priv, []byte("not-a-curve-point"), "p"); err == nil {
		t.Fatal("a malformed peer public value must be rejected")
	}
}

func TestDerivePSK_DeterministicAndSaltSensitive(t *testing.T) {
	psk := []byte("13375CR37P1N")
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}
	info := make([]byte, 64)
	for i := range info {
		info[i] = byte(i)
	}

	out1, err := DerivePSK(psk, salt, info)
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if len(out1) != 32 {
		t.Fatalf("want a 32-byte derived PSK, got %d bytes", len(out1))
	}

	out2, err := DerivePSK(psk, salt, info)
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if string(out1) != string(out2) {
		t.Fatal("DerivePSK must be deterministic for identical inputs")
	}

	altSalt := make([]byte, 32)
	copy(altSalt, salt)
	altSalt[0] ^= 0xFF
	out3, err := DerivePSK(psk, altSalt, info)
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if string(out1) == string(out3) {
		t.Fatal("changing the salt must change the derived PSK")
	}
}

// TestDerivePSK_KnownVector pins the construction byte for byte:
// psk "13375CR37P1N", salt = 0..31, cost 32768, info = 0..63.
func TestDerivePSK_KnownVector(t *testing.T) {
	psk := []byte("13375CR37P1N")
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}
	info := make([]byte, 64)
	for i := range info {
		info[i] = byte(i)
	}

	want := []byte{
		192, 248, 9, 135, 133, 161, 194, 84,
		92, 189, 185, 26, 49, 234, 97, 48,
		28, 52, 209, 172, 214, 43, 90, 75,
		103, 191, 45, 29, 173, 78, 194, 93,
	}

	got, err := DerivePSK(psk, salt, info)
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("DerivePSK vector mismatch:\n got %v\nwant %v", got, want)
	}
}
