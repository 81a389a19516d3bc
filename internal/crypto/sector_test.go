package crypto

import "testing"

const testCharset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// S5 — sector unlinkability.
func TestDeriveSectorToken_DiffersAcrossSectors(t *testing.T) {
	secretHealth := []byte("health-sector-secret-0123456789ab")
	secretTax := []byte("tax-sector-secret-0123456789abcd")

	inputHealth := SectorDerivationInput(1, "UIN0000001", "health", []byte("salt"))
	inputTax := SectorDerivationInput(1, "UIN0000001", "tax", []byte("salt"))

	tHealth, err := DeriveSectorToken(secretHealth, inputHealth, HMACSHA256, testCharset, 16)
	if err != nil {
		t.Fatalf("DeriveSectorToken(health): %v", err)
	}
	tTax, err := DeriveSectorToken(secretTax, inputTax, HMACSHA256, testCharset, 16)
	if err != nil {
		t.Fatalf("DeriveSectorToken(tax): %v", err)
	}
	if tHealth == tTax {
		t.Errorf("tokens for distinct sectors collided: %q", tHealth)
	}
}

func TestDeriveSectorToken_LongerThanOneHMACBlock(t *testing.T) {
	secret := []byte("a-sector-secret-that-is-long-enough")
	input := SectorDerivationInput(1, "UIN0000001", "health", nil)
	token, err := DeriveSectorToken(secret, input, HMACSHA256, testCharset, 64)
	if err != nil {
		t.Fatalf("DeriveSectorToken: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("len(token) = %d, want 64", len(token))
	}
}

func TestDeriveSectorToken_RejectsEmptySecret(t *testing.T) {
	if _, err := DeriveSectorToken(nil, "input", HMACSHA256, testCharset, 16); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifySectorToken(t *testing.T) {
	secret := []byte("health-sector-secret-0123456789ab")
	input := SectorDerivationInput(1, "UIN0000001", "health", []byte("salt"))
	token, err := DeriveSectorToken(secret, input, HMACSHA256, testCharset, 16)
	if err != nil {
		t.Fatalf("DeriveSectorToken: %v", err)
	}

	if !VerifySectorToken(secret, input, HMACSHA256, testCharset, token) {
		t.Errorf("VerifySectorToken() = false, want true for matching token")
	}

	wrongInput := SectorDerivationInput(1, "UIN0000001", "tax", []byte("salt"))
	if VerifySectorToken(secret, wrongInput, HMACSHA256, testCharset, token) {
		t.Errorf("VerifySectorToken() = true for mismatched sector, want false")
	}
}

func TestVerifySectorToken_NeverPanics(t *testing.T) {
	if VerifySectorToken(nil, "input", HMACSHA256, testCharset, "anything") {
		t.Errorf("VerifySectorToken() = true with empty secret, want false")
	}
}

// S6-equivalent determinism check for the weaker deterministic-salt variant.
func TestDeterministicSalt_Repeatable(t *testing.T) {
	a := DeterministicSalt("UIN0000001", "health", 16)
	b := DeterministicSalt("UIN0000001", "health", 16)
	if string(a) != string(b) {
		t.Errorf("DeterministicSalt not repeatable")
	}
	c := DeterministicSalt("UIN0000001", "tax", 16)
	if string(a) == string(c) {
		t.Errorf("DeterministicSalt collided across sectors")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Errorf("ConstantTimeEqual(abc, abc) = false, want true")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Errorf("ConstantTimeEqual(abc, abd) = true, want false")
	}
	if ConstantTimeEqual("abc", "ab") {
		t.Errorf("ConstantTimeEqual(abc, ab) = true, want false")
	}
}
