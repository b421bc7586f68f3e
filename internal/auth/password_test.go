package auth

import "testing"

func TestValidatePasswordAcceptsCompliant(t *testing.T) {
	if v := ValidatePassword("Aa1!xxxx"); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
}

func TestValidatePasswordRejectsEachMissingClass(t *testing.T) {
	cases := map[string]string{
		"too short":       "Aa1!x",
		"no lowercase":    "AA1!XXXX",
		"no uppercase":    "aa1!xxxx",
		"no digit":        "Aaa!xxxx",
		"no symbol":       "Aa1xxxxx",
	}
	for name, pw := range cases {
		if v := ValidatePassword(pw); len(v) == 0 {
			t.Errorf("%s: expected violations for %q, got none", name, pw)
		}
	}
}

func TestHashAndComparePasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Aa1!xxxx")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !ComparePassword(hash, "Aa1!xxxx") {
		t.Fatal("expected password to match its own hash")
	}
	if ComparePassword(hash, "wrong") {
		t.Fatal("expected mismatched password to fail")
	}
}
