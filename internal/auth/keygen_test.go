package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if !strings.HasPrefix(key.Plaintext, "gk_live_") {
		t.Errorf("plaintext = %q, want gk_live_ prefix", key.Plaintext)
	}
	if len(key.Prefix) != KeyPrefixLen {
		t.Errorf("prefix length = %d, want %d", len(key.Prefix), KeyPrefixLen)
	}
	if !ValidateKeyFormat(key.Plaintext) {
		t.Errorf("generated key %q does not match its own format", key.Plaintext)
	}

	// Hash must verify against the plaintext
	match, err := VerifyPassword(key.Plaintext, key.Hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !match {
		t.Error("generated hash does not verify against plaintext")
	}
}

func TestGenerateAPIKey_InvalidEnvDefaultsToLive(t *testing.T) {
	key, err := GenerateAPIKey("staging")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if !strings.HasPrefix(key.Plaintext, "gk_live_") {
		t.Errorf("plaintext = %q, want gk_live_ prefix for unknown env", key.Plaintext)
	}
}

func TestParseAPIKey(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name: "valid live key",
			key:  "gk_live_a1b2c3_0123456789abcdef0123456789abcdef",
		},
		{
			name: "valid test key",
			key:  "gk_test_ffffff_ffffffffffffffffffffffffffffffff",
		},
		{
			name:    "wrong product prefix",
			key:     "pk_live_a1b2c3_0123456789abcdef0123456789abcdef",
			wantErr: true,
		},
		{
			name:    "short secret",
			key:     "gk_live_a1b2c3_0123456789abcdef",
			wantErr: true,
		},
		{
			name:    "uppercase hex rejected",
			key:     "gk_live_A1B2C3_0123456789ABCDEF0123456789ABCDEF",
			wantErr: true,
		},
		{
			name:    "empty",
			key:     "",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseAPIKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseAPIKey(%q) expected error", tc.key)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey(%q) error = %v", tc.key, err)
			}
			if len(parsed.Prefix) != KeyPrefixLen {
				t.Errorf("prefix length = %d, want %d", len(parsed.Prefix), KeyPrefixLen)
			}
		})
	}
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatalf("GenerateOpaqueToken() error = %v", err)
	}
	b, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatalf("GenerateOpaqueToken() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two generated tokens should differ")
	}
}
