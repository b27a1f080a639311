package model

import (
	"testing"
	"time"
)

func TestAPIKey_HasScope(t *testing.T) {
	testCases := []struct {
		name      string
		keyScopes []string
		checkFor  string
		want      bool
	}{
		{
			name:      "has exact scope",
			keyScopes: []string{ScopeRead, ScopeQuery},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "does not have scope",
			keyScopes: []string{ScopeRead},
			checkFor:  ScopeQuery,
			want:      false,
		},
		{
			name:      "admin implies read",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "admin implies query",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeQuery,
			want:      true,
		},
		{
			name:      "empty scopes",
			keyScopes: []string{},
			checkFor:  ScopeRead,
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{Scopes: tc.keyScopes}
			got := key.HasScope(tc.checkFor)
			if got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestAPIKey_IsActive(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	testCases := []struct {
		name      string
		expiresAt *time.Time
		revokedAt *time.Time
		want      bool
	}{
		{name: "no expiry, not revoked", want: true},
		{name: "future expiry", expiresAt: &future, want: true},
		{name: "past expiry", expiresAt: &past, want: false},
		{name: "revoked", revokedAt: &past, want: false},
		{name: "revoked and expired", expiresAt: &past, revokedAt: &past, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{ExpiresAt: tc.expiresAt, RevokedAt: tc.revokedAt}
			if got := key.IsActive(); got != tc.want {
				t.Errorf("IsActive() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAPIKey_GetRateLimitConfig(t *testing.T) {
	testCases := []struct {
		name    string
		tier    string
		wantRPM int
	}{
		{name: "free tier", tier: TierFree, wantRPM: 30},
		{name: "pro tier", tier: TierPro, wantRPM: 300},
		{name: "unlimited tier", tier: TierUnlimited, wantRPM: 0},
		{name: "unknown tier defaults to free", tier: "bogus", wantRPM: 30},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{RateLimitTier: tc.tier}
			got := key.GetRateLimitConfig()
			if got.RequestsPerMinute != tc.wantRPM {
				t.Errorf("GetRateLimitConfig().RequestsPerMinute = %d, want %d", got.RequestsPerMinute, tc.wantRPM)
			}
		})
	}
}
