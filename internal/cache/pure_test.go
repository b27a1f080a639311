package cache

import "testing"

func TestHashIP(t *testing.T) {
	testCases := []struct {
		name string
		ip   string
	}{
		{name: "ipv4", ip: "203.0.113.7"},
		{name: "ipv6", ip: "2001:db8::1"},
		{name: "empty", ip: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := HashIP(tc.ip)
			if len(got) != 16 {
				t.Errorf("HashIP(%q) length = %d, want 16", tc.ip, len(got))
			}
			if got != HashIP(tc.ip) {
				t.Errorf("HashIP(%q) is not deterministic", tc.ip)
			}
		})
	}
}

func TestHashIP_DistinctInputs(t *testing.T) {
	if HashIP("203.0.113.7") == HashIP("203.0.113.8") {
		t.Error("different IPs should produce different hashes")
	}
}
