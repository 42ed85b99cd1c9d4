package netguard

import "testing"

// Table tests below cover the private-address and blocked-hostname helpers
// CheckURL relies on for its defense-in-depth check (an allowlisted host
// that resolves to a private IP, or that is itself a metadata/loopback
// hostname, is blocked regardless of the allowlist).

func TestIsPrivateIPAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"192.168.1.1", true},
		{"172.16.0.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"2001:4860:4860::8888", false},
		{"::ffff:192.168.1.1", true},
		{"::ffff:8.8.8.8", false},
		{"", false},
		{"invalid", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := IsPrivateIPAddress(tc.input); got != tc.expected {
				t.Errorf("IsPrivateIPAddress(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestIsBlockedHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"localhost", true},
		{"metadata.google.internal", true},
		{"foo.localhost", true},
		{"bar.local", true},
		{"baz.internal", true},
		{"example.com", false},
		{"mylocal.com", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := IsBlockedHostname(tc.input); got != tc.expected {
				t.Errorf("IsBlockedHostname(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestAllowlistPolicyBlocksNonAllowedHost(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"example.com"}}
	if err := p.CheckURL("https://evil.example.org/webhook"); err == nil {
		t.Fatal("expected host not on allowlist to be blocked")
	}
}

func TestAllowlistPolicyAllowsSubdomain(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"example.com"}}
	if err := p.CheckURL("https://hooks.example.com/x"); err != nil {
		t.Fatalf("expected subdomain of allowed domain to pass, got %v", err)
	}
}

func TestAllowlistPolicyBlocksPrivateIPEvenIfAllowlisted(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"127.0.0.1"}}
	if err := p.CheckURL("http://127.0.0.1/hook"); err == nil {
		t.Fatal("expected loopback address to be blocked regardless of allowlist")
	}
}

func TestAllowlistPolicyBlocksDotInternalSuffix(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"svc.internal"}}
	if err := p.CheckURL("https://svc.internal/hook"); err == nil {
		t.Fatal("expected .internal suffix to be blocked")
	}
}

func TestAllowlistPolicyRejectsNonHTTPScheme(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"example.com"}}
	if err := p.CheckURL("file:///etc/passwd"); err == nil {
		t.Fatal("expected non-http(s) scheme to be rejected")
	}
}

func TestAllowlistPolicyEmptyAllowlistFailsClosed(t *testing.T) {
	p := AllowlistPolicy{}
	if err := p.CheckURL("https://example.com/hook"); err == nil {
		t.Fatal("expected empty allowlist to block everything")
	}
}

func TestAllowlistPolicyRejectsMalformedURL(t *testing.T) {
	p := AllowlistPolicy{AllowedDomains: []string{"example.com"}}
	if err := p.CheckURL("://not-a-url"); err == nil {
		t.Fatal("expected malformed url to be rejected")
	}
}
