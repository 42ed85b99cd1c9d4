package netguard

import (
	"fmt"
	"net/url"
	"strings"
)

// AllowlistPolicy enforces the http.request action's safety rules (spec.md
// §4.3, §8 invariant 7): the destination host must be on an explicit
// allowlist, AND must not resolve to a blocked/private address regardless of
// being on the allowlist (an allowlisted hostname that starts resolving to a
// private IP is still blocked — defense in depth against DNS rebinding).
type AllowlistPolicy struct {
	// AllowedDomains is the configured AUTOMATION_HTTP_ALLOWED_DOMAINS set.
	// A domain entry matches itself and any subdomain.
	AllowedDomains []string
}

// CheckURL validates rawURL against the allowlist and SSRF rules. It returns
// a *SSRFBlockedError (or a plain error for a malformed URL) fails closed.
func (p AllowlistPolicy) CheckURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewSSRFBlockedError("blocked: url scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return NewSSRFBlockedError("blocked: url has no host")
	}
	if !p.domainAllowed(host) {
		return NewSSRFBlockedError(fmt.Sprintf("blocked: host %q is not on the allowed domain list", host))
	}
	if IsBlockedHostname(host) {
		return NewSSRFBlockedError(fmt.Sprintf("blocked hostname: %s", host))
	}
	if IsPrivateIPAddress(host) {
		return NewSSRFBlockedError("blocked: private/internal IP address")
	}
	return ValidatePublicHostname(host)
}

// domainAllowed reports whether host matches one of the configured allowed
// domains exactly or as a subdomain. An empty allowlist allows nothing —
// fail closed per spec.md §8 invariant 7.
func (p AllowlistPolicy) domainAllowed(host string) bool {
	host = normalizeHostname(host)
	for _, d := range p.AllowedDomains {
		d = normalizeHostname(d)
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
