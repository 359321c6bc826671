package service

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxPathLength bounds verification paths. RFC 8555 tokens are 43
	// characters; the slack leaves room for other orchestrators.
	DefaultMaxPathLength = 128

	maxDomainLength           = 253
	maxKeyAuthorizationLength = 512
)

// ValidPath reports whether path is a non-empty base64url string of at most
// maxLen characters. Anything else (dots, slashes, percent signs, whitespace,
// control bytes) is rejected.
func ValidPath(path string, maxLen int) bool {
	if maxLen <= 0 {
		maxLen = DefaultMaxPathLength
	}
	if path == "" || len(path) > maxLen {
		return false
	}
	for i := 0; i < len(path); i++ {
		if !isBase64URL(path[i]) {
			return false
		}
	}
	return true
}

// NormalizeDomain lowercases domain, strips surrounding whitespace and a
// trailing root dot, and checks the result is a plausible hostname.
// A leading "*." wildcard label is accepted.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", fmt.Errorf("%w: domain must not be empty", ErrInvalidDomain)
	}
	if len(d) > maxDomainLength {
		return "", fmt.Errorf("%w: domain exceeds %d characters", ErrInvalidDomain, maxDomainLength)
	}
	for i, label := range strings.Split(d, ".") {
		if label == "" {
			return "", fmt.Errorf("%w: empty label in %q", ErrInvalidDomain, d)
		}
		if label == "*" && i == 0 {
			continue
		}
		for j := 0; j < len(label); j++ {
			c := label[j]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
				return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidDomain, c)
			}
		}
	}
	return d, nil
}

// validKeyAuthorization accepts printable ASCII without spaces. The value is
// written verbatim as a response body, so nothing that could split a header
// or smuggle framing gets through.
func validKeyAuthorization(ka string) bool {
	if ka == "" || len(ka) > maxKeyAuthorizationLength {
		return false
	}
	for i := 0; i < len(ka); i++ {
		if ka[i] <= ' ' || ka[i] > '~' {
			return false
		}
	}
	return true
}

func isBase64URL(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_'
}
