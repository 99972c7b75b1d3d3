package core

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hosts rejected regardless of configuration. Cloud metadata services are
// the classic SSRF pivot, so they stay blocked even with an empty
// blocklist.
var defaultBlockedCallbackHosts = []string{
	"metadata.google.internal",
	"metadata.goog",
}

// validateCallbackURL statically screens a callback target. Hostnames are
// never resolved here; only literal addresses and names are judged.
func (s *Service) validateCallbackURL(raw string) error {
	maxLength := s.config.Callbacks.MaxURLLength
	if maxLength <= 0 {
		maxLength = 2048
	}
	if len(raw) > maxLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrCallbackURLRejected, maxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallbackURLRejected, err)
	}

	if !s.callbackSchemeAllowed(parsed.Scheme) {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrCallbackURLRejected, parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: userinfo is not allowed", ErrCallbackURLRejected)
	}

	hostname := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if hostname == "" {
		return fmt.Errorf("%w: host is required", ErrCallbackURLRejected)
	}
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return fmt.Errorf("%w: host %q is not allowed", ErrCallbackURLRejected, hostname)
	}
	for _, blocked := range defaultBlockedCallbackHosts {
		if hostname == blocked {
			return fmt.Errorf("%w: host %q is not allowed", ErrCallbackURLRejected, hostname)
		}
	}
	for _, blocked := range s.config.Callbacks.BlockedHosts {
		if hostname == strings.ToLower(strings.TrimSpace(blocked)) {
			return fmt.Errorf("%w: host %q is blocklisted", ErrCallbackURLRejected, hostname)
		}
	}

	if ip := net.ParseIP(hostname); ip != nil {
		switch {
		case ip.IsLoopback():
			return fmt.Errorf("%w: loopback address %q", ErrCallbackURLRejected, hostname)
		case ip.IsPrivate():
			return fmt.Errorf("%w: private address %q", ErrCallbackURLRejected, hostname)
		case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
			return fmt.Errorf("%w: link-local address %q", ErrCallbackURLRejected, hostname)
		case ip.IsUnspecified():
			return fmt.Errorf("%w: unspecified address %q", ErrCallbackURLRejected, hostname)
		case ip.IsMulticast():
			return fmt.Errorf("%w: multicast address %q", ErrCallbackURLRejected, hostname)
		}
	}
	return nil
}

func (s *Service) callbackSchemeAllowed(scheme string) bool {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return false
	}
	allowed := s.config.Callbacks.AllowedSchemes
	if len(allowed) == 0 {
		return scheme == "https"
	}
	for _, candidate := range allowed {
		if scheme == strings.ToLower(strings.TrimSpace(candidate)) {
			return true
		}
	}
	return false
}
