package peerauth

import (
	"crypto/sha1" //nolint:gosec // RELP's fingerprint auth mode is specified as SHA-1, matching librelp/rsyslog's wire format.
	"crypto/x509"
	"fmt"
	"strings"
)

// Fingerprint formats a certificate's SHA-1 digest as "SHA1:XX:XX:...",
// spec.md §4.6's exact permitted-peer representation.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //nolint:gosec
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return "SHA1:" + strings.Join(parts, ":")
}

// MatchFingerprint reports whether cert's fingerprint exactly equals one of
// permitted.
func MatchFingerprint(cert *x509.Certificate, permitted []string) bool {
	fp := Fingerprint(cert)
	for _, p := range permitted {
		if fp == p {
			return true
		}
	}
	return false
}

// CandidateNames extracts the peer identity candidates to check against
// wildcard patterns: every SubjectAltName DNSName entry, and (as a
// fallback, only when there are no SAN DNS names at all) the Subject DN's
// CommonName — spec.md §4.6's "name" auth mode.
func CandidateNames(cert *x509.Certificate) []string {
	if len(cert.DNSNames) > 0 {
		out := make([]string, len(cert.DNSNames))
		copy(out, cert.DNSNames)
		return out
	}
	if cert.Subject.CommonName != "" {
		return []string{cert.Subject.CommonName}
	}
	return nil
}

// MatchName reports whether at least one of cert's candidate names matches
// at least one compiled permitted-peer pattern.
func MatchName(cert *x509.Certificate, permitted []*Pattern) bool {
	for _, name := range CandidateNames(cert) {
		if MatchAny(permitted, name) {
			return true
		}
	}
	return false
}
