// Package device derives advisory device fingerprints from request metadata.
//
// A fingerprint is hex(SHA-256(user_agent + "|" + anonymized_ip)). IPv4
// addresses are masked to /24 and IPv6 to /64 so that same-subnet churn keeps
// the fingerprint stable. Fingerprints never gate access.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

var (
	v4Mask = net.CIDRMask(24, 32)
	v6Mask = net.CIDRMask(64, 128)
)

// Info is the audit metadata stored alongside a refresh token.
type Info struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// NewInfo builds audit metadata from raw request values.
func NewInfo(userAgent string, ip net.IP) Info {
	info := Info{UserAgent: strings.TrimSpace(userAgent)}
	if ip != nil {
		info.IP = ip.String()
	}
	return info
}

// Fingerprint returns the device hash for the given user agent and IP.
func Fingerprint(userAgent string, ip net.IP) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent) + "|" + Anonymize(ip)))
	return hex.EncodeToString(sum[:])
}

// Anonymize masks ip to its /24 (IPv4) or /64 (IPv6) network.
// IPv4-mapped IPv6 addresses are treated as IPv4. A nil IP yields "".
func Anonymize(ip net.IP) string {
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(v4Mask).String()
	}
	if v6 := ip.To16(); v6 != nil {
		return v6.Mask(v6Mask).String()
	}
	return ""
}

// Fingerprinter computes device hashes. The package-level Fingerprint is the
// default implementation.
type Fingerprinter interface {
	Fingerprint(userAgent string, ip net.IP) string
}

// SubnetFingerprinter implements Fingerprinter with Fingerprint.
type SubnetFingerprinter struct{}

// Fingerprint implements Fingerprinter.
func (SubnetFingerprinter) Fingerprint(userAgent string, ip net.IP) string {
	return Fingerprint(userAgent, ip)
}
