package emailutil

import "strings"

// Normalize lowercases and trims an address so comparisons and stored records agree
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the lowercased part after the last "@", or "" when the
// address has no usable domain
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// LocalPart returns the part before the last "@" with its case kept, or "" when
// the address has no domain. Used as a username when the provider sends none.
func LocalPart(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return email[:at]
}

// NormalizeDomain turns a configured domain such as " @Example.COM " into "example.com"
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(Normalize(domain), "@")
}
