package validation

import (
	"regexp"
	"strings"
)

// Per-chain destination address formats. Internal transfers use @handle
// recipients and skip the on-chain check.
var chainAddressPatterns = map[string]*regexp.Regexp{
	"ethereum": regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`),
	"bitcoin":  regexp.MustCompile(`^(bc1[a-z0-9]{25,59}|[13][A-HJ-NP-Za-km-z1-9]{25,34})$`),
	"solana":   regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`),
	"sui":      regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`),
}

// isInternalRecipient reports whether the destination is a platform user
// handle rather than an on-chain address.
func isInternalRecipient(recipient string) bool {
	return strings.HasPrefix(recipient, "@")
}

// validAddress reports whether the recipient matches any supported chain's
// address format.
func validAddress(recipient string) bool {
	for _, p := range chainAddressPatterns {
		if p.MatchString(recipient) {
			return true
		}
	}
	return false
}
