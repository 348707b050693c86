// Package identity derives the stable commenter hash used for identicons,
// grouping and edit authorization.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Separator joins the profile fields before hashing. It is part of the
// stored hash format and must not change.
const Separator = "b"

// Hash returns the hex SHA-224 of the present profile fields
// (author, email, website, in that order, joined by Separator). Without
// profile fields it hashes ip; without ip it returns "".
// A field is present when it is non-nil and non-empty.
func Hash(author, email, website, ip *string) string {
	var parts []string
	for _, f := range []*string{author, email, website} {
		if present(f) {
			parts = append(parts, *f)
		}
	}
	switch {
	case len(parts) > 0:
		return sum(strings.Join(parts, Separator))
	case present(ip):
		return sum(*ip)
	default:
		return ""
	}
}

// HashIP hashes a bare client address, as handed to clients on init.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	return sum(ip)
}

func present(s *string) bool {
	return s != nil && *s != ""
}

func sum(s string) string {
	d := sha256.Sum224([]byte(s))
	return hex.EncodeToString(d[:])
}
