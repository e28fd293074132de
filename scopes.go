package docauth

import (
	"strings"
)

// Scopes a scoped credential can grant over its owner's partition
const (
	ScopeRead  = "read"  // get and query documents
	ScopeWrite = "write" // create, update and delete documents
)

// DefaultScopes returns the scopes granted to minted credentials when the
// bridge is not configured otherwise
func DefaultScopes() []string {
	return []string{ScopeRead, ScopeWrite}
}

// ParseScopes parses a space-separated scope string into a slice
func ParseScopes(scopeString string) []string {
	if scopeString == "" {
		return nil
	}
	scopes := strings.Fields(scopeString)
	// Remove duplicates
	seen := make(map[string]bool)
	result := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

// JoinScopes joins a slice of scopes into a space-separated string
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsScope checks if a scope is present in the list
func ContainsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
