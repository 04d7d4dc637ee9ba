package enums

import "fmt"

// TokenStoreKind selects where session credentials are persisted.
type TokenStoreKind string

const (
	TokenStoreMemory TokenStoreKind = "memory"
	TokenStoreRedis  TokenStoreKind = "redis"
	TokenStoreSQLite TokenStoreKind = "sqlite"
)

var validTokenStoreKinds = []TokenStoreKind{
	TokenStoreMemory,
	TokenStoreRedis,
	TokenStoreSQLite,
}

// String implements fmt.Stringer.
func (t TokenStoreKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TokenStoreKind.
func (t TokenStoreKind) IsValid() bool {
	for _, candidate := range validTokenStoreKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTokenStoreKind converts raw input into a TokenStoreKind.
func ParseTokenStoreKind(value string) (TokenStoreKind, error) {
	for _, candidate := range validTokenStoreKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid token store %q", value)
}
