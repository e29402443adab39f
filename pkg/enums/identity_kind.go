package enums

import "fmt"

// IdentityKind distinguishes the two ownership keys for storefront aggregates.
type IdentityKind string

const (
	IdentityKindSession IdentityKind = "session"
	IdentityKindUser    IdentityKind = "user"
)

var validIdentityKinds = []IdentityKind{
	IdentityKindSession,
	IdentityKindUser,
}

// String implements fmt.Stringer.
func (i IdentityKind) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IdentityKind.
func (i IdentityKind) IsValid() bool {
	for _, candidate := range validIdentityKinds {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIdentityKind converts raw input into an IdentityKind.
func ParseIdentityKind(value string) (IdentityKind, error) {
	for _, candidate := range validIdentityKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid identity kind %q", value)
}
