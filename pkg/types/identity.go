package types

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// Identity is the owner key for carts, wishlists and view history. A guest
// identity carries the opaque session token; an authenticated identity
// carries the user id. Exactly one of the two is ever set.
type Identity struct {
	Kind   enums.IdentityKind
	Token  string
	UserID uuid.UUID
}

// SessionIdentity keys an aggregate by the guest session token.
func SessionIdentity(token string) Identity {
	return Identity{Kind: enums.IdentityKindSession, Token: token}
}

// UserIdentity keys an aggregate by the authenticated user id.
func UserIdentity(userID uuid.UUID) Identity {
	return Identity{Kind: enums.IdentityKindUser, UserID: userID}
}

// IsUser reports whether the identity belongs to an authenticated user.
func (i Identity) IsUser() bool {
	return i.Kind == enums.IdentityKindUser
}

// Validate checks that the identity is internally consistent.
func (i Identity) Validate() error {
	switch i.Kind {
	case enums.IdentityKindSession:
		if i.Token == "" {
			return fmt.Errorf("identity: session token required")
		}
	case enums.IdentityKindUser:
		if i.UserID == uuid.Nil {
			return fmt.Errorf("identity: user id required")
		}
	default:
		return fmt.Errorf("identity: unknown kind %q", i.Kind)
	}
	return nil
}

// Key returns the storage key for the identity: the session token for
// guests, the user id string for authenticated users.
func (i Identity) Key() string {
	if i.Kind == enums.IdentityKindUser {
		return i.UserID.String()
	}
	return i.Token
}

// String renders the identity for log fields.
func (i Identity) String() string {
	if i.Kind == enums.IdentityKindUser {
		return "user:" + i.UserID.String()
	}
	return "session:" + i.Token
}
