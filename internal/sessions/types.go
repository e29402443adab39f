package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// Sentinel errors returned by the repository layer. The service wraps
// them with coded errors before they reach a transport.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")
)

// Metadata carries request attributes recorded on the session document.
type Metadata struct {
	UserAgent string
	IPAddress string
}

// SessionDTO is the API-facing projection of a session.
type SessionDTO struct {
	Token      string              `json:"token"`
	Status     enums.SessionStatus `json:"status"`
	UserID     *uuid.UUID          `json:"user_id,omitempty"`
	ExpiresAt  time.Time           `json:"expires_at"`
	LastSeenAt time.Time           `json:"last_seen_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

// GuestMerger folds a guest session's data into a user account. Each
// aggregate that keys rows by owner implements this so Identify can run
// the merges without depending on the aggregate packages directly.
type GuestMerger interface {
	MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error
}
