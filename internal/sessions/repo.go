package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
)

// Repository encapsulates session persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a session repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByToken loads a session by its opaque token.
func (r *Repository) FindByToken(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// Create inserts a new session row.
func (r *Repository) Create(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Touch records activity on the session, sliding the expiry window forward
// and refreshing the caller's client metadata when present.
func (r *Repository) Touch(ctx context.Context, token string, seenAt, expiresAt time.Time, userAgent, ipAddress *string) error {
	updates := map[string]any{
		"last_seen_at": seenAt,
		"expires_at":   expiresAt,
	}
	if userAgent != nil {
		updates["user_agent"] = *userAgent
	}
	if ipAddress != nil {
		updates["ip_address"] = *ipAddress
	}
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token = ?", token).
		Updates(updates).
		Error
}

// BindToUser attaches an anonymous session to a user account.
func (r *Repository) BindToUser(ctx context.Context, token string, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token = ?", token).
		Update("user_id", userID).
		Error
}

// Unbind detaches the session from its user while keeping it usable
// as a guest session.
func (r *Repository) Unbind(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token = ?", token).
		Update("user_id", nil).
		Error
}

// Revoke marks the session unusable. Revoked sessions are never reactivated.
func (r *Repository) Revoke(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token = ?", token).
		Update("status", enums.SessionStatusRevoked).
		Error
}
