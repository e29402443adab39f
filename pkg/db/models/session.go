package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// Session is the server-side document behind the opaque storefront cookie.
type Session struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Token      string              `gorm:"column:token;not null;uniqueIndex:sessions_token_key"`
	Status     enums.SessionStatus `gorm:"column:status;type:session_status;not null;default:'active'"`
	UserID     *uuid.UUID          `gorm:"column:user_id;type:uuid;index:sessions_user_id_idx"`
	UserAgent  *string             `gorm:"column:user_agent"`
	IPAddress  *string             `gorm:"column:ip_address"`
	ExpiresAt  time.Time           `gorm:"column:expires_at;not null"`
	LastSeenAt time.Time           `gorm:"column:last_seen_at;not null"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
