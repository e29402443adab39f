package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
)

func setupSessionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:sessions_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  token TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'active',
  user_id TEXT,
  user_agent TEXT,
  ip_address TEXT,
  expires_at DATETIME NOT NULL,
  last_seen_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedSession(t *testing.T, db *gorm.DB, token string, status enums.SessionStatus, expiresAt time.Time) models.Session {
	t.Helper()

	session := models.Session{
		ID:         uuid.New(),
		Token:      token,
		Status:     status,
		ExpiresAt:  expiresAt,
		LastSeenAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

func TestRepositoryFindByToken(t *testing.T) {
	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := seedSession(t, db, "tok-alpha", enums.SessionStatusActive, time.Now().UTC().Add(time.Hour))

	found, err := repo.FindByToken(ctx, "tok-alpha")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
	assert.Equal(t, enums.SessionStatusActive, found.Status)
	assert.Nil(t, found.UserID)

	_, err = repo.FindByToken(ctx, "tok-missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestRepositoryBindAndUnbind(t *testing.T) {
	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedSession(t, db, "tok-bind", enums.SessionStatusActive, time.Now().UTC().Add(time.Hour))
	userID := uuid.New()

	require.NoError(t, repo.BindToUser(ctx, "tok-bind", userID))
	found, err := repo.FindByToken(ctx, "tok-bind")
	require.NoError(t, err)
	require.NotNil(t, found.UserID)
	assert.Equal(t, userID, *found.UserID)

	require.NoError(t, repo.Unbind(ctx, "tok-bind"))
	found, err = repo.FindByToken(ctx, "tok-bind")
	require.NoError(t, err)
	assert.Nil(t, found.UserID)
}

func TestRepositoryRevokeAndTouch(t *testing.T) {
	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := seedSession(t, db, "tok-revoke", enums.SessionStatusActive, time.Now().UTC().Add(time.Hour))

	seenAt := time.Now().UTC().Add(time.Minute)
	expiresAt := time.Now().UTC().Add(48 * time.Hour)
	agent := "cli/2.0"
	require.NoError(t, repo.Touch(ctx, "tok-revoke", seenAt, expiresAt, &agent, nil))
	found, err := repo.FindByToken(ctx, "tok-revoke")
	require.NoError(t, err)
	assert.True(t, found.LastSeenAt.After(seeded.LastSeenAt))
	assert.True(t, found.ExpiresAt.After(seeded.ExpiresAt))
	require.NotNil(t, found.UserAgent)
	assert.Equal(t, "cli/2.0", *found.UserAgent)

	require.NoError(t, repo.Revoke(ctx, "tok-revoke"))
	found, err = repo.FindByToken(ctx, "tok-revoke")
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatusRevoked, found.Status)
}
