package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
)

type stubMerger struct {
	calls  int
	tokens []string
	users  []uuid.UUID
	err    error
}

func (s *stubMerger) MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error {
	s.calls++
	s.tokens = append(s.tokens, sessionToken)
	s.users = append(s.users, userID)
	return s.err
}

func newTestService(t *testing.T) (Service, *Repository, *stubMerger, *stubMerger, *stubMerger) {
	t.Helper()

	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	cart := &stubMerger{}
	wishlist := &stubMerger{}
	recent := &stubMerger{}
	svc, err := NewService(ServiceParams{
		Repo:           repo,
		TTL:            30 * 24 * time.Hour,
		CartMerger:     cart,
		WishlistMerger: wishlist,
		RecentMerger:   recent,
	})
	require.NoError(t, err)
	return svc, repo, cart, wishlist, recent
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestEnsureMintsWhenTokenAbsent(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Ensure(ctx, "", Metadata{UserAgent: "storefront-test"})
	require.NoError(t, err)
	assert.NotEmpty(t, dto.Token)
	assert.Equal(t, enums.SessionStatusActive, dto.Status)
	assert.Nil(t, dto.UserID)
	assert.True(t, dto.ExpiresAt.After(time.Now().UTC().Add(29*24*time.Hour)))
}

func TestEnsureReusesActiveSession(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)

	second, err := svc.Ensure(ctx, first.Token, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
}

func TestEnsureSlidesExpiryOnActivity(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)

	// Age the session so the refreshed window is visibly later.
	staleExpiry := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.db.Model(&models.Session{}).
		Where("token = ?", first.Token).
		Update("expires_at", staleExpiry).Error)

	second, err := svc.Ensure(ctx, first.Token, Metadata{UserAgent: "storefront-refresh", IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.True(t, second.ExpiresAt.After(staleExpiry.Add(24*time.Hour)))

	stored, err := repo.FindByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.After(staleExpiry.Add(24*time.Hour)))
	require.NotNil(t, stored.UserAgent)
	assert.Equal(t, "storefront-refresh", *stored.UserAgent)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "203.0.113.9", *stored.IPAddress)
}

func TestEnsureMintsOnUnknownToken(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Ensure(ctx, "no-such-token", Metadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, dto.Token)
	assert.NotEqual(t, "no-such-token", dto.Token)
}

func TestEnsureNeverResurrectsRevokedSession(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, first.Token))

	second, err := svc.Ensure(ctx, first.Token, Metadata{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	old, err := repo.FindByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatusRevoked, old.Status)
}

func TestLookupRejectsUnusableSessions(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "unknown")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())

	active, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)
	require.NoError(t, repo.Revoke(ctx, active.Token))

	_, err = svc.Lookup(ctx, active.Token)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSessionRevoked, typed.Code())
	assert.True(t, errors.Is(err, ErrSessionRevoked))
}

func TestLookupRejectsExpiredSession(t *testing.T) {
	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(ServiceParams{
		Repo:           repo,
		TTL:            time.Hour,
		CartMerger:     &stubMerger{},
		WishlistMerger: &stubMerger{},
		RecentMerger:   &stubMerger{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	seedSession(t, db, "tok-expired", enums.SessionStatusActive, time.Now().UTC().Add(-time.Minute))

	_, err = svc.Lookup(ctx, "tok-expired")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSessionExpired, typed.Code())
	assert.True(t, errors.Is(err, ErrSessionExpired))
}

func TestIdentifyRunsEachMergerOnce(t *testing.T) {
	svc, _, cart, wishlist, recent := newTestService(t)
	ctx := context.Background()

	guest, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)
	userID := uuid.New()

	dto, err := svc.Identify(ctx, guest.Token, userID)
	require.NoError(t, err)
	require.NotNil(t, dto.UserID)
	assert.Equal(t, userID, *dto.UserID)

	for _, merger := range []*stubMerger{cart, wishlist, recent} {
		require.Equal(t, 1, merger.calls)
		assert.Equal(t, guest.Token, merger.tokens[0])
		assert.Equal(t, userID, merger.users[0])
	}

	// Identifying again with the same user is a no-op and must not re-merge.
	_, err = svc.Identify(ctx, guest.Token, userID)
	require.NoError(t, err)
	for _, merger := range []*stubMerger{cart, wishlist, recent} {
		assert.Equal(t, 1, merger.calls)
	}
}

func TestIdentifyRejectsForeignSession(t *testing.T) {
	svc, _, cart, _, _ := newTestService(t)
	ctx := context.Background()

	guest, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)

	_, err = svc.Identify(ctx, guest.Token, uuid.New())
	require.NoError(t, err)

	_, err = svc.Identify(ctx, guest.Token, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Equal(t, 1, cart.calls)
}

func TestIdentifyPropagatesMergeFailure(t *testing.T) {
	db := setupSessionsTestDB(t)
	repo := NewRepository(db)
	cart := &stubMerger{err: errors.New("cart merge failed")}
	svc, err := NewService(ServiceParams{
		Repo:           repo,
		TTL:            time.Hour,
		CartMerger:     cart,
		WishlistMerger: &stubMerger{},
		RecentMerger:   &stubMerger{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	guest, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)

	_, err = svc.Identify(ctx, guest.Token, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestRevokeAndRotate(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)

	fresh, err := svc.RevokeAndRotate(ctx, first.Token, Metadata{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, fresh.Token)
	assert.Equal(t, enums.SessionStatusActive, fresh.Status)

	old, err := repo.FindByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatusRevoked, old.Status)
}

func TestUnbindReturnsSessionToGuestState(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	guest, err := svc.Ensure(ctx, "", Metadata{})
	require.NoError(t, err)
	_, err = svc.Identify(ctx, guest.Token, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.Unbind(ctx, guest.Token))
	found, err := repo.FindByToken(ctx, guest.Token)
	require.NoError(t, err)
	assert.Nil(t, found.UserID)
}
