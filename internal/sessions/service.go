package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/outbox"
)

const tokenBytes = 32

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// IdentityMergedEvent is the outbox payload emitted once a guest session's
// aggregates have been folded into a user account.
type IdentityMergedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// ServiceParams groups dependencies for the session service.
type ServiceParams struct {
	Repo           *Repository
	TTL            time.Duration
	CartMerger     GuestMerger
	WishlistMerger GuestMerger
	RecentMerger   GuestMerger
	// Tx and Outbox are optional; when both are set, Identify records an
	// identity_merged event after a successful merge.
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
}

// Service exposes session lifecycle rules.
type Service interface {
	Ensure(ctx context.Context, token string, meta Metadata) (SessionDTO, error)
	Lookup(ctx context.Context, token string) (SessionDTO, error)
	Identify(ctx context.Context, token string, userID uuid.UUID) (SessionDTO, error)
	Unbind(ctx context.Context, token string) error
	Revoke(ctx context.Context, token string) error
	RevokeAndRotate(ctx context.Context, token string, meta Metadata) (SessionDTO, error)
}

type service struct {
	repo    *Repository
	ttl     time.Duration
	mergers []GuestMerger
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
}

// NewService builds a session service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session repo is required")
	}
	if params.TTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session ttl must be positive")
	}
	if params.CartMerger == nil || params.WishlistMerger == nil || params.RecentMerger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "all guest mergers are required")
	}
	return &service{
		repo:    params.Repo,
		ttl:     params.TTL,
		mergers: []GuestMerger{params.CartMerger, params.WishlistMerger, params.RecentMerger},
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
	}, nil
}

// Ensure returns a usable session for the caller, minting a fresh one when
// the presented token is missing, unknown, expired, or revoked. A revoked
// token is never resurrected.
func (s *service) Ensure(ctx context.Context, token string, meta Metadata) (SessionDTO, error) {
	if token != "" {
		session, err := s.repo.FindByToken(ctx, token)
		switch {
		case err == nil:
			if usable(session) {
				now := time.Now().UTC()
				expiresAt := now.Add(s.ttl)
				var userAgent, ipAddress *string
				if meta.UserAgent != "" {
					userAgent = &meta.UserAgent
				}
				if meta.IPAddress != "" {
					ipAddress = &meta.IPAddress
				}
				if err := s.repo.Touch(ctx, token, now, expiresAt, userAgent, ipAddress); err != nil {
					return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch session")
				}
				session.LastSeenAt = now
				session.ExpiresAt = expiresAt
				return toDTO(session), nil
			}
		case errors.Is(err, ErrSessionNotFound):
			// fall through to mint
		default:
			return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
		}
	}
	return s.mint(ctx, meta)
}

// Lookup resolves a token into a session, rejecting unusable sessions with
// coded errors so transports can map them onto 401 responses.
func (s *service) Lookup(ctx context.Context, token string) (SessionDTO, error) {
	session, err := s.lookupModel(ctx, token)
	if err != nil {
		return SessionDTO{}, err
	}
	return toDTO(session), nil
}

func (s *service) lookupModel(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session token is required")
	}
	session, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return models.Session{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "session not found")
		}
		return models.Session{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if session.Status == enums.SessionStatusRevoked {
		return models.Session{}, pkgerrors.Wrap(pkgerrors.CodeSessionRevoked, ErrSessionRevoked, "session revoked")
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return models.Session{}, pkgerrors.Wrap(pkgerrors.CodeSessionExpired, ErrSessionExpired, "session expired")
	}
	return session, nil
}

// Identify attaches the session to a user and folds the guest cart,
// wishlist, and recently-viewed history into the account. Merging runs at
// most once per session: a session already bound to the same user is a
// no-op, and a session bound to a different user is rejected.
func (s *service) Identify(ctx context.Context, token string, userID uuid.UUID) (SessionDTO, error) {
	if userID == uuid.Nil {
		return SessionDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	session, err := s.lookupModel(ctx, token)
	if err != nil {
		return SessionDTO{}, err
	}
	if session.UserID != nil {
		if *session.UserID == userID {
			return toDTO(session), nil
		}
		return SessionDTO{}, pkgerrors.New(pkgerrors.CodeConflict, "session already belongs to another user")
	}

	if err := s.repo.BindToUser(ctx, token, userID); err != nil {
		return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind session to user")
	}
	for _, merger := range s.mergers {
		if err := merger.MergeGuestIntoUser(ctx, token, userID); err != nil {
			return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest data into user")
		}
	}
	s.emitIdentityMerged(ctx, session.ID, userID)
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "guest session identified")
	}

	session.UserID = &userID
	return toDTO(session), nil
}

// emitIdentityMerged queues the identity_merged event. A failure here is
// logged rather than unwinding merges that already committed.
func (s *service) emitIdentityMerged(ctx context.Context, sessionID, userID uuid.UUID) {
	if s.tx == nil || s.outbox == nil {
		return
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIdentityMerged,
			AggregateType: enums.AggregateSession,
			AggregateID:   sessionID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: enums.UserRoleCustomer.String()},
			Version:       1,
			Data:          IdentityMergedEvent{SessionID: sessionID, UserID: userID},
		})
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "emit identity merged event", err)
	}
}

// Unbind detaches the session from its user, returning it to guest state.
func (s *service) Unbind(ctx context.Context, token string) error {
	if _, err := s.Lookup(ctx, token); err != nil {
		return err
	}
	if err := s.repo.Unbind(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unbind session")
	}
	return nil
}

// Revoke permanently disables the session.
func (s *service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session token is required")
	}
	if err := s.repo.Revoke(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// RevokeAndRotate disables the presented session and hands back a fresh
// anonymous one, used on logout so the browser never keeps a dead token.
func (s *service) RevokeAndRotate(ctx context.Context, token string, meta Metadata) (SessionDTO, error) {
	if token != "" {
		if err := s.Revoke(ctx, token); err != nil {
			return SessionDTO{}, err
		}
	}
	return s.mint(ctx, meta)
}

func (s *service) mint(ctx context.Context, meta Metadata) (SessionDTO, error) {
	token, err := generateToken()
	if err != nil {
		return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token")
	}
	now := time.Now().UTC()
	session := models.Session{
		Token:      token,
		Status:     enums.SessionStatusActive,
		ExpiresAt:  now.Add(s.ttl),
		LastSeenAt: now,
	}
	if meta.UserAgent != "" {
		session.UserAgent = &meta.UserAgent
	}
	if meta.IPAddress != "" {
		session.IPAddress = &meta.IPAddress
	}
	if err := s.repo.Create(ctx, &session); err != nil {
		return SessionDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	return toDTO(session), nil
}

func usable(session models.Session) bool {
	return session.Status == enums.SessionStatusActive &&
		session.ExpiresAt.After(time.Now().UTC())
}

func toDTO(session models.Session) SessionDTO {
	return SessionDTO{
		Token:      session.Token,
		Status:     session.Status,
		UserID:     session.UserID,
		ExpiresAt:  session.ExpiresAt,
		LastSeenAt: session.LastSeenAt,
		CreatedAt:  session.CreatedAt,
	}
}

func generateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
