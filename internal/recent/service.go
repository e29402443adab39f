package recent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/internal/products"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the recently-viewed service.
type ServiceParams struct {
	RecentRepo  *Repository
	ProductRepo *products.Repository
	Tx          txRunner
	// MaxItems caps how many entries GetRecent ever returns.
	MaxItems int
}

// Service exposes business rules for the view-history aggregate.
type Service interface {
	TrackView(ctx context.Context, owner types.Identity, productID uuid.UUID) error
	GetRecent(ctx context.Context, owner types.Identity, limit int) ([]RecentViewDTO, error)
	MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error
}

type service struct {
	recentRepo  *Repository
	productRepo *products.Repository
	tx          txRunner
	maxItems    int
}

// NewService builds a recently-viewed service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.RecentRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recent repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.MaxItems <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max items must be positive")
	}
	return &service{
		recentRepo:  params.RecentRepo,
		productRepo: params.ProductRepo,
		tx:          params.Tx,
		maxItems:    params.MaxItems,
	}, nil
}

// TrackView records that the owner looked at the product just now. Repeat
// views bump the timestamp instead of adding rows.
func (s *service) TrackView(ctx context.Context, owner types.Identity, productID uuid.UUID) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid view owner")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if err := s.recentRepo.Upsert(ctx, owner, productID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track view")
	}
	if err := s.recentRepo.TrimToNewest(ctx, owner, s.maxItems); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "trim view history")
	}
	return nil
}

// GetRecent returns the owner's view history most recent first. Views whose
// products no longer resolve are skipped silently.
func (s *service) GetRecent(ctx context.Context, owner types.Identity, limit int) ([]RecentViewDTO, error) {
	if err := owner.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid view owner")
	}
	if limit <= 0 || limit > s.maxItems {
		limit = s.maxItems
	}
	views, err := s.recentRepo.ListWithProducts(ctx, owner, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent views")
	}
	return views, nil
}

// MergeGuestIntoUser folds the guest history into the user's, keeping the
// later timestamp when both saw the same product. Exactly one row per
// (user, product) remains afterwards, even across rotated guest sessions.
func (s *service) MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error {
	if sessionToken == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session token is required")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	guestOwner := types.SessionIdentity(sessionToken)
	userOwner := types.UserIdentity(userID)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.recentRepo.WithTx(tx)
		guestViews, err := repo.FindByOwner(ctx, guestOwner)
		if err != nil {
			return err
		}
		for _, view := range guestViews {
			if err := repo.Upsert(ctx, userOwner, view.ProductID, view.ViewedAt); err != nil {
				return err
			}
		}
		return repo.Clear(ctx, guestOwner)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest views")
	}
	return nil
}
