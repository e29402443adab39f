package wishlist

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/internal/products"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/pagination"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	WishlistRepo *Repository
	ProductRepo  *products.Repository
	Tx           txRunner
}

// Service exposes business rules for wishlist management.
type Service interface {
	GetWishlist(ctx context.Context, owner types.Identity, params pagination.Params) (WishlistPageDTO, error)
	AddItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) error
	RemoveItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) error
	ClearWishlist(ctx context.Context, owner types.Identity) error
	MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error
}

type service struct {
	wishlistRepo *Repository
	productRepo  *products.Repository
	tx           txRunner
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.WishlistRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	return &service{
		wishlistRepo: params.WishlistRepo,
		productRepo:  params.ProductRepo,
		tx:           params.Tx,
	}, nil
}

// GetWishlist returns the owner's saved items, newest first.
func (s *service) GetWishlist(ctx context.Context, owner types.Identity, params pagination.Params) (WishlistPageDTO, error) {
	if err := owner.Validate(); err != nil {
		return WishlistPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wishlist owner")
	}
	page, err := s.wishlistRepo.ListItems(ctx, owner, params)
	if err != nil {
		return WishlistPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}
	return page, nil
}

// AddItem saves the product/variant combination. Saving the same combination
// again is a no-op.
func (s *service) AddItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wishlist owner")
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
	if err := s.wishlistRepo.AddItem(ctx, owner, productID, variantIDs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add wishlist item")
	}
	return nil
}

// RemoveItem drops the entry regardless of prior state.
func (s *service) RemoveItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wishlist owner")
	}
	variantKey := types.VariantKey(types.NormalizeVariantIDs(variantIDs))
	if err := s.wishlistRepo.RemoveItem(ctx, owner, productID, variantKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	return nil
}

// ClearWishlist drops every entry for the owner. Safe when none exist.
func (s *service) ClearWishlist(ctx context.Context, owner types.Identity) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wishlist owner")
	}
	if err := s.wishlistRepo.Clear(ctx, owner); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear wishlist")
	}
	return nil
}

// MergeGuestIntoUser folds the guest wishlist into the user's as a set
// union keyed by (product, variant selection). Duplicate combinations
// collapse onto the user's existing entry.
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
		repo := s.wishlistRepo.WithTx(tx)
		guestItems, err := repo.FindByOwner(ctx, guestOwner)
		if err != nil {
			return err
		}
		for _, item := range guestItems {
			if err := repo.AddItem(ctx, userOwner, item.ProductID, item.VariantIDs); err != nil {
				return err
			}
		}
		return repo.Clear(ctx, guestOwner)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest wishlist")
	}
	return nil
}
