package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/internal/products"
	"github.com/rvelez/storefront-backend/pkg/db/models"
	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	CartRepo    *Repository
	ProductRepo *products.Repository
	Tx          txRunner
	Logger      *logger.Logger
}

// Service exposes business rules for cart management.
type Service interface {
	GetCart(ctx context.Context, owner types.Identity) (CartDTO, error)
	AddItem(ctx context.Context, owner types.Identity, input AddItemInput) (CartDTO, error)
	UpdateItemQuantity(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID, quantity int) (CartDTO, error)
	RemoveItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) (CartDTO, error)
	ClearCart(ctx context.Context, owner types.Identity) error
	ClearBySessionToken(ctx context.Context, sessionToken string) error
	MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) error
}

type service struct {
	cartRepo    *Repository
	productRepo *products.Repository
	tx          txRunner
	logg        *logger.Logger
}

// NewService builds a cart service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.CartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	return &service{
		cartRepo:    params.CartRepo,
		productRepo: params.ProductRepo,
		tx:          params.Tx,
		logg:        params.Logger,
	}, nil
}

// GetCart renders the owner's cart. An absent cart is the empty shape, not
// an error.
func (s *service) GetCart(ctx context.Context, owner types.Identity) (CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	cart, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart(), nil
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.render(ctx, cart)
}

// AddItem appends a line or sums its quantity into the existing line with
// the same (product, variant selection) identity. The cart is created lazily
// on the first add.
func (s *service) AddItem(ctx context.Context, owner types.Identity, input AddItemInput) (CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	if input.ProductID == uuid.Nil {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity < 1 {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	variantIDs := types.NormalizeVariantIDs(input.VariantIDs)
	if err := validateVariantSelection(product, variantIDs); err != nil {
		return CartDTO{}, err
	}
	unitPrice := products.UnitPriceCents(product, variantIDs)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.cartRepo.WithTx(tx)
		cart, err := repo.FindByOwner(ctx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cart = &models.Cart{
				OwnerKind: owner.Kind,
				OwnerKey:  owner.Key(),
				Currency:  product.Currency,
			}
			cart.ID = uuid.New()
			if err := repo.Create(ctx, cart); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return repo.UpsertItem(ctx, cart.ID, models.CartItem{
			ProductID:      input.ProductID,
			VariantIDs:     dbtypes.UUIDArray(variantIDs),
			VariantKey:     types.VariantKey(variantIDs),
			Quantity:       input.Quantity,
			UnitPriceCents: unitPrice,
		})
	})
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.GetCart(ctx, owner)
}

// UpdateItemQuantity overwrites a line's quantity. Zero removes the line.
// Both the cart and the line must already exist.
func (s *service) UpdateItemQuantity(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID, quantity int) (CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	if quantity < 0 {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	cart, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CartDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	variantKey := types.VariantKey(types.NormalizeVariantIDs(variantIDs))
	if !cartHasLine(cart, productID, variantKey) {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if quantity == 0 {
		if err := s.cartRepo.DeleteItem(ctx, cart.ID, productID, variantKey); err != nil {
			return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		return s.GetCart(ctx, owner)
	}

	affected, err := s.cartRepo.SetItemQuantity(ctx, cart.ID, productID, variantKey, quantity)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if affected == 0 {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.GetCart(ctx, owner)
}

// RemoveItem drops the line if present.
func (s *service) RemoveItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) (CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	cart, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart(), nil
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	variantKey := types.VariantKey(types.NormalizeVariantIDs(variantIDs))
	if err := s.cartRepo.DeleteItem(ctx, cart.ID, productID, variantKey); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.GetCart(ctx, owner)
}

// ClearCart drops the owner's cart. Safe to call when no cart exists.
func (s *service) ClearCart(ctx context.Context, owner types.Identity) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	cart, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := s.cartRepo.Delete(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// ClearBySessionToken clears the guest cart behind the session, used as the
// post-payment side effect for orders placed before login.
func (s *service) ClearBySessionToken(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session token is required")
	}
	return s.ClearCart(ctx, types.SessionIdentity(sessionToken))
}

// MergeGuestIntoUser reconciles the guest cart into the user's cart on
// login. When the user has no cart the guest cart is adopted wholesale by
// re-keying its owner, which also severs the session linkage. When both
// exist, matching lines sum quantities, the rest are appended, and the guest
// cart is deleted. Two logins merging the same guest cart concurrently can
// interleave reads; the losing write is accepted rather than locked against.
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
		repo := s.cartRepo.WithTx(tx)

		guestCart, err := repo.FindByOwner(ctx, guestOwner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		userCart, err := repo.FindByOwner(ctx, userOwner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repo.ReKeyOwner(ctx, guestCart.ID, userOwner)
		}
		if err != nil {
			return err
		}

		for _, item := range guestCart.Items {
			if err := repo.UpsertItem(ctx, userCart.ID, item); err != nil {
				return err
			}
		}
		return repo.Delete(ctx, guestCart.ID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest cart")
	}
	if s.logg != nil {
		logCtx := s.logg.WithUserID(s.logg.WithSessionToken(ctx, sessionToken), userID.String())
		s.logg.Info(logCtx, "guest cart merged into user")
	}
	return nil
}

func (s *service) render(ctx context.Context, cart *models.Cart) (CartDTO, error) {
	dto := CartDTO{
		Currency: cart.Currency,
		Items:    make([]CartItemDTO, 0, len(cart.Items)),
	}

	productIDs := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	rows, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}
	titles := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		titles[row.ID] = row.Title
	}

	for _, item := range cart.Items {
		line := CartItemDTO{
			ProductID:      item.ProductID,
			Title:          titles[item.ProductID],
			VariantIDs:     []uuid.UUID(item.VariantIDs),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.Quantity * item.UnitPriceCents,
		}
		dto.Items = append(dto.Items, line)
		dto.ItemCount += item.Quantity
		dto.SubtotalCents += line.TotalCents
	}
	return dto, nil
}

func cartHasLine(cart *models.Cart, productID uuid.UUID, variantKey string) bool {
	for _, item := range cart.Items {
		if item.ProductID == productID && item.VariantKey == variantKey {
			return true
		}
	}
	return false
}

func validateVariantSelection(product *models.Product, variantIDs []uuid.UUID) error {
	if len(variantIDs) == 0 {
		return nil
	}
	known := make(map[uuid.UUID]struct{}, len(product.VariantItems))
	for _, variant := range product.VariantItems {
		known[variant.ID] = struct{}{}
	}
	for _, id := range variantIDs {
		if _, ok := known[id]; !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product").
				WithDetails(map[string]string{"variant_id": id.String()})
		}
	}
	return nil
}
