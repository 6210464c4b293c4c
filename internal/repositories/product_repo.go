package repositories

import (
	"context"

	"ecofinds/internal/models"
)

// ProductRepository defines the interface for product aggregate data access.
// Product reads always hydrate Images ordered by id.
type ProductRepository interface {
	// Transaction runs fn against a repository bound to a single database
	// transaction. The transaction commits when fn returns nil and rolls back
	// otherwise.
	Transaction(ctx context.Context, fn func(repo ProductRepository) error) error

	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	// GetByIDForUpdate loads the product and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	// Delete removes the product's image rows and then the product row.
	Delete(ctx context.Context, id uint) error

	CreateImages(ctx context.Context, images []models.ProductImage) error
	GetImageByID(ctx context.Context, id uint) (*models.ProductImage, error)
	DeleteImage(ctx context.Context, id uint) error
	ClearPrimaryImages(ctx context.Context, productID uint) error
	MarkPrimaryImage(ctx context.Context, imageID uint) error
	// Touch refreshes the product's updated timestamp.
	Touch(ctx context.Context, productID uint) error
}
