package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecofinds/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// Transaction runs fn inside a database transaction. Nested calls use a savepoint.
func (r *GORMProductRepository) Transaction(ctx context.Context, fn func(repo ProductRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GORMProductRepository{db: tx})
	})
}

func orderedImages(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// GetAll retrieves all products with their images.
func (r *GORMProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Preload("Images", orderedImages).Order("id ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID with its images.
func (r *GORMProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Preload("Images", orderedImages).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %d: %w", id, err)
	}
	return &product, nil
}

// GetByIDForUpdate takes a row lock on the product before loading it. SQLite
// has no row locks and serializes writers on its own.
func (r *GORMProductRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Product, error) {
	var locked models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&locked, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// Create inserts the product row only; images are inserted with CreateImages.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes every product column. Callers load the product first, so a
// missing row has already been reported as ErrNotFound.
func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(product).Error; err != nil {
		return fmt.Errorf("failed to update product %d: %w", product.ID, err)
	}
	return nil
}

// Delete removes the image rows of a product, then the product row itself.
func (r *GORMProductRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete images of product %d: %w", id, err)
		}
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete product %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product with ID %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// CreateImages inserts a batch of image rows.
func (r *GORMProductRepository) CreateImages(ctx context.Context, images []models.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&images).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create product images: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create product images: %w", err)
	}
	return nil
}

// GetImageByID retrieves a single product image.
func (r *GORMProductRepository) GetImageByID(ctx context.Context, id uint) (*models.ProductImage, error) {
	var image models.ProductImage
	if err := r.db.WithContext(ctx).First(&image, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("image with ID %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get image by ID %d: %w", id, err)
	}
	return &image, nil
}

// DeleteImage removes a single image row.
func (r *GORMProductRepository) DeleteImage(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.ProductImage{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete image %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("image with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearPrimaryImages unsets the primary flag on every image of a product.
func (r *GORMProductRepository) ClearPrimaryImages(ctx context.Context, productID uint) error {
	err := r.db.WithContext(ctx).
		Model(&models.ProductImage{}).
		Where("product_id = ?", productID).
		Update("is_primary", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear primary images of product %d: %w", productID, err)
	}
	return nil
}

// MarkPrimaryImage sets the primary flag on a single image.
func (r *GORMProductRepository) MarkPrimaryImage(ctx context.Context, imageID uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.ProductImage{}).
		Where("id = ?", imageID).
		Update("is_primary", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark image %d primary: %w", imageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("image with ID %d: %w", imageID, ErrNotFound)
	}
	return nil
}

// Touch refreshes updated_at on the product row.
func (r *GORMProductRepository) Touch(ctx context.Context, productID uint) error {
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("updated_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to touch product %d: %w", productID, err)
	}
	return nil
}
