package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ecofinds/internal/logger"
	"ecofinds/internal/models"
	"ecofinds/internal/repositories"
	"ecofinds/internal/validation"

	"github.com/go-playground/validator/v10"
)

// ImageStore persists image bytes outside the database.
type ImageStore interface {
	Allowed(name string) bool
	Save(r io.Reader, originalName string) (string, error)
	Delete(storedName string) error
}

// ImageFile is one uploaded image as received from the client.
type ImageFile struct {
	Name    string
	Content io.Reader
}

// ProductInput carries the fields of a new product.
type ProductInput struct {
	Title                string   `json:"title" form:"title" validate:"required,max=200"`
	Category             string   `json:"category" form:"category" validate:"required,max=100"`
	Description          string   `json:"description" form:"description" validate:"required"`
	Price                float64  `json:"price" form:"price" validate:"gt=0"`
	Quantity             *int     `json:"quantity" form:"quantity" validate:"omitempty,gte=0"`
	Condition            string   `json:"condition" form:"condition" validate:"required,oneof=New Used Refurbished"`
	YearOfManufacture    *int     `json:"year_of_manufacture" form:"year_of_manufacture" validate:"omitempty,gt=0"`
	Brand                *string  `json:"brand" form:"brand" validate:"omitempty,max=100"`
	Model                *string  `json:"model" form:"model" validate:"omitempty,max=100"`
	Dimensions           *string  `json:"dimensions" form:"dimensions" validate:"omitempty,max=100"`
	Weight               *float64 `json:"weight" form:"weight" validate:"omitempty,gte=0"`
	Material             *string  `json:"material" form:"material" validate:"omitempty,max=100"`
	Color                *string  `json:"color" form:"color" validate:"omitempty,max=50"`
	OriginalPackaging    *bool    `json:"original_packaging" form:"original_packaging"`
	ManualIncluded       *bool    `json:"manual_included" form:"manual_included"`
	WorkingConditionDesc *string  `json:"working_condition_desc" form:"working_condition_desc"`
}

// ProductUpdate carries a partial update. Nil fields keep their stored value.
type ProductUpdate struct {
	Title                *string  `json:"title" form:"title" validate:"omitempty,min=1,max=200"`
	Category             *string  `json:"category" form:"category" validate:"omitempty,min=1,max=100"`
	Description          *string  `json:"description" form:"description" validate:"omitempty,min=1"`
	Price                *float64 `json:"price" form:"price" validate:"omitempty,gt=0"`
	Quantity             *int     `json:"quantity" form:"quantity" validate:"omitempty,gte=0"`
	Condition            *string  `json:"condition" form:"condition" validate:"omitempty,oneof=New Used Refurbished"`
	YearOfManufacture    *int     `json:"year_of_manufacture" form:"year_of_manufacture" validate:"omitempty,gt=0"`
	Brand                *string  `json:"brand" form:"brand" validate:"omitempty,max=100"`
	Model                *string  `json:"model" form:"model" validate:"omitempty,max=100"`
	Dimensions           *string  `json:"dimensions" form:"dimensions" validate:"omitempty,max=100"`
	Weight               *float64 `json:"weight" form:"weight" validate:"omitempty,gte=0"`
	Material             *string  `json:"material" form:"material" validate:"omitempty,max=100"`
	Color                *string  `json:"color" form:"color" validate:"omitempty,max=50"`
	OriginalPackaging    *bool    `json:"original_packaging" form:"original_packaging"`
	ManualIncluded       *bool    `json:"manual_included" form:"manual_included"`
	WorkingConditionDesc *string  `json:"working_condition_desc" form:"working_condition_desc"`
}

// ProductService owns the product aggregate: a product, its images and the
// files behind them.
type ProductService struct {
	repo      repositories.ProductRepository
	store     ImageStore
	publisher EventPublisher
	validate  *validator.Validate
	log       *logger.Logger
}

// NewProductService creates a new ProductService. A nil publisher disables
// events.
func NewProductService(repo repositories.ProductRepository, store ImageStore, publisher EventPublisher, log *logger.Logger) *ProductService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ProductService{
		repo:      repo,
		store:     store,
		publisher: publisher,
		validate:  validation.New(),
		log:       log.With("service", "ProductService"),
	}
}

// List retrieves all products with their images.
func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Get retrieves a single product with its images.
func (s *ProductService) Get(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return product, nil
}

// Create validates input, then stores the product, its accepted images and
// their files in one transaction. The first accepted image becomes primary.
// Files written before a failure are removed on a best-effort basis.
func (s *ProductService) Create(ctx context.Context, input ProductInput, images []ImageFile) (*models.Product, error) {
	input.normalize()
	if err := s.check(input); err != nil {
		return nil, err
	}

	product := input.toModel()
	var stored []string
	err := s.repo.Transaction(ctx, func(repo repositories.ProductRepository) error {
		if err := repo.Create(ctx, product); err != nil {
			return err
		}
		var err error
		stored, err = s.attachImages(ctx, repo, product.ID, images, true)
		return err
	})
	if err != nil {
		s.discardFiles(stored)
		return nil, fmt.Errorf("failed to create product: %w", translate(err))
	}

	created, err := s.repo.GetByID(ctx, product.ID)
	if err != nil {
		return nil, translate(err)
	}
	s.log.Info("product created", "product_id", created.ID, "images", len(created.Images))
	s.publish(EventProductCreated, created, 0)
	return created, nil
}

// Update applies the non-nil fields of update and appends new images, which
// are never primary.
func (s *ProductService) Update(ctx context.Context, id uint, update ProductUpdate, images []ImageFile) (*models.Product, error) {
	update.normalize()
	if err := s.check(update); err != nil {
		return nil, err
	}

	var stored []string
	err := s.repo.Transaction(ctx, func(repo repositories.ProductRepository) error {
		product, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		update.apply(product)
		if err := repo.Update(ctx, product); err != nil {
			return err
		}
		stored, err = s.attachImages(ctx, repo, product.ID, images, false)
		return err
	})
	if err != nil {
		s.discardFiles(stored)
		return nil, fmt.Errorf("failed to update product %d: %w", id, translate(err))
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	s.log.Info("product updated", "product_id", id, "new_images", len(stored))
	s.publish(EventProductUpdated, updated, 0)
	return updated, nil
}

// Delete removes every image file of the product, then its image rows and
// the product row. Files already removed cannot be restored if the row
// deletion fails.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return translate(err)
	}

	for _, image := range product.Images {
		if err := s.store.Delete(image.Filename); err != nil {
			return fmt.Errorf("failed to delete files of product %d: %w", id, err)
		}
	}

	err = s.repo.Transaction(ctx, func(repo repositories.ProductRepository) error {
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, translate(err))
	}

	s.log.Info("product deleted", "product_id", id, "images", len(product.Images))
	s.publish(EventProductDeleted, &models.Product{ID: id}, 0)
	return nil
}

// DeleteImage removes one image file and its row. Deleting the primary image
// leaves the product without a primary image.
func (s *ProductService) DeleteImage(ctx context.Context, imageID uint) error {
	image, err := s.repo.GetImageByID(ctx, imageID)
	if err != nil {
		return translate(err)
	}

	if err := s.store.Delete(image.Filename); err != nil {
		return fmt.Errorf("failed to delete file of image %d: %w", imageID, err)
	}

	err = s.repo.Transaction(ctx, func(repo repositories.ProductRepository) error {
		if err := repo.DeleteImage(ctx, imageID); err != nil {
			return err
		}
		return repo.Touch(ctx, image.ProductID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %d: %w", imageID, translate(err))
	}

	s.log.Info("product image deleted", "product_id", image.ProductID, "image_id", imageID, "was_primary", image.IsPrimary)
	s.publish(EventProductImageDeleted, &models.Product{ID: image.ProductID}, imageID)
	return nil
}

// SetPrimaryImage makes imageID the only primary image of productID. The
// product row stays locked for the duration of the swap so concurrent calls
// cannot leave two primaries behind.
func (s *ProductService) SetPrimaryImage(ctx context.Context, productID, imageID uint) error {
	err := s.repo.Transaction(ctx, func(repo repositories.ProductRepository) error {
		product, err := repo.GetByIDForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		image, err := repo.GetImageByID(ctx, imageID)
		if err != nil {
			return err
		}
		if image.ProductID != product.ID {
			return ErrImageMismatch
		}
		if err := repo.ClearPrimaryImages(ctx, product.ID); err != nil {
			return err
		}
		if err := repo.MarkPrimaryImage(ctx, image.ID); err != nil {
			return err
		}
		return repo.Touch(ctx, product.ID)
	})
	if err != nil {
		return translate(err)
	}

	s.log.Info("primary image set", "product_id", productID, "image_id", imageID)
	s.publish(EventProductPrimaryChanged, &models.Product{ID: productID}, imageID)
	return nil
}

// attachImages saves each allowed file and inserts its image row. It returns
// the names stored so far even when it fails.
func (s *ProductService) attachImages(ctx context.Context, repo repositories.ProductRepository, productID uint, files []ImageFile, firstIsPrimary bool) ([]string, error) {
	var stored []string
	rows := make([]models.ProductImage, 0, len(files))
	for _, file := range files {
		if !s.store.Allowed(file.Name) {
			s.log.Debug("skipping image with unsupported extension", "product_id", productID, "filename", file.Name)
			continue
		}
		name, err := s.store.Save(file.Content, file.Name)
		if err != nil {
			return stored, fmt.Errorf("failed to store image %q: %w", file.Name, err)
		}
		stored = append(stored, name)
		rows = append(rows, models.ProductImage{
			ProductID: productID,
			Filename:  name,
			IsPrimary: firstIsPrimary && len(rows) == 0,
		})
	}
	if err := repo.CreateImages(ctx, rows); err != nil {
		return stored, err
	}
	return stored, nil
}

// TODO: hand failed deletions to a background sweeper once one exists; today
// they are only logged.
func (s *ProductService) discardFiles(names []string) {
	for _, name := range names {
		if err := s.store.Delete(name); err != nil {
			s.log.Warn("failed to remove orphaned image file", "filename", name, "error", err)
		}
	}
}

func (s *ProductService) publish(eventType string, product *models.Product, imageID uint) {
	event := ProductEvent{
		Type:       eventType,
		ProductID:  product.ID,
		ImageID:    imageID,
		ImageCount: len(product.Images),
	}
	if primary := product.PrimaryImage(); primary != nil {
		event.PrimaryImageID = primary.ID
	}
	if eventType == EventProductPrimaryChanged {
		event.PrimaryImageID = imageID
	}
	publishEvent(s.publisher, s.log, event)
}

func (s *ProductService) check(input interface{}) error {
	if err := s.validate.Struct(input); err != nil {
		fields := validation.Messages(err)
		if fields == nil {
			return err
		}
		return &ValidationError{Message: "Validation failed", Fields: fields}
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return withKind(ErrNotFound, err)
	case errors.Is(err, repositories.ErrDuplicate):
		return withKind(ErrConflict, err)
	default:
		return err
	}
}

func (in *ProductInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	in.Condition = strings.TrimSpace(in.Condition)
	for _, p := range []**string{&in.Brand, &in.Model, &in.Dimensions, &in.Material, &in.Color, &in.WorkingConditionDesc} {
		*p = optional(*p)
	}
}

func (in ProductInput) toModel() *models.Product {
	product := &models.Product{
		Title:                in.Title,
		Category:             in.Category,
		Description:          in.Description,
		Price:                in.Price,
		Quantity:             1,
		Condition:            in.Condition,
		YearOfManufacture:    in.YearOfManufacture,
		Brand:                in.Brand,
		Model:                in.Model,
		Dimensions:           in.Dimensions,
		Weight:               in.Weight,
		Material:             in.Material,
		Color:                in.Color,
		WorkingConditionDesc: in.WorkingConditionDesc,
	}
	if in.Quantity != nil {
		product.Quantity = *in.Quantity
	}
	if in.OriginalPackaging != nil {
		product.OriginalPackaging = *in.OriginalPackaging
	}
	if in.ManualIncluded != nil {
		product.ManualIncluded = *in.ManualIncluded
	}
	return product
}

func (u *ProductUpdate) normalize() {
	for _, p := range []**string{&u.Title, &u.Category, &u.Description, &u.Condition} {
		if *p != nil {
			trimmed := strings.TrimSpace(**p)
			*p = &trimmed
		}
	}
}

func (u ProductUpdate) apply(p *models.Product) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.Condition != nil {
		p.Condition = *u.Condition
	}
	if u.YearOfManufacture != nil {
		p.YearOfManufacture = u.YearOfManufacture
	}
	if u.Weight != nil {
		p.Weight = u.Weight
	}
	if u.OriginalPackaging != nil {
		p.OriginalPackaging = *u.OriginalPackaging
	}
	if u.ManualIncluded != nil {
		p.ManualIncluded = *u.ManualIncluded
	}
	// An empty optional string clears the attribute.
	for _, f := range []struct {
		in  *string
		out **string
	}{
		{u.Brand, &p.Brand},
		{u.Model, &p.Model},
		{u.Dimensions, &p.Dimensions},
		{u.Material, &p.Material},
		{u.Color, &p.Color},
		{u.WorkingConditionDesc, &p.WorkingConditionDesc},
	} {
		if f.in != nil {
			*f.out = optional(f.in)
		}
	}
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
