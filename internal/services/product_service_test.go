package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ecofinds/internal/config"
	"ecofinds/internal/database"
	"ecofinds/internal/logger"
	"ecofinds/internal/models"
	"ecofinds/internal/repositories"
	"ecofinds/internal/services"
	"ecofinds/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(routingKey string, body []byte) error {
	args := m.Called(routingKey, body)
	return args.Error(0)
}

// flakyStore fails the failOn-th Save.
type flakyStore struct {
	*storage.LocalImageStore
	failOn int
	saves  int
}

func (s *flakyStore) Save(r io.Reader, name string) (string, error) {
	s.saves++
	if s.saves == s.failOn {
		return "", errors.New("disk full")
	}
	return s.LocalImageStore.Save(r, name)
}

type productFixture struct {
	svc       *services.ProductService
	repo      *repositories.GORMProductRepository
	store     *storage.LocalImageStore
	publisher *MockPublisher
	dir       string
}

func newProductFixture(t *testing.T) *productFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ecofinds.db"),
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	dir := filepath.Join(t.TempDir(), "uploads")
	store := storage.NewLocalImageStore(dir, "http://localhost:8080")
	repo := repositories.NewGORMProductRepository(db)

	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &productFixture{
		svc:       services.NewProductService(repo, store, publisher, nil),
		repo:      repo,
		store:     store,
		publisher: publisher,
		dir:       dir,
	}
}

func (f *productFixture) fileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func imageFiles(names ...string) []services.ImageFile {
	files := make([]services.ImageFile, 0, len(names))
	for _, name := range names {
		files = append(files, services.ImageFile{Name: name, Content: strings.NewReader("data-" + name)})
	}
	return files
}

func lampInput() services.ProductInput {
	quantity := 2
	return services.ProductInput{
		Title:       "Lamp",
		Category:    "Home",
		Description: "Brass desk lamp",
		Price:       10.0,
		Quantity:    &quantity,
		Condition:   models.ConditionUsed,
	}
}

func primaryCount(p *models.Product) int {
	n := 0
	for _, img := range p.Images {
		if img.IsPrimary {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }

func TestProductService_CreateMarksFirstImagePrimary(t *testing.T) {
	f := newProductFixture(t)

	product, err := f.svc.Create(context.Background(), lampInput(), imageFiles("a.jpg", "b.png"))
	require.NoError(t, err)

	assert.Equal(t, "Lamp", product.Title)
	assert.Equal(t, 2, product.Quantity)
	require.Len(t, product.Images, 2)
	assert.True(t, product.Images[0].IsPrimary)
	assert.False(t, product.Images[1].IsPrimary)
	assert.True(t, strings.HasSuffix(product.Images[0].Filename, "_a.jpg"))
	assert.True(t, strings.HasSuffix(product.Images[1].Filename, "_b.png"))
	assert.Equal(t, 2, f.fileCount(t))

	f.publisher.AssertCalled(t, "Publish", services.EventProductCreated, mock.MatchedBy(func(body []byte) bool {
		var event services.ProductEvent
		return json.Unmarshal(body, &event) == nil &&
			event.ProductID == product.ID &&
			event.ImageCount == 2 &&
			event.PrimaryImageID == product.Images[0].ID
	}))
}

func TestProductService_CreateSkipsUnsupportedFiles(t *testing.T) {
	f := newProductFixture(t)

	product, err := f.svc.Create(context.Background(), lampInput(), imageFiles("notes.txt", "b.png", "c.bmp"))
	require.NoError(t, err)

	require.Len(t, product.Images, 1)
	assert.True(t, product.Images[0].IsPrimary)
	assert.Equal(t, 1, f.fileCount(t))
}

func TestProductService_CreateWithoutImages(t *testing.T) {
	f := newProductFixture(t)

	product, err := f.svc.Create(context.Background(), lampInput(), nil)
	require.NoError(t, err)
	assert.Empty(t, product.Images)
	assert.Nil(t, product.PrimaryImage())
}

func TestProductService_CreateRoundTripsThroughGet(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	input := lampInput()
	input.YearOfManufacture = ptr(1998)
	input.Brand = ptr("Lumen")
	input.Model = ptr("DL-2")
	input.Dimensions = ptr("20x15x45")
	input.Weight = ptr(1.25)
	input.Material = ptr("Brass")
	input.Color = ptr("Gold")
	input.OriginalPackaging = ptr(true)
	input.ManualIncluded = ptr(false)
	input.WorkingConditionDesc = ptr("Switch is a bit stiff")

	created, err := f.svc.Create(ctx, input, imageFiles("a.jpg"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "Lumen", *got.Brand)
	assert.Equal(t, 1998, *got.YearOfManufacture)
	assert.True(t, got.OriginalPackaging)
	assert.False(t, got.ManualIncluded)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestProductService_CreateQuantityDefaults(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	input := lampInput()
	input.Quantity = nil
	product, err := f.svc.Create(ctx, input, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, product.Quantity)

	input.Quantity = ptr(0)
	product, err = f.svc.Create(ctx, input, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, product.Quantity)
}

func TestProductService_CreateValidation(t *testing.T) {
	cases := map[string]func(in *services.ProductInput){
		"price":       func(in *services.ProductInput) { in.Price = 0 },
		"quantity":    func(in *services.ProductInput) { in.Quantity = ptr(-1) },
		"condition":   func(in *services.ProductInput) { in.Condition = "Broken" },
		"title":       func(in *services.ProductInput) { in.Title = "  " },
		"category":    func(in *services.ProductInput) { in.Category = "" },
		"description": func(in *services.ProductInput) { in.Description = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			f := newProductFixture(t)
			ctx := context.Background()
			in := lampInput()
			mutate(&in)

			_, err := f.svc.Create(ctx, in, imageFiles("a.jpg"))
			assert.ErrorIs(t, err, services.ErrValidation)
			var verr *services.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Contains(t, verr.Fields, field)
			}

			products, err := f.svc.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, products)
			assert.Equal(t, 0, f.fileCount(t))
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestProductService_CreateRollsBackOnStoreFailure(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	store := &flakyStore{LocalImageStore: f.store, failOn: 2}
	svc := services.NewProductService(f.repo, store, f.publisher, nil)

	_, err := svc.Create(ctx, lampInput(), imageFiles("a.jpg", "b.jpg", "c.jpg"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "disk full")

	products, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, f.fileCount(t))
}

func TestProductService_PublishFailureDoesNotFailCreate(t *testing.T) {
	f := newProductFixture(t)
	publisher := new(MockPublisher)
	publisher.On("Publish", services.EventProductCreated, mock.Anything).Return(errors.New("broker down")).Once()
	svc := services.NewProductService(f.repo, f.store, publisher, nil)

	product, err := svc.Create(context.Background(), lampInput(), nil)
	require.NoError(t, err)
	assert.NotZero(t, product.ID)
	publisher.AssertExpectations(t)
}

func TestProductService_UpdateIsPartial(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	input := lampInput()
	input.Brand = ptr("Lumen")
	input.OriginalPackaging = ptr(true)
	created, err := f.svc.Create(ctx, input, imageFiles("a.jpg"))
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, services.ProductUpdate{Price: ptr(12.5)}, imageFiles("b.png", "c.webp"))
	require.NoError(t, err)

	assert.Equal(t, 12.5, updated.Price)
	assert.Equal(t, "Lamp", updated.Title)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, "Lumen", *updated.Brand)
	assert.True(t, updated.OriginalPackaging)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	require.Len(t, updated.Images, 3)
	assert.True(t, updated.Images[0].IsPrimary)
	assert.False(t, updated.Images[1].IsPrimary)
	assert.False(t, updated.Images[2].IsPrimary)
	assert.Equal(t, 3, f.fileCount(t))
	f.publisher.AssertCalled(t, "Publish", services.EventProductUpdated, mock.Anything)
}

func TestProductService_UpdateBooleansAndClearing(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	input := lampInput()
	input.Brand = ptr("Lumen")
	input.OriginalPackaging = ptr(true)
	input.ManualIncluded = ptr(true)
	created, err := f.svc.Create(ctx, input, nil)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, services.ProductUpdate{
		OriginalPackaging: ptr(false),
		Brand:             ptr(""),
		Quantity:          ptr(0),
	}, nil)
	require.NoError(t, err)

	assert.False(t, updated.OriginalPackaging)
	assert.True(t, updated.ManualIncluded)
	assert.Nil(t, updated.Brand)
	assert.Equal(t, 0, updated.Quantity)
}

func TestProductService_UpdateErrors(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, 999, services.ProductUpdate{Price: ptr(5.0)}, nil)
	assert.ErrorIs(t, err, services.ErrNotFound)

	created, err := f.svc.Create(ctx, lampInput(), nil)
	require.NoError(t, err)

	for name, update := range map[string]services.ProductUpdate{
		"price":     {Price: ptr(0.0)},
		"quantity":  {Quantity: ptr(-3)},
		"condition": {Condition: ptr("Mint")},
		"title":     {Title: ptr(" ")},
	} {
		_, err := f.svc.Update(ctx, created.ID, update, imageFiles("x.png"))
		assert.ErrorIs(t, err, services.ErrValidation, name)
	}

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Price)
	assert.Empty(t, got.Images)
	assert.Equal(t, 0, f.fileCount(t))
}

func TestProductService_SetPrimaryImage(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)
	target := product.Images[2]

	require.NoError(t, f.svc.SetPrimaryImage(ctx, product.ID, target.ID))

	got, err := f.svc.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, primaryCount(got))
	assert.Equal(t, target.ID, got.PrimaryImage().ID)
	f.publisher.AssertCalled(t, "Publish", services.EventProductPrimaryChanged, mock.Anything)

	// Selecting the current primary again is a no-op.
	require.NoError(t, f.svc.SetPrimaryImage(ctx, product.ID, target.ID))
	got, err = f.svc.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, primaryCount(got))
}

func TestProductService_SetPrimaryImageErrors(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, lampInput(), imageFiles("b.jpg"))
	require.NoError(t, err)

	err = f.svc.SetPrimaryImage(ctx, first.ID, second.Images[0].ID)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.ErrorIs(t, err, services.ErrImageMismatch)

	assert.ErrorIs(t, f.svc.SetPrimaryImage(ctx, first.ID, 999), services.ErrNotFound)
	assert.ErrorIs(t, f.svc.SetPrimaryImage(ctx, 999, first.Images[0].ID), services.ErrNotFound)

	// The failed calls left both products untouched.
	got, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.Images[0].IsPrimary)
}

func TestProductService_SetPrimaryImageConcurrent(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg", "b.jpg", "c.jpg", "d.jpg"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(image models.ProductImage) {
			defer wg.Done()
			assert.NoError(t, f.svc.SetPrimaryImage(ctx, product.ID, image.ID))
		}(product.Images[i%len(product.Images)])
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, primaryCount(got))
}

func TestProductService_DeleteImage(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg", "b.jpg"))
	require.NoError(t, err)
	primary := product.Images[0]

	require.NoError(t, f.svc.DeleteImage(ctx, primary.ID))

	got, err := f.svc.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	assert.Equal(t, product.Images[1].ID, got.Images[0].ID)
	// No other image is promoted.
	assert.Equal(t, 0, primaryCount(got))
	assert.Equal(t, 1, f.fileCount(t))

	_, err = os.Stat(filepath.Join(f.dir, primary.Filename))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, f.svc.DeleteImage(ctx, primary.ID), services.ErrNotFound)
	f.publisher.AssertCalled(t, "Publish", services.EventProductImageDeleted, mock.Anything)
}

func TestProductService_DeleteImageToleratesMissingFile(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.dir, product.Images[0].Filename)))

	require.NoError(t, f.svc.DeleteImage(ctx, product.Images[0].ID))
	got, err := f.svc.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Images)
}

func TestProductService_Delete(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, lampInput(), imageFiles("a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)
	keep, err := f.svc.Create(ctx, lampInput(), imageFiles("d.jpg"))
	require.NoError(t, err)

	// One file is already gone; deletion still succeeds.
	require.NoError(t, os.Remove(filepath.Join(f.dir, product.Images[1].Filename)))

	require.NoError(t, f.svc.Delete(ctx, product.ID))

	_, err = f.svc.Get(ctx, product.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	for _, img := range product.Images {
		_, err := f.repo.GetImageByID(ctx, img.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	}
	assert.Equal(t, 1, f.fileCount(t))

	got, err := f.svc.Get(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, got.Images, 1)

	assert.ErrorIs(t, f.svc.Delete(ctx, product.ID), services.ErrNotFound)
	f.publisher.AssertCalled(t, "Publish", services.EventProductDeleted, mock.Anything)
}

func TestProductService_List(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	products, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	_, err = f.svc.Create(ctx, lampInput(), imageFiles("a.jpg"))
	require.NoError(t, err)
	second := lampInput()
	second.Title = "Chair"
	_, err = f.svc.Create(ctx, second, nil)
	require.NoError(t, err)

	products, err = f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Lamp", products[0].Title)
	assert.Len(t, products[0].Images, 1)
	assert.Equal(t, "Chair", products[1].Title)
}
