package handlers

import (
	"fmt"
	"strings"

	"ecofinds/internal/logger"
	"ecofinds/internal/presenter"
	"ecofinds/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Multipart keys that carry image files.
var imageFormKeys = []string{"images", "images[]"}

// ProductHandler handles HTTP requests for products and their images.
type ProductHandler struct {
	productService *services.ProductService
	mapper         *presenter.Mapper
	log            *logger.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(productService *services.ProductService, mapper *presenter.Mapper, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		mapper:         mapper,
		log:            log.With("handler", "product"),
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Post("/", h.HandleCreate)
	productRoutes.Get("/", h.HandleList)
	// Registered before /:id so "images" is never read as a product id.
	productRoutes.Delete("/images/:id", h.HandleDeleteImage)
	productRoutes.Put("/:productId/primary-image/:imageId", h.HandleSetPrimaryImage)
	productRoutes.Get("/:id", h.HandleGet)
	productRoutes.Put("/:id", h.HandleUpdate)
	productRoutes.Delete("/:id", h.HandleDelete)
}

// HandleCreate creates a product from form fields and uploaded images.
func (h *ProductHandler) HandleCreate(c *fiber.Ctx) error {
	var input services.ProductInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Invalid request body", err)
	}
	blank := blankFormFields(c)
	clearIfBlank(blank, "quantity", &input.Quantity)
	clearIfBlank(blank, "year_of_manufacture", &input.YearOfManufacture)
	clearIfBlank(blank, "weight", &input.Weight)
	clearIfBlank(blank, "original_packaging", &input.OriginalPackaging)
	clearIfBlank(blank, "manual_included", &input.ManualIncluded)

	images, closeAll, err := uploadedImages(c)
	if err != nil {
		return badRequest(c, "Invalid image upload", err)
	}
	defer closeAll()

	product, err := h.productService.Create(c.UserContext(), input, images)
	if err != nil {
		return respondError(c, h.log, "Could not create product", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created successfully",
		"product": h.mapper.Product(product),
	})
}

// HandleList returns every product.
func (h *ProductHandler) HandleList(c *fiber.Ctx) error {
	products, err := h.productService.List(c.UserContext())
	if err != nil {
		return respondError(c, h.log, "Could not retrieve products", err)
	}
	return c.JSON(fiber.Map{
		"products": h.mapper.Products(products),
	})
}

// HandleGet returns a single product.
func (h *ProductHandler) HandleGet(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID", err)
	}

	product, err := h.productService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve product", err)
	}
	return c.JSON(fiber.Map{
		"product": h.mapper.Product(product),
	})
}

// HandleUpdate applies a partial update and appends uploaded images.
func (h *ProductHandler) HandleUpdate(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID", err)
	}

	var update services.ProductUpdate
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&update); err != nil {
			return badRequest(c, "Invalid request body", err)
		}
		blank := blankFormFields(c)
		clearIfBlank(blank, "price", &update.Price)
		clearIfBlank(blank, "quantity", &update.Quantity)
		clearIfBlank(blank, "year_of_manufacture", &update.YearOfManufacture)
		clearIfBlank(blank, "weight", &update.Weight)
		clearIfBlank(blank, "original_packaging", &update.OriginalPackaging)
		clearIfBlank(blank, "manual_included", &update.ManualIncluded)
	}

	images, closeAll, err := uploadedImages(c)
	if err != nil {
		return badRequest(c, "Invalid image upload", err)
	}
	defer closeAll()

	product, err := h.productService.Update(c.UserContext(), id, update, images)
	if err != nil {
		return respondError(c, h.log, "Could not update product", err)
	}

	return c.JSON(fiber.Map{
		"message": "Product updated successfully",
		"product": h.mapper.Product(product),
	})
}

// HandleDelete removes a product with all of its images.
func (h *ProductHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID", err)
	}

	if err := h.productService.Delete(c.UserContext(), id); err != nil {
		return respondError(c, h.log, "Could not delete product", err)
	}
	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}

// HandleDeleteImage removes a single image.
func (h *ProductHandler) HandleDeleteImage(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid image ID", err)
	}

	if err := h.productService.DeleteImage(c.UserContext(), id); err != nil {
		return respondError(c, h.log, "Could not delete image", err)
	}
	return c.JSON(fiber.Map{
		"message": "Image deleted successfully",
	})
}

// HandleSetPrimaryImage marks an image as the product's primary image.
func (h *ProductHandler) HandleSetPrimaryImage(c *fiber.Ctx) error {
	productID, err := idParam(c, "productId")
	if err != nil {
		return badRequest(c, "Invalid product ID", err)
	}
	imageID, err := idParam(c, "imageId")
	if err != nil {
		return badRequest(c, "Invalid image ID", err)
	}

	if err := h.productService.SetPrimaryImage(c.UserContext(), productID, imageID); err != nil {
		return respondError(c, h.log, "Could not set primary image", err)
	}
	return c.JSON(fiber.Map{
		"message": "Primary image updated successfully",
	})
}

// uploadedImages opens every file sent under imageFormKeys. The returned
// func closes them and is safe to call when there were none.
func uploadedImages(c *fiber.Ctx) ([]services.ImageFile, func(), error) {
	var images []services.ImageFile
	closeAll := func() {}
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return images, closeAll, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, closeAll, err
	}

	var opened []interface{ Close() error }
	closeAll = func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, key := range imageFormKeys {
		for _, header := range form.File[key] {
			if header.Filename == "" {
				continue
			}
			f, err := header.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("failed to open %q: %w", header.Filename, err)
			}
			opened = append(opened, f)
			images = append(images, services.ImageFile{Name: header.Filename, Content: f})
		}
	}
	return images, closeAll, nil
}

// blankFormFields reports the form fields whose last value is empty. The
// body parser binds those to a zero value, which for numbers and booleans
// is indistinguishable from an explicit 0 or false.
func blankFormFields(c *fiber.Ctx) map[string]bool {
	blank := map[string]bool{}
	contentType := c.Get(fiber.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return blank
		}
		for key, values := range form.Value {
			blank[key] = len(values) > 0 && values[len(values)-1] == ""
		}
	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			blank[string(key)] = len(value) == 0
		})
	}
	return blank
}

// clearIfBlank resets field to nil when key was sent empty.
func clearIfBlank[T any](blank map[string]bool, key string, field **T) {
	if blank[key] {
		*field = nil
	}
}
