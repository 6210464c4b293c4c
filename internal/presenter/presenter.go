// Package presenter shapes domain entities into API responses.
package presenter

import (
	"time"

	"ecofinds/internal/models"
)

// URLResolver turns a stored image name into a public URL.
type URLResolver interface {
	ResolveURL(storedName string) string
}

// ImageResponse is the public shape of a ProductImage.
type ImageResponse struct {
	ID        uint   `json:"id"`
	ProductID uint   `json:"product_id"`
	ImageURL  string `json:"image_url"`
	Filename  string `json:"filename"`
	IsPrimary bool   `json:"is_primary"`
	CreatedAt string `json:"created_at"`
}

// ProductResponse is the public shape of a Product.
type ProductResponse struct {
	ID                   uint            `json:"id"`
	Title                string          `json:"title"`
	Category             string          `json:"category"`
	Description          string          `json:"description"`
	Price                float64         `json:"price"`
	Quantity             int             `json:"quantity"`
	Condition            string          `json:"condition"`
	YearOfManufacture    *int            `json:"year_of_manufacture"`
	Brand                *string         `json:"brand"`
	Model                *string         `json:"model"`
	Dimensions           *string         `json:"dimensions"`
	Weight               *float64        `json:"weight"`
	Material             *string         `json:"material"`
	Color                *string         `json:"color"`
	OriginalPackaging    bool            `json:"original_packaging"`
	ManualIncluded       bool            `json:"manual_included"`
	WorkingConditionDesc *string         `json:"working_condition_desc"`
	CreatedAt            string          `json:"created_at"`
	UpdatedAt            string          `json:"updated_at"`
	Images               []ImageResponse `json:"images"`
}

// UserResponse is the public shape of a User. It never carries the hash.
type UserResponse struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	CreatedAt   string `json:"created_at"`
}

// Mapper converts entities to responses.
type Mapper struct {
	urls URLResolver
}

// NewMapper creates a Mapper that resolves image URLs through urls.
func NewMapper(urls URLResolver) *Mapper {
	return &Mapper{urls: urls}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (m *Mapper) Image(img models.ProductImage) ImageResponse {
	return ImageResponse{
		ID:        img.ID,
		ProductID: img.ProductID,
		ImageURL:  m.urls.ResolveURL(img.Filename),
		Filename:  img.Filename,
		IsPrimary: img.IsPrimary,
		CreatedAt: timestamp(img.CreatedAt),
	}
}

func (m *Mapper) Product(p *models.Product) ProductResponse {
	images := make([]ImageResponse, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, m.Image(img))
	}
	return ProductResponse{
		ID:                   p.ID,
		Title:                p.Title,
		Category:             p.Category,
		Description:          p.Description,
		Price:                p.Price,
		Quantity:             p.Quantity,
		Condition:            p.Condition,
		YearOfManufacture:    p.YearOfManufacture,
		Brand:                p.Brand,
		Model:                p.Model,
		Dimensions:           p.Dimensions,
		Weight:               p.Weight,
		Material:             p.Material,
		Color:                p.Color,
		OriginalPackaging:    p.OriginalPackaging,
		ManualIncluded:       p.ManualIncluded,
		WorkingConditionDesc: p.WorkingConditionDesc,
		CreatedAt:            timestamp(p.CreatedAt),
		UpdatedAt:            timestamp(p.UpdatedAt),
		Images:               images,
	}
}

// Products maps a list. The result is never nil so it encodes as [].
func (m *Mapper) Products(products []models.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, m.Product(&products[i]))
	}
	return out
}

func (m *Mapper) User(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Username:    u.Username,
		CreatedAt:   timestamp(u.CreatedAt),
	}
}
