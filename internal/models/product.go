package models

import "time"

// Product conditions accepted for a listing.
const (
	ConditionNew         = "New"
	ConditionUsed        = "Used"
	ConditionRefurbished = "Refurbished"
)

// Product represents one listed item. It owns its Images: they are created and
// destroyed only through the product service.
type Product struct {
	ID                   uint    `gorm:"primaryKey"`
	Title                string  `gorm:"size:200;not null"`
	Category             string  `gorm:"size:100;not null;index"`
	Description          string  `gorm:"type:text;not null"`
	Price                float64 `gorm:"not null"`
	Quantity             int     `gorm:"not null"`
	Condition            string  `gorm:"size:50;not null"`
	YearOfManufacture    *int
	Brand                *string `gorm:"size:100"`
	Model                *string `gorm:"size:100"`
	Dimensions           *string `gorm:"size:100"` // "LxWxH"
	Weight               *float64                  // kg
	Material             *string `gorm:"size:100"`
	Color                *string `gorm:"size:50"`
	OriginalPackaging    bool    `gorm:"not null"`
	ManualIncluded       bool    `gorm:"not null"`
	WorkingConditionDesc *string `gorm:"type:text"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Images []ProductImage `gorm:"foreignKey:ProductID"`
}

// ProductImage is one stored image attached to a Product. Filename is the
// generated storage name, never the name the client uploaded.
type ProductImage struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID uint   `gorm:"not null;index"`
	Filename  string `gorm:"size:500;not null;uniqueIndex"`
	IsPrimary bool   `gorm:"not null"`
	CreatedAt time.Time
}

// PrimaryImage returns the image flagged primary, or nil if there is none.
func (p *Product) PrimaryImage() *ProductImage {
	for i := range p.Images {
		if p.Images[i].IsPrimary {
			return &p.Images[i]
		}
	}
	return nil
}
