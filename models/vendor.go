package models

import "time"

// Vendor is a supplier the company buys from. QboId is the remote linkage id;
// NULL means the vendor has never been pushed to the provider.
type Vendor struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	QboId     *string   `gorm:"size:64;index" json:"qbo_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
