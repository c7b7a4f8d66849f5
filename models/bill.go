package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bill struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CompanyId  string          `gorm:"index;not null" json:"company_id"`
	VendorId   int             `gorm:"index;not null" json:"vendor_id" binding:"required"`
	BillNumber string          `gorm:"size:255;not null" json:"bill_number" binding:"required"`
	BillDate   time.Time       `gorm:"not null" json:"bill_date"`
	DueDate    *time.Time      `gorm:"default:null" json:"due_date"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Status     string          `gorm:"size:20;default:draft" json:"status"`
	QboId      *string         `gorm:"size:64;index" json:"qbo_id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
