package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	CompanyId string          `gorm:"index;not null" json:"company_id"`
	InvoiceId int             `gorm:"index" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAt    *time.Time      `json:"paid_at"`
	QboId     *string         `gorm:"size:64;index" json:"qbo_id"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
