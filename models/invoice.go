package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice rows created here are drafts owned by the invoicing subsystem once
// written; this engine only creates them (milestone scheduler) and queues them
// for remote sync (QboId still NULL).
type Invoice struct {
	ID                int             `gorm:"primary_key" json:"id"`
	CompanyId         string          `gorm:"index;not null" json:"company_id"`
	InvoiceNumber     string          `gorm:"size:64;not null" json:"invoice_number"`
	ProjectId         int             `gorm:"index" json:"project_id"`
	ClientName        string          `gorm:"size:255" json:"client_name"`
	ClientEmail       string          `gorm:"size:255" json:"client_email"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	DueDate           *time.Time      `json:"due_date"`
	Status            InvoiceStatus   `gorm:"size:20;default:draft" json:"status"`
	SourceMilestoneId *int            `gorm:"index" json:"source_milestone_id"`
	QboId             *string         `gorm:"size:64;index" json:"qbo_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	CompanyId         string          `json:"company_id" binding:"required"`
	ProjectId         int             `json:"project_id" binding:"required"`
	ClientName        string          `json:"client_name"`
	ClientEmail       string          `json:"client_email"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           *time.Time      `json:"due_date"`
	SourceMilestoneId *int            `json:"source_milestone_id"`
}

// CreateInvoice inserts a draft invoice. The invoice number is generated here;
// downstream systems may renumber on send.
func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if input == nil {
		return nil, fmt.Errorf("invoice input is nil")
	}

	invoice := Invoice{
		CompanyId:         input.CompanyId,
		InvoiceNumber:     nextInvoiceNumber(),
		ProjectId:         input.ProjectId,
		ClientName:        input.ClientName,
		ClientEmail:       input.ClientEmail,
		Amount:            input.Amount,
		DueDate:           input.DueDate,
		Status:            InvoiceStatusDraft,
		SourceMilestoneId: input.SourceMilestoneId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func nextInvoiceNumber() string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("INV-%s-%s", time.Now().Format("20060102"), strings.ToUpper(suffix))
}
