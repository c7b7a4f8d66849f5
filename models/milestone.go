package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"github.com/shopspring/decimal"
)

// Milestone is a contractual payment trigger on a project. Time-based
// milestones fall due when due_date passes; event-based ones fall due when a
// user marks status=completed. Once is_completed flips true the milestone is
// terminal and the scheduler never touches it again. ClaimedAt is a lease
// taken by the scheduler before invoice creation so two overlapping runs
// cannot both invoice the same milestone.
type Milestone struct {
	ID          int              `gorm:"primary_key" json:"id"`
	ProjectId   int              `gorm:"index;not null" json:"project_id" binding:"required"`
	Name        string           `gorm:"size:255;not null" json:"name" binding:"required"`
	DueType     MilestoneDueType `gorm:"size:10;not null" json:"due_type" binding:"required"`
	DueDate     *time.Time       `gorm:"index" json:"due_date"`
	Amount      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Percentage  *decimal.Decimal `gorm:"type:decimal(5,2)" json:"percentage"`
	IsCompleted bool             `gorm:"not null;default:false" json:"is_completed"`
	Status      MilestoneStatus  `gorm:"size:20;default:pending" json:"status"`
	CompletedAt *time.Time       `json:"completed_at"`
	ClaimedAt   *time.Time       `json:"claimed_at"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// MilestoneLog is an immutable audit row, one per scheduler-driven completion.
type MilestoneLog struct {
	ID              int       `gorm:"primary_key" json:"id"`
	MilestoneId     int       `gorm:"index;not null" json:"milestone_id"`
	Action          string    `gorm:"size:50;not null" json:"action"`
	MetadataJSON    []byte    `gorm:"type:json" json:"metadata"`
	SystemGenerated bool      `gorm:"not null;default:true" json:"system_generated"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MilestoneLogMetadata is the decoded shape of MilestoneLog.MetadataJSON.
type MilestoneLogMetadata struct {
	InvoiceId  int    `json:"invoice_id"`
	AutoReason string `json:"auto_reason"`
}

// DueMilestones selects milestones the scheduler should process: not yet
// completed and either past their due date (time-typed) or marked completed
// by the user (event-typed). Due-date ascending keeps run order deterministic.
func DueMilestones(ctx context.Context, asOf time.Time) ([]Milestone, error) {
	var milestones []Milestone
	err := config.GetDB().WithContext(ctx).
		Where("is_completed = ?", false).
		Where("(due_type = ? AND due_date <= ?) OR (due_type = ? AND status = ?)",
			MilestoneDueTypeTime, asOf, MilestoneDueTypeEvent, MilestoneStatusCompleted).
		Order("due_date ASC, id ASC").
		Find(&milestones).Error
	return milestones, err
}

// ClaimMilestone takes the processing lease via compare-and-swap: it succeeds
// only if the milestone is still incomplete and unclaimed (or the previous
// claim is stale). Returns false when another run holds the milestone.
func ClaimMilestone(ctx context.Context, milestoneId int, now time.Time, staleBefore time.Time) (bool, error) {
	res := config.GetDB().WithContext(ctx).
		Model(&Milestone{}).
		Where("id = ? AND is_completed = ?", milestoneId, false).
		Where("claimed_at IS NULL OR claimed_at <= ?", staleBefore).
		Update("claimed_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseMilestoneClaim drops the lease after a failed attempt so a later run
// can retry the milestone.
func ReleaseMilestoneClaim(ctx context.Context, milestoneId int) error {
	return config.GetDB().WithContext(ctx).
		Model(&Milestone{}).
		Where("id = ? AND is_completed = ?", milestoneId, false).
		Update("claimed_at", nil).Error
}

// CompleteMilestone finalizes a successfully invoiced milestone.
func CompleteMilestone(ctx context.Context, milestoneId int, now time.Time) error {
	return config.GetDB().WithContext(ctx).
		Model(&Milestone{}).
		Where("id = ?", milestoneId).
		Updates(map[string]interface{}{
			"is_completed": true,
			"status":       MilestoneStatusCompleted,
			"completed_at": &now,
		}).Error
}

// CreateMilestoneLog writes the immutable audit row for a scheduler-driven
// completion.
func CreateMilestoneLog(ctx context.Context, milestoneId int, invoiceId int, autoReason string) error {
	metadata, _ := json.Marshal(MilestoneLogMetadata{
		InvoiceId:  invoiceId,
		AutoReason: autoReason,
	})
	logRow := MilestoneLog{
		MilestoneId:     milestoneId,
		Action:          MilestoneLogActionAutoInvoiced,
		MetadataJSON:    metadata,
		SystemGenerated: true,
	}
	return config.GetDB().WithContext(ctx).Create(&logRow).Error
}
