package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"gorm.io/gorm"
)

// Project carries the client/contact fields the milestone scheduler copies
// onto generated invoices, and the owner who receives notifications.
type Project struct {
	ID          int       `gorm:"primary_key" json:"id"`
	CompanyId   string    `gorm:"index;not null" json:"company_id"`
	OwnerId     string    `gorm:"index;not null" json:"owner_id"`
	Name        string    `gorm:"size:255;not null" json:"name" binding:"required"`
	ClientId    int       `gorm:"index" json:"client_id"`
	ClientName  string    `gorm:"size:255" json:"client_name"`
	ClientEmail string    `gorm:"size:255" json:"client_email"`
	QboId       *string   `gorm:"size:64;index" json:"qbo_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProjectById(ctx context.Context, id int) (*Project, error) {
	var project Project
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).Take(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &project, nil
}
